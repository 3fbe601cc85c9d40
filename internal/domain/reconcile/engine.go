// Package reconcile grades claimed expense items against receipt-derived items.
//
// Deciding which claimed item a receipt belongs to (alias resolution) is left to a
// Pairer, usually backed by a language model. Everything after the pairing is
// deterministic: tolerance, currency authority, date slack and aggregation.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// Pair links one claimed item to one observed item by index
type Pair struct {
	Claimed  int
	Observed int
	// SameTool is false when the items were paired but name different products
	SameTool bool
	// Note is the adjudicator's remark; it is shown only on pairs with a problem
	Note string
}

// Pairing is the adjudicator's answer for one case
type Pairing struct {
	Pairs []Pair
	// Summary is appended to the report summary
	Summary string
}

// Pairer proposes which claimed and observed items belong together
type Pairer interface {
	Pair(ctx context.Context, claimed, observed []entity.ExpenseLineItem) (Pairing, error)
}

// Policy holds the grading tolerances
type Policy struct {
	AmountTolerance decimal.Decimal
	DateSlack       time.Duration
	// StrictDates turns a date outside the slack into DATE_IMPLAUSIBLE instead of an advisory note
	StrictDates bool
}

// DefaultPolicy returns a 0.01 amount tolerance and a 7 day date slack
func DefaultPolicy() Policy {
	return Policy{
		AmountTolerance: decimal.New(1, -2),
		DateSlack:       7 * 24 * time.Hour,
	}
}

func (p Policy) amountsAgree(c, o entity.ExpenseLineItem) bool {
	if c.Amount == nil || o.Amount == nil {
		return false
	}
	return c.Amount.Sub(*o.Amount).Abs().LessThanOrEqual(p.AmountTolerance)
}

// Engine produces reconciliation reports
type Engine struct {
	pairer Pairer
	policy Policy
}

// NewEngine creates an engine. A nil pairer falls back to alias matching.
func NewEngine(pairer Pairer, policy Policy) *Engine {
	if pairer == nil {
		pairer = NewAliasPairer(policy)
	}
	return &Engine{pairer: pairer, policy: policy}
}

// Reconcile compares claimed against observed items.
// The returned report is always usable. When the pairing could not be obtained or
// is inconsistent, the report has OverallMatch=false with a single issue and the
// error is a *entity.ReconciliationAdjudicationError.
func (e *Engine) Reconcile(ctx context.Context, claimed, observed []entity.ExpenseLineItem) (entity.ReconciliationReport, error) {
	claimed = normalizeAll(claimed, entity.SourceClaimed)
	observed = normalizeAll(observed, entity.SourceReceipt)

	var pairing Pairing
	if len(claimed) > 0 && len(observed) > 0 {
		p, err := e.pairer.Pair(ctx, claimed, observed)
		if err != nil {
			return failedReport(err), asAdjudicationError(err)
		}
		if err := validatePairing(p, len(claimed), len(observed)); err != nil {
			return failedReport(err), err
		}
		pairing = p
	}

	return e.grade(claimed, observed, pairing), nil
}

func (e *Engine) grade(claimed, observed []entity.ExpenseLineItem, pairing Pairing) entity.ReconciliationReport {
	byClaimed := make(map[int]Pair, len(pairing.Pairs))
	pairedObserved := make(map[int]bool, len(pairing.Pairs))
	for _, p := range pairing.Pairs {
		byClaimed[p.Claimed] = p
		pairedObserved[p.Observed] = true
	}

	matches := make([]entity.MatchResult, 0, len(claimed)+len(observed))
	for i := range claimed {
		c := claimed[i]
		p, ok := byClaimed[i]
		if !ok {
			matches = append(matches, entity.MatchResult{
				Claimed: &c,
				Verdict: entity.VerdictNoReceiptFound,
				Issues:  []string{fmt.Sprintf("no receipt found for %s (%s)", c.ToolName, describeAmount(c))},
			})
			continue
		}
		o := observed[p.Observed]
		matches = append(matches, e.gradePair(c, o, p))
	}

	for j := range observed {
		if pairedObserved[j] {
			continue
		}
		o := observed[j]
		matches = append(matches, entity.MatchResult{
			Observed: &o,
			Verdict:  entity.VerdictUnexpectedReceipt,
			Issues:   []string{fmt.Sprintf("receipt for %s (%s) is not referenced by any claimed item", o.ToolName, describeAmount(o))},
		})
	}

	report := entity.ReconciliationReport{
		OverallMatch: true,
		Matches:      matches,
	}
	for _, m := range matches {
		if m.Verdict.Blocking() {
			report.OverallMatch = false
		}
	}
	report.Summary = summarize(report)
	if pairing.Summary != "" {
		report.Summary += "; " + pairing.Summary
	}
	return report
}

func (e *Engine) gradePair(c, o entity.ExpenseLineItem, p Pair) entity.MatchResult {
	res := entity.MatchResult{Claimed: &c, Observed: &o, Verdict: entity.VerdictMatched}

	switch {
	case !p.SameTool:
		res.Verdict = entity.VerdictToolMismatch
		res.Issues = append(res.Issues, fmt.Sprintf("receipt names %q, which does not match claimed tool %q", o.ToolName, c.ToolName))
	case c.MissingCurrency():
		res.Verdict = entity.VerdictCurrencyMismatch
		res.Issues = append(res.Issues, fmt.Sprintf("currency missing on the claim for %s (amount %s)", c.ToolName, c.AmountString()))
	case o.MissingCurrency():
		res.Verdict = entity.VerdictCurrencyMismatch
		res.Issues = append(res.Issues, fmt.Sprintf("currency missing on the receipt for %s (amount %s)", c.ToolName, o.AmountString()))
	case c.Currency != o.Currency:
		res.Verdict = entity.VerdictCurrencyMismatch
		res.Issues = append(res.Issues, fmt.Sprintf("currency for %s differs: claim says %s, receipt shows %s; please correct the claim to %s",
			c.ToolName, c.Currency, o.Currency, o.Currency))
	case !c.HasAmount() || !o.HasAmount():
		res.Verdict = entity.VerdictAmountMismatch
		res.Issues = append(res.Issues, fmt.Sprintf("amount for %s cannot be compared: claim says %s, receipt shows %s",
			c.ToolName, describeAmount(c), describeAmount(o)))
	case !e.policy.amountsAgree(c, o):
		res.Verdict = entity.VerdictAmountMismatch
		res.Issues = append(res.Issues, fmt.Sprintf("amount for %s differs: claim says %s, receipt shows %s",
			c.ToolName, describeAmount(c), describeAmount(o)))
	}

	if res.Verdict != entity.VerdictMatched && p.Note != "" {
		res.Issues = append(res.Issues, "note: "+p.Note)
	}

	if res.Verdict == entity.VerdictMatched && c.Date != nil && o.Date != nil {
		drift := c.Date.Sub(*o.Date)
		if drift < 0 {
			drift = -drift
		}
		if drift > e.policy.DateSlack {
			days := int(drift.Hours() / 24)
			if e.policy.StrictDates {
				res.Verdict = entity.VerdictDateImplausible
				res.Issues = append(res.Issues, fmt.Sprintf("date for %s is implausible: claim says %s, receipt shows %s (%d days apart)",
					c.ToolName, c.DateString(), o.DateString(), days))
			} else {
				res.Issues = append(res.Issues, fmt.Sprintf("note: date for %s differs by %d days (claim %s, receipt %s)",
					c.ToolName, days, c.DateString(), o.DateString()))
			}
		}
	}

	return res
}

func validatePairing(p Pairing, nClaimed, nObserved int) error {
	seenC := make(map[int]bool, len(p.Pairs))
	seenO := make(map[int]bool, len(p.Pairs))
	for _, pair := range p.Pairs {
		if pair.Claimed < 0 || pair.Claimed >= nClaimed {
			return &entity.ReconciliationAdjudicationError{Reason: fmt.Sprintf("claimed index %d out of range", pair.Claimed)}
		}
		if pair.Observed < 0 || pair.Observed >= nObserved {
			return &entity.ReconciliationAdjudicationError{Reason: fmt.Sprintf("observed index %d out of range", pair.Observed)}
		}
		if seenC[pair.Claimed] {
			return &entity.ReconciliationAdjudicationError{Reason: fmt.Sprintf("claimed item %d paired twice", pair.Claimed)}
		}
		if seenO[pair.Observed] {
			return &entity.ReconciliationAdjudicationError{Reason: fmt.Sprintf("receipt item %d paired twice", pair.Observed)}
		}
		seenC[pair.Claimed] = true
		seenO[pair.Observed] = true
	}
	return nil
}

func asAdjudicationError(err error) *entity.ReconciliationAdjudicationError {
	var ae *entity.ReconciliationAdjudicationError
	if errors.As(err, &ae) {
		return ae
	}
	return &entity.ReconciliationAdjudicationError{Reason: err.Error()}
}

func failedReport(err error) entity.ReconciliationReport {
	ae := asAdjudicationError(err)
	return entity.ReconciliationReport{
		OverallMatch:       false,
		Summary:            "automatic reconciliation could not be completed",
		AdjudicationFailed: true,
		Failure:            fmt.Sprintf("automatic reconciliation failed (%s); a reviewer must compare the claim and receipts manually", ae.Reason),
	}
}

func normalizeAll(items []entity.ExpenseLineItem, src entity.Source) []entity.ExpenseLineItem {
	out := make([]entity.ExpenseLineItem, len(items))
	for i, it := range items {
		it = it.Normalize()
		it.Source = src
		out[i] = it
	}
	return out
}

func describeAmount(it entity.ExpenseLineItem) string {
	if !it.HasAmount() {
		return "no amount"
	}
	return strings.TrimSpace(it.AmountString() + " " + it.Currency)
}

func summarize(r entity.ReconciliationReport) string {
	blocking := 0
	for _, m := range r.Matches {
		if m.Verdict.Blocking() {
			blocking++
		}
	}
	return fmt.Sprintf("%d matched, %d with problems, %d missing receipts, %d unreferenced receipts",
		r.Count(entity.VerdictMatched), blocking, r.Count(entity.VerdictNoReceiptFound), r.Count(entity.VerdictUnexpectedReceipt))
}
