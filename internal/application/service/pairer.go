package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/port"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/reconcile"
	"github.com/garyjia/ai-reimbursement-triage/pkg/utils"
)

const pairSystemPrompt = "You match reimbursement claims to receipts. " +
	"Product names vary (ChatGPT Plus, OpenAI ChatGPT, GPT-4 subscription are the same product). " +
	"Reply with a single JSON object and nothing else."

const pairPromptTemplate = `Claimed items:
%s
Receipts:
%s
Pair each claimed item with at most one receipt, and each receipt with at most one claimed item.
Prefer the receipt for the same product. Leave items unpaired when no receipt plausibly belongs to them.
Set same_tool to false when you pair a receipt that is for a different product.

Reply with:
{"pairs": [{"claimed": 0, "receipt": 0, "same_tool": true, "note": ""}], "summary": ""}`

type pairReply struct {
	Pairs []struct {
		Claimed  *int   `json:"claimed"`
		Receipt  *int   `json:"receipt"`
		SameTool *bool  `json:"same_tool"`
		Note     string `json:"note"`
	} `json:"pairs"`
	Summary string `json:"summary"`
}

// OraclePairer asks the text oracle which receipt belongs to which claim
type OraclePairer struct {
	oracle port.TextOracle
	logger Logger
}

// NewOraclePairer creates a new OraclePairer
func NewOraclePairer(oracle port.TextOracle, logger Logger) *OraclePairer {
	return &OraclePairer{oracle: oracle, logger: orNop(logger)}
}

// Pair returns *entity.ReconciliationAdjudicationError for unusable replies
func (p *OraclePairer) Pair(ctx context.Context, claimed, observed []entity.ExpenseLineItem) (reconcile.Pairing, error) {
	prompt := fmt.Sprintf(pairPromptTemplate, listItems(claimed), listItems(observed))

	reply, err := p.oracle.Complete(ctx, pairSystemPrompt, prompt)
	if err != nil {
		p.logger.Error("Pairing call failed", "error", err)
		return reconcile.Pairing{}, &entity.ReconciliationAdjudicationError{Reason: fmt.Sprintf("model call failed: %v", err)}
	}

	var parsed pairReply
	if err := utils.DecodeReply(reply, &parsed); err != nil {
		p.logger.Warn("Pairing reply unusable", "error", err)
		return reconcile.Pairing{}, &entity.ReconciliationAdjudicationError{RawText: reply, Reason: err.Error()}
	}

	pairing := reconcile.Pairing{Summary: strings.TrimSpace(parsed.Summary)}
	for i, pr := range parsed.Pairs {
		if pr.Claimed == nil || pr.Receipt == nil {
			return reconcile.Pairing{}, &entity.ReconciliationAdjudicationError{
				RawText: reply,
				Reason:  fmt.Sprintf("pair %d lacks an index", i),
			}
		}
		same := true
		if pr.SameTool != nil {
			same = *pr.SameTool
		}
		pairing.Pairs = append(pairing.Pairs, reconcile.Pair{
			Claimed:  *pr.Claimed,
			Observed: *pr.Receipt,
			SameTool: same,
			Note:     strings.TrimSpace(pr.Note),
		})
	}
	return pairing, nil
}

func listItems(items []entity.ExpenseLineItem) string {
	var sb strings.Builder
	for i, it := range items {
		fmt.Fprintf(&sb, "%d. tool=%q amount=%s currency=%s date=%s\n",
			i, it.ToolName, it.AmountString(), orDash(it.Currency), orDash(it.DateString()))
	}
	return sb.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

var _ reconcile.Pairer = (*OraclePairer)(nil)
