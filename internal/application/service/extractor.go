package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/port"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
	"github.com/garyjia/ai-reimbursement-triage/pkg/utils"
	"github.com/shopspring/decimal"
)

const extractSystemPrompt = "You read reimbursement emails and extract the AI tool subscription expenses they claim. " +
	"Reply with a single JSON object and nothing else."

const extractPromptTemplate = `Extract the claim from the email below.

Reply with this JSON shape:
{
  "ai_related": true,
  "applicant_name": "",
  "department": "",
  "claimed_date": "YYYY-MM-DD",
  "items": [
    {"tool_name": "", "amount": 0.00, "currency": "USD", "date": "YYYY-MM-DD", "notes": ""}
  ],
  "total_amount": 0.00,
  "total_currency": "USD",
  "other_notes": ""
}

Rules:
- ai_related is true only for subscriptions, top-ups or API usage of AI tools (ChatGPT, Cursor, Claude, Gemini, Copilot, Midjourney and similar).
- One item per tool and billing period. Use null for anything the email does not state.
- currency is a 3-letter code. Convert symbols: $ is USD, ¥ is CNY, € is EUR.
- The subject is part of the email; a claim may be stated there alone.

Subject: %s

Email:
%s`

// ClaimFacts is what the claimant stated in the email
type ClaimFacts struct {
	AIRelated     bool
	ApplicantName string
	Department    string
	ClaimedDate   *time.Time
	Items         []entity.ExpenseLineItem
	TotalAmount   *decimal.Decimal
	Currency      string
	Notes         string
}

// ExtractionResult is either Ok with facts, or Malformed with the raw reply
type ExtractionResult struct {
	Facts     ClaimFacts
	Malformed *entity.ExtractionError
}

// Ok reports whether the claim could be extracted
func (r ExtractionResult) Ok() bool {
	return r.Malformed == nil
}

type extractionReply struct {
	AIRelated     bool        `json:"ai_related"`
	ApplicantName string      `json:"applicant_name"`
	Department    string      `json:"department"`
	ClaimedDate   string      `json:"claimed_date"`
	Items         []replyItem `json:"items"`
	TotalAmount   flexAmount  `json:"total_amount"`
	TotalCurrency string      `json:"total_currency"`
	OtherNotes    string      `json:"other_notes"`
}

type replyItem struct {
	ToolName string     `json:"tool_name"`
	Amount   flexAmount `json:"amount"`
	Currency string     `json:"currency"`
	Date     string     `json:"date"`
	Notes    string     `json:"notes"`
}

// FactExtractor turns an email into claimed expense items
type FactExtractor struct {
	oracle port.TextOracle
	logger Logger
}

// NewFactExtractor creates a new FactExtractor
func NewFactExtractor(oracle port.TextOracle, logger Logger) *FactExtractor {
	return &FactExtractor{oracle: oracle, logger: orNop(logger)}
}

// Extract never fails hard. The subject is read along with the body; a mail
// with neither is an empty claim, and an unusable reply comes back as Malformed.
func (e *FactExtractor) Extract(ctx context.Context, subject, body string) ExtractionResult {
	subject, body = strings.TrimSpace(subject), strings.TrimSpace(body)
	if subject == "" && body == "" {
		return ExtractionResult{}
	}
	if body == "" {
		body = "(empty)"
	}

	reply, err := e.oracle.Complete(ctx, extractSystemPrompt, fmt.Sprintf(extractPromptTemplate, subject, body))
	if err != nil {
		e.logger.Error("Claim extraction call failed", "error", err)
		return ExtractionResult{Malformed: &entity.ExtractionError{Reason: fmt.Sprintf("model call failed: %v", err)}}
	}

	var parsed extractionReply
	if err := utils.DecodeReply(reply, &parsed); err != nil {
		e.logger.Warn("Claim extraction reply unusable", "error", err)
		return ExtractionResult{Malformed: &entity.ExtractionError{RawText: reply, Reason: err.Error()}}
	}

	facts, err := parsed.toFacts()
	if err != nil {
		return ExtractionResult{Malformed: &entity.ExtractionError{RawText: reply, Reason: err.Error()}}
	}
	return ExtractionResult{Facts: facts}
}

func (r extractionReply) toFacts() (ClaimFacts, error) {
	facts := ClaimFacts{
		AIRelated:     r.AIRelated,
		ApplicantName: strings.TrimSpace(r.ApplicantName),
		Department:    strings.TrimSpace(r.Department),
		ClaimedDate:   parseDate(r.ClaimedDate),
		Notes:         strings.TrimSpace(r.OtherNotes),
		Currency:      entity.NormalizeCurrency(r.TotalCurrency),
		TotalAmount:   r.TotalAmount.Value,
	}

	for _, it := range r.Items {
		name := strings.TrimSpace(it.ToolName)
		if name == "" && it.Amount.Value == nil {
			continue
		}
		if name == "" {
			return ClaimFacts{}, fmt.Errorf("item with amount %s has no tool name", it.Amount.Value)
		}
		if it.Amount.Value != nil && it.Amount.Value.IsNegative() {
			return ClaimFacts{}, fmt.Errorf("negative amount for %s", name)
		}
		facts.Items = append(facts.Items, entity.ExpenseLineItem{
			ToolName: name,
			Amount:   it.Amount.Value,
			Currency: it.Currency,
			Date:     parseDate(it.Date),
			Source:   entity.SourceClaimed,
			Notes:    strings.TrimSpace(it.Notes),
		}.Normalize())
	}

	if facts.TotalAmount == nil {
		facts.TotalAmount, facts.Currency = sumSingleCurrency(facts.Items)
	}
	return facts, nil
}

// sumSingleCurrency totals the items when they all carry an amount in one currency
func sumSingleCurrency(items []entity.ExpenseLineItem) (*decimal.Decimal, string) {
	if len(items) == 0 {
		return nil, ""
	}
	total := decimal.Zero
	currency := items[0].Currency
	for _, it := range items {
		if it.Amount == nil || it.Currency == "" || it.Currency != currency {
			return nil, ""
		}
		total = total.Add(*it.Amount)
	}
	return &total, currency
}
