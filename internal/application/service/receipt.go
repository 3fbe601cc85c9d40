package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/port"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
	"github.com/garyjia/ai-reimbursement-triage/pkg/utils"
	"github.com/shopspring/decimal"
)

// Confidence grades how much of a receipt was read
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
)

// PageSeparator joins the raw text of consecutive pages
const PageSeparator = "\n\n--- page break ---\n\n"

const receiptSystemPrompt = "You read receipts and invoices for AI tool subscriptions. " +
	"Reply with a single JSON object and nothing else."

const receiptPrompt = `Read this receipt image and reply with:
{
  "tool_name": "product or plan name, e.g. ChatGPT Plus",
  "amount": 0.00,
  "currency": "USD",
  "date": "YYYY-MM-DD",
  "raw_text": "all text you can read",
  "notes": ""
}
amount is the total actually charged, tax included. Use null for fields that are not visible.`

// PageRead is the vision result of one page
type PageRead struct {
	Page    int
	Item    *entity.ExpenseLineItem
	RawText string
	Err     error
}

// ReceiptResult is a receipt read into one observed item
type ReceiptResult struct {
	Item       entity.ExpenseLineItem
	RawText    string
	Confidence Confidence
	// PageErrors lists pages that were skipped
	PageErrors []PageRead
	// Issues carries ambiguities left for the reviewer, such as conflicting currencies
	Issues []string
}

type receiptReply struct {
	ToolName string     `json:"tool_name"`
	Amount   flexAmount `json:"amount"`
	Currency string     `json:"currency"`
	Date     string     `json:"date"`
	RawText  string     `json:"raw_text"`
	Notes    string     `json:"notes"`
}

// ReceiptReader reads receipt files through the vision oracle
type ReceiptReader struct {
	vision   port.VisionOracle
	renderer port.PageRenderer
	logger   Logger
}

// NewReceiptReader creates a new ReceiptReader
func NewReceiptReader(vision port.VisionOracle, renderer port.PageRenderer, logger Logger) *ReceiptReader {
	return &ReceiptReader{vision: vision, renderer: renderer, logger: orNop(logger)}
}

// Read turns one image or PDF into an observed item. Files of any other
// type fail with *entity.UnsupportedFormatError before any model call.
func (r *ReceiptReader) Read(ctx context.Context, path string) (*ReceiptResult, error) {
	switch entity.DetectFileType(path) {
	case entity.FileTypeImage:
		return r.readImage(ctx, path)
	case entity.FileTypePDF:
		pages, err := r.ReadMultiPage(ctx, path)
		if err != nil {
			return nil, err
		}
		res := MergePages(pages)
		if res == nil {
			return nil, &entity.ReceiptReadError{File: filepath.Base(path), Reason: "no page could be read", Err: firstPageErr(pages)}
		}
		return res, nil
	default:
		return nil, &entity.UnsupportedFormatError{File: filepath.Base(path), Ext: strings.ToLower(filepath.Ext(path))}
	}
}

func (r *ReceiptReader) readImage(ctx context.Context, path string) (*ReceiptResult, error) {
	name := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &entity.ReceiptReadError{File: name, Reason: "cannot open file", Err: err}
	}

	item, raw, err := r.describe(ctx, port.Image{Data: data, MimeType: entity.ImageMimeType(path)})
	if err != nil {
		return nil, &entity.ReceiptReadError{File: name, Reason: "unusable model reply", Err: err}
	}
	return &ReceiptResult{Item: *item, RawText: raw, Confidence: ConfidenceHigh}, nil
}

// ReadMultiPage reads every page of a paginated document. A page that cannot be
// rendered or read keeps its slot with Err set. Only a document that yields no
// pages at all is an error.
func (r *ReceiptReader) ReadMultiPage(ctx context.Context, path string) ([]PageRead, error) {
	name := filepath.Base(path)
	if entity.DetectFileType(path) != entity.FileTypePDF {
		return nil, &entity.UnsupportedFormatError{File: name, Ext: strings.ToLower(filepath.Ext(path))}
	}
	if r.renderer == nil {
		return nil, &entity.ReceiptReadError{File: name, Reason: "no PDF renderer configured"}
	}

	pages, err := r.renderer.RenderPages(ctx, path)
	if err != nil {
		return nil, &entity.ReceiptReadError{File: name, Reason: "cannot render document", Err: err}
	}
	if len(pages) == 0 {
		return nil, &entity.ReceiptReadError{File: name, Reason: "document has no pages"}
	}

	reads := make([]PageRead, 0, len(pages))
	for _, p := range pages {
		read := PageRead{Page: p.Number}
		if p.Err != nil {
			read.Err = p.Err
			reads = append(reads, read)
			continue
		}
		item, raw, err := r.describe(ctx, p.Image)
		if err != nil {
			r.logger.Warn("Receipt page unreadable", "file", name, "page", p.Number, "error", err)
			read.Err = err
		} else {
			read.Item = item
			read.RawText = raw
		}
		reads = append(reads, read)
	}
	return reads, nil
}

func (r *ReceiptReader) describe(ctx context.Context, img port.Image) (*entity.ExpenseLineItem, string, error) {
	reply, err := r.vision.Describe(ctx, receiptSystemPrompt, receiptPrompt, img)
	if err != nil {
		return nil, "", err
	}

	var parsed receiptReply
	if err := utils.DecodeReply(reply, &parsed); err != nil {
		return nil, "", err
	}
	if parsed.Amount.Value != nil && parsed.Amount.Value.IsNegative() {
		return nil, "", fmt.Errorf("negative amount on receipt")
	}

	item := entity.ExpenseLineItem{
		ToolName: parsed.ToolName,
		Amount:   parsed.Amount.Value,
		Currency: parsed.Currency,
		Date:     parseDate(parsed.Date),
		Source:   entity.SourceReceipt,
		Notes:    strings.TrimSpace(parsed.Notes),
	}.Normalize()
	return &item, parsed.RawText, nil
}

// MergePages combines per-page reads into one item:
// raw text is joined in page order, tool name, date and currency come from the
// first page that states them, and amounts are summed. Failed pages are skipped
// and lower the confidence to MEDIUM and are listed in Issues. Nil is returned
// when every page failed.
func MergePages(pages []PageRead) *ReceiptResult {
	res := &ReceiptResult{Confidence: ConfidenceHigh}
	var (
		texts  []string
		total  decimal.Decimal
		hasAny bool
		read   int
	)
	res.Item.Source = entity.SourceReceipt

	for _, p := range pages {
		if p.Err != nil || p.Item == nil {
			res.PageErrors = append(res.PageErrors, p)
			res.Confidence = ConfidenceMedium
			continue
		}
		read++
		it := p.Item

		if p.RawText != "" {
			texts = append(texts, p.RawText)
		}
		if res.Item.ToolName == "" && it.ToolName != "" {
			res.Item.ToolName = it.ToolName
		}
		if res.Item.Date == nil && it.Date != nil {
			res.Item.Date = it.Date
		}
		if res.Item.Notes == "" && it.Notes != "" {
			res.Item.Notes = it.Notes
		}
		if it.Currency != "" {
			if res.Item.Currency == "" {
				res.Item.Currency = it.Currency
			} else if it.Currency != res.Item.Currency {
				res.Issues = append(res.Issues, fmt.Sprintf(
					"receipt pages disagree on currency: page %d shows %s, earlier pages %s", p.Page, it.Currency, res.Item.Currency))
			}
		}
		if it.Amount != nil {
			total = total.Add(*it.Amount)
			hasAny = true
		}
	}

	if read == 0 {
		return nil
	}
	res.Issues = append(res.Issues, pageErrorIssues(res.PageErrors)...)
	if hasAny {
		res.Item.Amount = &total
	}
	res.RawText = strings.Join(texts, PageSeparator)
	return res
}

// pageErrorIssues describes skipped pages for the reviewer
func pageErrorIssues(pages []PageRead) []string {
	var (
		issues     []string
		unreadable int
	)
	for _, p := range pages {
		var truncated *port.PagesTruncatedError
		if errors.As(p.Err, &truncated) {
			issues = append(issues, truncated.Error())
			continue
		}
		unreadable++
	}
	if unreadable > 0 {
		issues = append([]string{fmt.Sprintf("%d page(s) unreadable, the amount covers the readable pages only", unreadable)}, issues...)
	}
	return issues
}

func firstPageErr(pages []PageRead) error {
	for _, p := range pages {
		if p.Err != nil {
			return p.Err
		}
	}
	return nil
}
