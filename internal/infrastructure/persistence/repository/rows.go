package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
	"github.com/shopspring/decimal"
)

type caseRow struct {
	ID             string         `db:"id"`
	Subject        string         `db:"subject"`
	Sender         string         `db:"sender"`
	MessageID      string         `db:"message_id"`
	References     string         `db:"references_header"`
	ClaimedDate    sql.NullTime   `db:"claimed_date"`
	ApplicantName  string         `db:"applicant_name"`
	Department     string         `db:"department"`
	ToolsJSON      string         `db:"tools_json"`
	TotalAmount    sql.NullString `db:"total_amount"`
	Currency       string         `db:"currency"`
	MaterialsOK    bool           `db:"materials_ok"`
	ReimbursedDone bool           `db:"reimbursed_done"`
	Status         string         `db:"status"`
	IssuesJSON     string         `db:"issues_json"`
	LastAction     string         `db:"last_action"`
	Body           string         `db:"body"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func newCaseRow(c *entity.ReimbursementCase) (*caseRow, error) {
	tools := c.Tools
	if tools == nil {
		tools = []entity.ExpenseLineItem{}
	}
	toolsJSON, err := json.Marshal(tools)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tools: %w", err)
	}
	issues := c.Issues
	if issues == nil {
		issues = []string{}
	}
	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal issues: %w", err)
	}

	row := &caseRow{
		ID:             c.ID,
		Subject:        c.Subject,
		Sender:         c.Sender,
		MessageID:      c.MessageID,
		References:     c.References,
		ApplicantName:  c.ApplicantName,
		Department:     c.Department,
		ToolsJSON:      string(toolsJSON),
		Currency:       c.Currency,
		MaterialsOK:    c.MaterialsOK,
		ReimbursedDone: c.ReimbursedDone,
		Status:         string(c.Status),
		IssuesJSON:     string(issuesJSON),
		LastAction:     c.LastAction,
		Body:           c.Body,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
	if c.ClaimedDate != nil {
		row.ClaimedDate = sql.NullTime{Time: *c.ClaimedDate, Valid: true}
	}
	if c.TotalAmount != nil {
		row.TotalAmount = sql.NullString{String: c.TotalAmount.String(), Valid: true}
	}
	return row, nil
}

func (r *caseRow) toEntity() (*entity.ReimbursementCase, error) {
	c := &entity.ReimbursementCase{
		ID:             r.ID,
		Subject:        r.Subject,
		Sender:         r.Sender,
		MessageID:      r.MessageID,
		References:     r.References,
		ApplicantName:  r.ApplicantName,
		Department:     r.Department,
		Currency:       r.Currency,
		MaterialsOK:    r.MaterialsOK,
		ReimbursedDone: r.ReimbursedDone,
		Status:         entity.CaseStatus(r.Status),
		LastAction:     r.LastAction,
		Body:           r.Body,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.ClaimedDate.Valid {
		t := r.ClaimedDate.Time
		c.ClaimedDate = &t
	}
	if r.TotalAmount.Valid && r.TotalAmount.String != "" {
		d, err := decimal.NewFromString(r.TotalAmount.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse total amount %q: %w", r.TotalAmount.String, err)
		}
		c.TotalAmount = &d
	}
	if err := json.Unmarshal([]byte(r.ToolsJSON), &c.Tools); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tools: %w", err)
	}
	if err := json.Unmarshal([]byte(r.IssuesJSON), &c.Issues); err != nil {
		return nil, fmt.Errorf("failed to unmarshal issues: %w", err)
	}
	return c, nil
}

type attachmentRow struct {
	ID            int64          `db:"id"`
	CaseID        string         `db:"case_id"`
	FileName      string         `db:"file_name"`
	FilePath      string         `db:"file_path"`
	FileType      string         `db:"file_type"`
	FileSize      int64          `db:"file_size"`
	OCRResult     sql.NullString `db:"ocr_result"`
	OCRStatus     string         `db:"ocr_status"`
	OCRError      string         `db:"ocr_error"`
	ExtractedFrom string         `db:"extracted_from"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r *attachmentRow) toEntity() (*entity.Attachment, error) {
	a := &entity.Attachment{
		ID:            r.ID,
		CaseID:        r.CaseID,
		FileName:      r.FileName,
		FilePath:      r.FilePath,
		FileType:      r.FileType,
		FileSize:      r.FileSize,
		OCRStatus:     entity.OCRStatus(r.OCRStatus),
		OCRError:      r.OCRError,
		ExtractedFrom: r.ExtractedFrom,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.OCRResult.Valid && r.OCRResult.String != "" {
		var item entity.ExpenseLineItem
		if err := json.Unmarshal([]byte(r.OCRResult.String), &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ocr result: %w", err)
		}
		a.OCRResult = &item
	}
	return a, nil
}

type notificationRow struct {
	ID           string       `db:"id"`
	CaseID       string       `db:"case_id"`
	Recipient    string       `db:"recipient"`
	Subject      string       `db:"subject"`
	Body         string       `db:"body"`
	Status       string       `db:"status"`
	ErrorMessage string       `db:"error_message"`
	SentAt       sql.NullTime `db:"sent_at"`
	CreatedAt    time.Time    `db:"created_at"`
}

func (r *notificationRow) toEntity() *entity.Notification {
	n := &entity.Notification{
		ID:           r.ID,
		CaseID:       r.CaseID,
		Recipient:    r.Recipient,
		Subject:      r.Subject,
		Body:         r.Body,
		Status:       r.Status,
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt,
	}
	if r.SentAt.Valid {
		t := r.SentAt.Time
		n.SentAt = &t
	}
	return n
}
