package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/port"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
	"github.com/garyjia/ai-reimbursement-triage/internal/infrastructure/persistence/sqldb"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const caseColumns = `id, subject, sender, message_id, references_header, claimed_date,
	applicant_name, department, tools_json, total_amount, currency, materials_ok,
	reimbursed_done, status, issues_json, last_action, body, created_at, updated_at`

// CaseRepository implements port.CaseRepository
type CaseRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewCaseRepository creates a new case repository
func NewCaseRepository(db *sqldb.DB, logger *zap.Logger) port.CaseRepository {
	return &CaseRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts the case or rewrites its mutable columns. created_at and
// reimbursed_done survive the update.
func (r *CaseRepository) Upsert(ctx context.Context, c *entity.ReimbursementCase) error {
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	row, err := newCaseRow(c)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO reimbursement_cases (` + caseColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			subject = excluded.subject,
			sender = excluded.sender,
			message_id = excluded.message_id,
			references_header = excluded.references_header,
			claimed_date = excluded.claimed_date,
			applicant_name = excluded.applicant_name,
			department = excluded.department,
			tools_json = excluded.tools_json,
			total_amount = excluded.total_amount,
			currency = excluded.currency,
			materials_ok = excluded.materials_ok,
			status = excluded.status,
			issues_json = excluded.issues_json,
			last_action = excluded.last_action,
			body = excluded.body,
			updated_at = excluded.updated_at
	`

	exec := r.db.Executor(ctx)
	_, err = exec.ExecContext(ctx, exec.Rebind(query),
		row.ID,
		row.Subject,
		row.Sender,
		row.MessageID,
		row.References,
		row.ClaimedDate,
		row.ApplicantName,
		row.Department,
		row.ToolsJSON,
		row.TotalAmount,
		row.Currency,
		row.MaterialsOK,
		row.ReimbursedDone,
		row.Status,
		row.IssuesJSON,
		row.LastAction,
		row.Body,
		row.CreatedAt,
		row.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to upsert case", zap.String("case_id", c.ID), zap.Error(err))
		return fmt.Errorf("failed to upsert case: %w", err)
	}
	return nil
}

// GetByID retrieves a case by its mailbox id
func (r *CaseRepository) GetByID(ctx context.Context, id string) (*entity.ReimbursementCase, error) {
	exec := r.db.Executor(ctx)
	var row caseRow
	err := sqlx.GetContext(ctx, exec, &row,
		exec.Rebind(`SELECT `+caseColumns+` FROM reimbursement_cases WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get case", zap.String("case_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	return row.toEntity()
}

// Exists reports whether a case with the id has been stored
func (r *CaseRepository) Exists(ctx context.Context, id string) (bool, error) {
	exec := r.db.Executor(ctx)
	var n int
	err := sqlx.GetContext(ctx, exec, &n,
		exec.Rebind(`SELECT COUNT(*) FROM reimbursement_cases WHERE id = ?`), id)
	if err != nil {
		return false, fmt.Errorf("failed to check case existence: %w", err)
	}
	return n > 0, nil
}

// List returns cases ordered by most recent update
func (r *CaseRepository) List(ctx context.Context, filter entity.CaseFilter) ([]*entity.ReimbursementCase, error) {
	var (
		sb   strings.Builder
		args []interface{}
	)
	sb.WriteString(`SELECT ` + caseColumns + ` FROM reimbursement_cases`)

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		sb.WriteString(` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`)
	}
	sb.WriteString(` ORDER BY updated_at DESC, id`)
	if filter.Limit > 0 {
		sb.WriteString(` LIMIT ? OFFSET ?`)
		args = append(args, filter.Limit, filter.Offset)
	}

	exec := r.db.Executor(ctx)
	var rows []caseRow
	if err := sqlx.SelectContext(ctx, exec, &rows, exec.Rebind(sb.String()), args...); err != nil {
		r.logger.Error("Failed to list cases", zap.Error(err))
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}

	cases := make([]*entity.ReimbursementCase, 0, len(rows))
	for i := range rows {
		c, err := rows[i].toEntity()
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, nil
}

// MarkReimbursed flags the payout as done and moves the case to PROCESSED
func (r *CaseRepository) MarkReimbursed(ctx context.Context, id, lastAction string) error {
	query := `
		UPDATE reimbursement_cases
		SET reimbursed_done = ?, status = ?, last_action = ?, updated_at = ?
		WHERE id = ?
	`
	exec := r.db.Executor(ctx)
	result, err := exec.ExecContext(ctx, exec.Rebind(query),
		true, string(entity.CaseStatusProcessed), lastAction, time.Now(), id)
	if err != nil {
		r.logger.Error("Failed to mark case reimbursed", zap.String("case_id", id), zap.Error(err))
		return fmt.Errorf("failed to mark case reimbursed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return entity.ErrCaseNotFound
	}
	return nil
}

// Delete removes the case; attachments and notifications cascade
func (r *CaseRepository) Delete(ctx context.Context, id string) error {
	exec := r.db.Executor(ctx)
	result, err := exec.ExecContext(ctx, exec.Rebind(`DELETE FROM reimbursement_cases WHERE id = ?`), id)
	if err != nil {
		r.logger.Error("Failed to delete case", zap.String("case_id", id), zap.Error(err))
		return fmt.Errorf("failed to delete case: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return entity.ErrCaseNotFound
	}
	return nil
}
