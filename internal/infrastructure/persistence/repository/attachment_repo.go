package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/port"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
	"github.com/garyjia/ai-reimbursement-triage/internal/infrastructure/persistence/sqldb"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// AttachmentRepository implements port.AttachmentRepository
type AttachmentRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewAttachmentRepository creates a new attachment repository
func NewAttachmentRepository(db *sqldb.DB, logger *zap.Logger) port.AttachmentRepository {
	return &AttachmentRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert writes the attachment keyed by (case_id, file_name)
func (r *AttachmentRepository) Upsert(ctx context.Context, att *entity.Attachment) error {
	now := time.Now()
	if att.CreatedAt.IsZero() {
		att.CreatedAt = now
	}
	att.UpdatedAt = now
	if att.OCRStatus == "" {
		att.OCRStatus = entity.OCRStatusPending
	}

	var ocrResult sql.NullString
	if att.OCRResult != nil {
		data, err := json.Marshal(att.OCRResult)
		if err != nil {
			return fmt.Errorf("failed to marshal ocr result: %w", err)
		}
		ocrResult = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO attachments (
			case_id, file_name, file_path, file_type, file_size, ocr_result,
			ocr_status, ocr_error, extracted_from, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (case_id, file_name) DO UPDATE SET
			file_path = excluded.file_path,
			file_type = excluded.file_type,
			file_size = excluded.file_size,
			ocr_result = excluded.ocr_result,
			ocr_status = excluded.ocr_status,
			ocr_error = excluded.ocr_error,
			extracted_from = excluded.extracted_from,
			updated_at = excluded.updated_at
	`

	exec := r.db.Executor(ctx)
	_, err := exec.ExecContext(ctx, exec.Rebind(query),
		att.CaseID,
		att.FileName,
		att.FilePath,
		att.FileType,
		att.FileSize,
		ocrResult,
		string(att.OCRStatus),
		att.OCRError,
		att.ExtractedFrom,
		att.CreatedAt,
		att.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to upsert attachment",
			zap.String("case_id", att.CaseID),
			zap.String("file_name", att.FileName),
			zap.Error(err))
		return fmt.Errorf("failed to upsert attachment: %w", err)
	}
	return nil
}

// GetByCaseID retrieves all attachments for a case in file name order
func (r *AttachmentRepository) GetByCaseID(ctx context.Context, caseID string) ([]*entity.Attachment, error) {
	query := `
		SELECT id, case_id, file_name, file_path, file_type, file_size, ocr_result,
		       ocr_status, ocr_error, extracted_from, created_at, updated_at
		FROM attachments
		WHERE case_id = ?
		ORDER BY file_name
	`
	exec := r.db.Executor(ctx)
	var rows []attachmentRow
	if err := sqlx.SelectContext(ctx, exec, &rows, exec.Rebind(query), caseID); err != nil {
		r.logger.Error("Failed to get attachments", zap.String("case_id", caseID), zap.Error(err))
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}

	attachments := make([]*entity.Attachment, 0, len(rows))
	for i := range rows {
		a, err := rows[i].toEntity()
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, a)
	}
	return attachments, nil
}

// DeleteByCaseID removes every attachment row of a case
func (r *AttachmentRepository) DeleteByCaseID(ctx context.Context, caseID string) error {
	exec := r.db.Executor(ctx)
	if _, err := exec.ExecContext(ctx, exec.Rebind(`DELETE FROM attachments WHERE case_id = ?`), caseID); err != nil {
		return fmt.Errorf("failed to delete attachments: %w", err)
	}
	return nil
}
