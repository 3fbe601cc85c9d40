package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/port"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
	"github.com/garyjia/ai-reimbursement-triage/internal/infrastructure/persistence/sqldb"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// NotificationRepository implements port.NotificationRepository
type NotificationRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sqldb.DB, logger *zap.Logger) port.NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends a notification to the log
func (r *NotificationRepository) Create(ctx context.Context, n *entity.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	var sentAt sql.NullTime
	if n.SentAt != nil {
		sentAt = sql.NullTime{Time: *n.SentAt, Valid: true}
	}

	query := `
		INSERT INTO notifications (
			id, case_id, recipient, subject, body, status, error_message, sent_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	exec := r.db.Executor(ctx)
	_, err := exec.ExecContext(ctx, exec.Rebind(query),
		n.ID,
		n.CaseID,
		n.Recipient,
		n.Subject,
		n.Body,
		n.Status,
		n.ErrorMessage,
		sentAt,
		n.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create notification", zap.String("case_id", n.CaseID), zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// GetByCaseID returns the notification log of a case, oldest first
func (r *NotificationRepository) GetByCaseID(ctx context.Context, caseID string) ([]*entity.Notification, error) {
	query := `
		SELECT id, case_id, recipient, subject, body, status, error_message, sent_at, created_at
		FROM notifications
		WHERE case_id = ?
		ORDER BY created_at, id
	`
	exec := r.db.Executor(ctx)
	var rows []notificationRow
	if err := sqlx.SelectContext(ctx, exec, &rows, exec.Rebind(query), caseID); err != nil {
		r.logger.Error("Failed to get notifications", zap.String("case_id", caseID), zap.Error(err))
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}

	out := make([]*entity.Notification, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toEntity())
	}
	return out, nil
}

// DeleteByCaseID removes the notification log of a case
func (r *NotificationRepository) DeleteByCaseID(ctx context.Context, caseID string) error {
	exec := r.db.Executor(ctx)
	if _, err := exec.ExecContext(ctx, exec.Rebind(`DELETE FROM notifications WHERE case_id = ?`), caseID); err != nil {
		return fmt.Errorf("failed to delete notifications: %w", err)
	}
	return nil
}
