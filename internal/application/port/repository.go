package port

import (
	"context"

	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
)

// CaseRepository persists reimbursement cases keyed by mailbox message id
type CaseRepository interface {
	// Upsert inserts the case or updates it in place, as one conditional write
	Upsert(ctx context.Context, c *entity.ReimbursementCase) error
	// GetByID returns nil, nil when the case does not exist
	GetByID(ctx context.Context, id string) (*entity.ReimbursementCase, error)
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, filter entity.CaseFilter) ([]*entity.ReimbursementCase, error)
	// MarkReimbursed records an operator payout confirmation
	MarkReimbursed(ctx context.Context, id, lastAction string) error
	Delete(ctx context.Context, id string) error
}

// AttachmentRepository persists attachments keyed by (case id, file name)
type AttachmentRepository interface {
	Upsert(ctx context.Context, a *entity.Attachment) error
	GetByCaseID(ctx context.Context, caseID string) ([]*entity.Attachment, error)
	DeleteByCaseID(ctx context.Context, caseID string) error
}

// NotificationRepository keeps the log of clarification messages
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	GetByCaseID(ctx context.Context, caseID string) ([]*entity.Notification, error)
	DeleteByCaseID(ctx context.Context, caseID string) error
}

// TransactionManager runs a function inside one database transaction
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
