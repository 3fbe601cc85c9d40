package service

import (
	"context"
	"fmt"
	"io"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/dispatcher"
	"github.com/garyjia/ai-reimbursement-triage/internal/application/port"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/event"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/workflow"
)

// CaseDetail is a case with everything recorded about it
type CaseDetail struct {
	Case          *entity.ReimbursementCase `json:"case"`
	Attachments   []*entity.Attachment      `json:"attachments"`
	Notifications []*entity.Notification    `json:"notifications"`
}

// CaseAdmin holds the operator-facing operations that sit outside the triage pass
type CaseAdmin struct {
	cases         port.CaseRepository
	attachments   port.AttachmentRepository
	notifications port.NotificationRepository
	store         port.AttachmentStore
	tx            port.TransactionManager
	exporter      port.CaseExporter
	dispatcher    dispatcher.Dispatcher
	logger        Logger
}

// NewCaseAdmin creates a new CaseAdmin
func NewCaseAdmin(
	cases port.CaseRepository,
	attachments port.AttachmentRepository,
	notifications port.NotificationRepository,
	store port.AttachmentStore,
	tx port.TransactionManager,
	exporter port.CaseExporter,
	d dispatcher.Dispatcher,
	logger Logger,
) *CaseAdmin {
	return &CaseAdmin{
		cases:         cases,
		attachments:   attachments,
		notifications: notifications,
		store:         store,
		tx:            tx,
		exporter:      exporter,
		dispatcher:    d,
		logger:        orNop(logger),
	}
}

// List returns cases matching the filter
func (a *CaseAdmin) List(ctx context.Context, filter entity.CaseFilter) ([]*entity.ReimbursementCase, error) {
	return a.cases.List(ctx, filter)
}

// Get returns a case with its attachments and notification log
func (a *CaseAdmin) Get(ctx context.Context, id string) (*CaseDetail, error) {
	c, err := a.cases.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get case: %w", err)
	}
	if c == nil {
		return nil, entity.ErrCaseNotFound
	}
	atts, err := a.attachments.GetByCaseID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get attachments: %w", err)
	}
	notes, err := a.notifications.GetByCaseID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get notifications: %w", err)
	}
	return &CaseDetail{Case: c, Attachments: atts, Notifications: notes}, nil
}

// MarkReimbursed confirms a payout. Only READY cases with complete materials
// can move to PROCESSED.
func (a *CaseAdmin) MarkReimbursed(ctx context.Context, id, operator string) (*entity.ReimbursementCase, error) {
	c, err := a.cases.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get case: %w", err)
	}
	if c == nil {
		return nil, entity.ErrCaseNotFound
	}

	err = workflow.Transition(ctx, c.Status, entity.CaseStatusProcessed, workflow.CaseFacts{MaterialsOK: c.MaterialsOK})
	if err != nil {
		return nil, fmt.Errorf("case %s is %s: %w", id, c.Status, err)
	}

	action := "reimbursed"
	if operator != "" {
		action = "reimbursed, confirmed by " + operator
	}
	if err := a.cases.MarkReimbursed(ctx, id, action); err != nil {
		return nil, fmt.Errorf("mark reimbursed: %w", err)
	}

	c.ReimbursedDone = true
	c.Status = entity.CaseStatusProcessed
	c.LastAction = action
	a.logger.Info("Case marked reimbursed", "case_id", id, "operator", operator)

	if a.dispatcher != nil {
		a.dispatcher.DispatchAsync(ctx, event.New(event.TypeCaseReimbursed, id, event.CaseReimbursed{Case: *c}, ""))
	}
	return c, nil
}

// Delete removes the case record, its logs and its stored files
func (a *CaseAdmin) Delete(ctx context.Context, id string) error {
	err := a.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := a.notifications.DeleteByCaseID(ctx, id); err != nil {
			return err
		}
		if err := a.attachments.DeleteByCaseID(ctx, id); err != nil {
			return err
		}
		return a.cases.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	if a.store != nil {
		if err := a.store.Remove(ctx, id); err != nil {
			a.logger.Warn("Failed to remove case files", "case_id", id, "error", err)
		}
	}
	a.logger.Info("Case deleted", "case_id", id)
	return nil
}

// Export writes the filtered cases with the configured exporter
func (a *CaseAdmin) Export(ctx context.Context, w io.Writer, filter entity.CaseFilter) error {
	if a.exporter == nil {
		return fmt.Errorf("no exporter configured")
	}
	cases, err := a.cases.List(ctx, filter)
	if err != nil {
		return fmt.Errorf("list cases: %w", err)
	}
	return a.exporter.Export(w, cases)
}

// ExportContentType is the MIME type of Export output
func (a *CaseAdmin) ExportContentType() string {
	if a.exporter == nil {
		return "application/octet-stream"
	}
	return a.exporter.ContentType()
}
