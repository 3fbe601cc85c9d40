package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/dispatcher"
	"github.com/garyjia/ai-reimbursement-triage/internal/application/port"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/completeness"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/decision"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/event"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/reconcile"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/workflow"
	"golang.org/x/sync/errgroup"
)

// Oracle stages reported on case.decided events
const (
	StageExtract   = "extract"
	StageOCR       = "ocr"
	StageReconcile = "reconcile"
)

// ProcessorDeps are the collaborators of a CaseProcessor
type ProcessorDeps struct {
	Mailbox       port.Mailbox
	Store         port.AttachmentStore
	Cases         port.CaseRepository
	Attachments   port.AttachmentRepository
	Notifications port.NotificationRepository
	Tx            port.TransactionManager
	Extractor     *FactExtractor
	Reader        *ReceiptReader
	Engine        *reconcile.Engine
	Composer      *ClarificationComposer
	// Notifier may be nil, in which case clarifications are only logged
	Notifier   port.Notifier
	Dispatcher dispatcher.Dispatcher
	Logger     Logger
}

// ProcessorConfig tunes a CaseProcessor
type ProcessorConfig struct {
	OCRConcurrency int
	NotifyEnabled  bool
}

// ProcessResult is the outcome of one pass over one case
type ProcessResult struct {
	Case    *entity.ReimbursementCase
	Outcome decision.Outcome
	// Skipped is set for PROCESSED cases, which are never re-evaluated
	Skipped     bool
	Notified    bool
	NotifyError error
}

// CaseProcessor runs the triage pass for one mailbox message
type CaseProcessor struct {
	deps  ProcessorDeps
	cfg   ProcessorConfig
	locks *keyedMutex
}

// NewCaseProcessor creates a new CaseProcessor
func NewCaseProcessor(deps ProcessorDeps, cfg ProcessorConfig) *CaseProcessor {
	deps.Logger = orNop(deps.Logger)
	if cfg.OCRConcurrency <= 0 {
		cfg.OCRConcurrency = 4
	}
	return &CaseProcessor{deps: deps, cfg: cfg, locks: newKeyedMutex()}
}

// Process fetches the message, adjudicates it and writes the case once.
// Oracle, storage and notification failures end up as issues on the case.
// Only *entity.PersistenceError and mailbox fetch errors are returned.
func (p *CaseProcessor) Process(ctx context.Context, caseID string) (*ProcessResult, error) {
	unlock := p.locks.Lock(caseID)
	defer unlock()

	start := time.Now()
	log := p.deps.Logger

	existing, err := p.deps.Cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, &entity.PersistenceError{CaseID: caseID, Op: "load", Err: err}
	}
	if existing != nil && existing.Status == entity.CaseStatusProcessed {
		log.Info("Case already processed, skipping", "case_id", caseID)
		return &ProcessResult{Case: existing, Skipped: true}, nil
	}

	msg, err := p.deps.Mailbox.Fetch(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("fetch message %s: %w", caseID, err)
	}

	var (
		intake         []string
		oracleFailures []string
	)

	attachments, storeIssues := p.storeAttachments(ctx, caseID, msg.Attachments)
	intake = append(intake, storeIssues...)
	for _, s := range msg.Skipped {
		log.Warn("Attachment skipped", "case_id", caseID, "file", s.FileName, "reason", s.Reason)
		intake = append(intake, fmt.Sprintf("attachment %s was not read: %s", s.FileName, s.Reason))
	}

	extraction := p.deps.Extractor.Extract(ctx, msg.Subject, msg.Body)
	facts := extraction.Facts
	relevant := facts.AIRelated || len(facts.Items) > 0
	if !extraction.Ok() {
		oracleFailures = append(oracleFailures, StageExtract)
		relevant = true
		intake = append(intake, "the claim could not be read from the email automatically: "+extraction.Malformed.Reason)
		log.Warn("Claim extraction malformed", "case_id", caseID, "reason", extraction.Malformed.Reason)
	} else if relevant && len(facts.Items) == 0 {
		intake = append(intake, "no claimed AI tool expense items found in the email")
	}

	in := decision.Input{Relevant: relevant, IntakeIssues: intake}
	if relevant {
		observed, receiptIssues, ocrFailed := p.readReceipts(ctx, caseID, attachments)
		if ocrFailed {
			oracleFailures = append(oracleFailures, StageOCR)
		}
		in.IntakeIssues = append(in.IntakeIssues, receiptIssues...)

		report, err := p.deps.Engine.Reconcile(ctx, facts.Items, observed)
		if err != nil {
			oracleFailures = append(oracleFailures, StageReconcile)
			log.Warn("Reconciliation adjudication failed", "case_id", caseID, "error", err)
		}
		in.Reconciliation = report

		metas := make([]entity.AttachmentMeta, 0, len(attachments))
		for _, a := range attachments {
			metas = append(metas, a.Meta())
		}
		in.Completeness = completeness.Check(facts.Items, metas)
	}

	outcome := decision.Decide(in)

	from := entity.CaseStatusNew
	if existing != nil {
		from = existing.Status
	}
	if err := workflow.Transition(ctx, from, outcome.Status, workflow.CaseFacts{MaterialsOK: outcome.MaterialsOK}); err != nil {
		return nil, fmt.Errorf("case %s: %s -> %s: %w", caseID, from, outcome.Status, err)
	}

	rc := buildCase(caseID, existing, msg, facts, outcome)
	result := &ProcessResult{Case: rc, Outcome: outcome}

	var notification *entity.Notification
	if outcome.Notify {
		notification = p.notify(ctx, rc, in.Completeness.Missing, outcome.Issues, result)
	}

	err = p.deps.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := p.deps.Cases.Upsert(ctx, rc); err != nil {
			return err
		}
		for _, a := range attachments {
			if err := p.deps.Attachments.Upsert(ctx, a); err != nil {
				return err
			}
		}
		if notification != nil {
			if err := p.deps.Notifications.Create(ctx, notification); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Error("Failed to persist case", "case_id", caseID, "error", err)
		return nil, &entity.PersistenceError{CaseID: caseID, Op: "save", Err: err}
	}

	log.Info("Case decided",
		"case_id", caseID,
		"status", rc.Status,
		"issues", len(rc.Issues),
		"notified", result.Notified)

	if p.deps.Dispatcher != nil {
		payload := event.CaseDecided{
			Case:           *rc,
			PreviousStatus: from,
			Notified:       result.Notified,
			OracleFailures: oracleFailures,
			Duration:       time.Since(start),
		}
		if result.NotifyError != nil {
			payload.NotifyError = result.NotifyError.Error()
		}
		p.deps.Dispatcher.DispatchAsync(ctx, event.New(event.TypeCaseDecided, caseID, payload, ""))
	}

	return result, nil
}

// storeAttachments writes the message attachments and returns them as records.
// A stored name is recorded once per pass; the store keeps byte-identical
// attachments under one name, so a resent copy is read only once.
func (p *CaseProcessor) storeAttachments(ctx context.Context, caseID string, files []port.MailAttachment) ([]*entity.Attachment, []string) {
	var (
		out    []*entity.Attachment
		issues []string
	)
	if p.deps.Store == nil {
		return nil, nil
	}
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		stored, err := p.deps.Store.Save(ctx, caseID, f.FileName, f.Content)
		if err != nil {
			p.deps.Logger.Error("Failed to store attachment", "case_id", caseID, "file", f.FileName, "error", err)
			issues = append(issues, fmt.Sprintf("attachment %s could not be stored: %v", f.FileName, err))
		}
		for _, s := range stored {
			if seen[s.FileName] {
				continue
			}
			seen[s.FileName] = true
			out = append(out, &entity.Attachment{
				CaseID:        caseID,
				FileName:      s.FileName,
				FilePath:      s.Path,
				FileType:      s.FileType,
				FileSize:      s.Size,
				OCRStatus:     entity.OCRStatusPending,
				ExtractedFrom: s.ExtractedFrom,
			})
		}
	}
	return out, issues
}

// readReceipts OCRs every non-archive attachment concurrently and waits for all of them.
// Results are written onto the attachments; observed items keep attachment order.
func (p *CaseProcessor) readReceipts(ctx context.Context, caseID string, attachments []*entity.Attachment) ([]entity.ExpenseLineItem, []string, bool) {
	results := make([]*ReceiptResult, len(attachments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.OCRConcurrency)
	for i, a := range attachments {
		if a.IsContainer() {
			continue
		}
		i, a := i, a
		g.Go(func() error {
			res, err := p.deps.Reader.Read(gctx, a.FilePath)
			if err != nil {
				a.OCRStatus = entity.OCRStatusFailed
				a.OCRError = describeReadError(err)
				p.deps.Logger.Warn("Receipt read failed", "case_id", caseID, "file", a.FileName, "error", err)
				return nil
			}
			item := res.Item
			a.OCRStatus = entity.OCRStatusSuccess
			a.OCRResult = &item
			if len(res.PageErrors) > 0 {
				a.OCRError = strings.Join(pageErrorIssues(res.PageErrors), "; ")
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	var (
		observed  []entity.ExpenseLineItem
		issues    []string
		oracleErr bool
	)
	for i, a := range attachments {
		if a.OCRStatus == entity.OCRStatusFailed && !strings.HasPrefix(a.OCRError, "unsupported") {
			oracleErr = true
		}
		res := results[i]
		if res == nil {
			continue
		}
		observed = append(observed, res.Item)
		for _, s := range res.Issues {
			issues = append(issues, a.FileName+": "+s)
		}
	}
	return observed, issues, oracleErr
}

func describeReadError(err error) string {
	var unsupported *entity.UnsupportedFormatError
	if errors.As(err, &unsupported) {
		return fmt.Sprintf("unsupported file type %s", unsupported.Ext)
	}
	var rre *entity.ReceiptReadError
	if errors.As(err, &rre) {
		return rre.Reason
	}
	return err.Error()
}

// notify sends the clarification and returns the log entry to persist
func (p *CaseProcessor) notify(ctx context.Context, rc *entity.ReimbursementCase, missing []entity.MissingMaterial, issues []string, result *ProcessResult) *entity.Notification {
	log := p.deps.Logger

	if !p.cfg.NotifyEnabled || p.deps.Notifier == nil {
		rc.LastAction = "clarification needed (notifications disabled)"
		return nil
	}
	if rc.Sender == "" {
		rc.LastAction = "clarification needed: sender address unknown"
		return nil
	}

	msg, err := p.deps.Composer.Compose(ctx, rc, missing, issues)
	if err != nil {
		result.NotifyError = &entity.NotificationError{CaseID: rc.ID, Recipient: rc.Sender, Err: err}
		rc.LastAction = "clarification failed: " + err.Error()
		return nil
	}

	n := &entity.Notification{
		CaseID:    rc.ID,
		Recipient: msg.To,
		Subject:   msg.Subject,
		Body:      msg.Body,
	}
	if err := p.deps.Notifier.Send(ctx, msg); err != nil {
		nerr := &entity.NotificationError{CaseID: rc.ID, Recipient: msg.To, Err: err}
		log.Error("Failed to send clarification", "case_id", rc.ID, "error", nerr)
		result.NotifyError = nerr
		n.Status = entity.NotificationStatusFailed
		n.ErrorMessage = err.Error()
		rc.LastAction = "clarification failed: " + err.Error()
		return n
	}

	now := time.Now()
	n.Status = entity.NotificationStatusSent
	n.SentAt = &now
	result.Notified = true
	rc.LastAction = "clarification sent to " + msg.To
	return n
}

// buildCase applies this pass's facts and outcome to the stored record
func buildCase(caseID string, existing *entity.ReimbursementCase, msg *port.MailMessage, facts ClaimFacts, outcome decision.Outcome) *entity.ReimbursementCase {
	rc := &entity.ReimbursementCase{}
	if existing != nil {
		rc.CreatedAt = existing.CreatedAt
		rc.ReimbursedDone = existing.ReimbursedDone
	}

	rc.ID = caseID
	rc.Subject = msg.Subject
	rc.Sender = msg.From
	rc.MessageID = msg.MessageID
	rc.References = msg.References
	rc.Body = msg.Body

	rc.ApplicantName = facts.ApplicantName
	if rc.ApplicantName == "" {
		rc.ApplicantName = msg.FromName
	}
	rc.Department = facts.Department
	rc.ClaimedDate = facts.ClaimedDate
	if rc.ClaimedDate == nil && !msg.Date.IsZero() {
		d := msg.Date
		rc.ClaimedDate = &d
	}
	rc.Tools = facts.Items
	rc.TotalAmount = facts.TotalAmount
	rc.Currency = facts.Currency

	rc.Status = outcome.Status
	rc.MaterialsOK = outcome.MaterialsOK
	rc.Issues = outcome.Issues
	rc.LastAction = outcome.LastAction
	return rc
}
