package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/dispatcher"
	"github.com/garyjia/ai-reimbursement-triage/internal/application/port"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/event"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrBatchRunning is returned when a batch is requested while one is in flight
var ErrBatchRunning = errors.New("a batch pass is already running")

// CaseRunner processes one case; *CaseProcessor implements it
type CaseRunner interface {
	Process(ctx context.Context, caseID string) (*ProcessResult, error)
}

// BatchConfig bounds one batch pass
type BatchConfig struct {
	ScanDays  int
	MaxPerRun int
	BatchSize int
	// CaseTimeout bounds a single case; zero means no limit
	CaseTimeout time.Duration
}

// BatchReport summarises one batch pass
type BatchReport struct {
	RunID     string            `json:"run_id"`
	Listed    int               `json:"listed"`
	Skipped   int               `json:"skipped"`
	Processed int               `json:"processed"`
	Failed    int               `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"`
	Duration  time.Duration     `json:"duration"`
}

// BatchRunner lists the mailbox and processes eligible cases in parallel
type BatchRunner struct {
	mailbox    port.Mailbox
	cases      port.CaseRepository
	runner     CaseRunner
	dispatcher dispatcher.Dispatcher
	cfg        BatchConfig
	logger     Logger

	running atomic.Bool
	now     func() time.Time
}

// NewBatchRunner creates a new BatchRunner
func NewBatchRunner(mailbox port.Mailbox, cases port.CaseRepository, runner CaseRunner, d dispatcher.Dispatcher, cfg BatchConfig, logger Logger) *BatchRunner {
	if cfg.MaxPerRun <= 0 {
		cfg.MaxPerRun = 20
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.ScanDays <= 0 {
		cfg.ScanDays = 120
	}
	return &BatchRunner{
		mailbox:    mailbox,
		cases:      cases,
		runner:     runner,
		dispatcher: d,
		cfg:        cfg,
		logger:     orNop(logger),
		now:        time.Now,
	}
}

// Running reports whether a pass is in flight
func (b *BatchRunner) Running() bool {
	return b.running.Load()
}

// Run performs one pass. Cases fail independently; only listing errors
// abort the pass.
func (b *BatchRunner) Run(ctx context.Context) (*BatchReport, error) {
	if !b.running.CompareAndSwap(false, true) {
		return nil, ErrBatchRunning
	}
	defer b.running.Store(false)

	start := b.now()
	report := &BatchReport{RunID: uuid.NewString(), Errors: map[string]string{}}
	log := b.logger

	since := start.AddDate(0, 0, -b.cfg.ScanDays)
	refs, err := b.mailbox.List(ctx, since, b.cfg.MaxPerRun*3)
	if err != nil {
		log.Error("Failed to list mailbox", "run_id", report.RunID, "error", err)
		return nil, fmt.Errorf("list mailbox: %w", err)
	}
	report.Listed = len(refs)

	var eligible []string
	for _, ref := range refs {
		if len(eligible) >= b.cfg.MaxPerRun {
			break
		}
		existing, err := b.cases.GetByID(ctx, ref.ID)
		if err != nil {
			report.Failed++
			report.Errors[ref.ID] = err.Error()
			continue
		}
		if existing != nil && !existing.Status.Reprocessable() {
			report.Skipped++
			continue
		}
		eligible = append(eligible, ref.ID)
	}

	log.Info("Batch pass started", "run_id", report.RunID, "listed", len(refs), "eligible", len(eligible))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.BatchSize)
	for _, id := range eligible {
		id := id
		g.Go(func() error {
			cctx := gctx
			if b.cfg.CaseTimeout > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(gctx, b.cfg.CaseTimeout)
				defer cancel()
			}

			_, err := b.runner.Process(cctx, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Error("Case pass failed", "run_id", report.RunID, "case_id", id, "error", err)
				report.Failed++
				report.Errors[id] = err.Error()
				return nil
			}
			report.Processed++
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = b.now().Sub(start)
	log.Info("Batch pass finished",
		"run_id", report.RunID,
		"processed", report.Processed,
		"skipped", report.Skipped,
		"failed", report.Failed)

	if b.dispatcher != nil {
		b.dispatcher.DispatchAsync(ctx, event.New(event.TypeBatchCompleted, "", event.BatchCompleted{
			Listed:    report.Listed,
			Skipped:   report.Skipped,
			Processed: report.Processed,
			Failed:    report.Failed,
		}, report.RunID))
	}
	return report, nil
}
