package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/service"
)

// BatchRunner runs one mailbox scan
type BatchRunner interface {
	Run(ctx context.Context) (*service.BatchReport, error)
}

// PollerStatus is a snapshot of the poller state
type PollerStatus struct {
	Running    bool                 `json:"running"`
	LastRun    time.Time            `json:"last_run,omitempty"`
	LastReport *service.BatchReport `json:"last_report,omitempty"`
	LastError  string               `json:"last_error,omitempty"`
	Runs       int                  `json:"runs"`
}

// MailboxPoller runs a batch pass immediately on start and then on every
// tick of the poll interval
type MailboxPoller struct {
	runner   BatchRunner
	interval time.Duration
	logger   *zap.Logger

	mu     sync.RWMutex
	cancel context.CancelFunc
	done   chan struct{}
	status PollerStatus
}

// NewMailboxPoller creates a new MailboxPoller
func NewMailboxPoller(runner BatchRunner, interval time.Duration, logger *zap.Logger) *MailboxPoller {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &MailboxPoller{runner: runner, interval: interval, logger: logger}
}

// Name returns the worker name for identification
func (p *MailboxPoller) Name() string {
	return "MailboxPoller"
}

// Start begins the polling loop in the background
func (p *MailboxPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status.Running {
		return fmt.Errorf("mailbox poller already running")
	}

	var loopCtx context.Context
	loopCtx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.status.Running = true

	p.logger.Info("MailboxPoller started", zap.Duration("poll_interval", p.interval))
	go p.loop(loopCtx, p.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight pass to return
func (p *MailboxPoller) Stop() error {
	p.mu.Lock()
	if !p.status.Running {
		p.mu.Unlock()
		return nil
	}
	p.status.Running = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done

	p.logger.Info("MailboxPoller stopped")
	return nil
}

// Status returns a snapshot of the poller state
func (p *MailboxPoller) Status() PollerStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

func (p *MailboxPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *MailboxPoller) runOnce(ctx context.Context) {
	report, err := p.runner.Run(ctx)
	if errors.Is(err, service.ErrBatchRunning) {
		p.logger.Debug("Skipping poll, a batch pass is in flight")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Runs++
	p.status.LastRun = time.Now()
	if err != nil {
		p.status.LastError = err.Error()
		p.logger.Error("Mailbox poll failed", zap.Error(err))
		return
	}
	p.status.LastError = ""
	p.status.LastReport = report
}
