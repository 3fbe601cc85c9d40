// Package container provides dependency injection and lifecycle management
// for the triage service. Components are built in dependency order and
// torn down in reverse.
package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/dispatcher"
	"github.com/garyjia/ai-reimbursement-triage/internal/application/port"
	"github.com/garyjia/ai-reimbursement-triage/internal/application/service"
	"github.com/garyjia/ai-reimbursement-triage/internal/config"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/event"
	infraLark "github.com/garyjia/ai-reimbursement-triage/internal/infrastructure/external/lark"
	"github.com/garyjia/ai-reimbursement-triage/internal/infrastructure/export"
	"github.com/garyjia/ai-reimbursement-triage/internal/infrastructure/metrics"
	"github.com/garyjia/ai-reimbursement-triage/internal/infrastructure/render"
	"github.com/garyjia/ai-reimbursement-triage/internal/infrastructure/storage"
	"github.com/garyjia/ai-reimbursement-triage/internal/infrastructure/worker"
	httpapi "github.com/garyjia/ai-reimbursement-triage/internal/interfaces/http"
)

// Mode selects how much of the graph is built
type Mode int

const (
	// ModeAdmin builds storage and the admin service only. It needs no
	// mailbox, model or SMTP credentials.
	ModeAdmin Mode = iota
	// ModeFull also builds the mailbox, oracles, notifier and batch runner.
	ModeFull
)

// Container manages all application dependencies and lifecycle.
type Container struct {
	config *config.Config
	logger *zap.Logger
	mode   Mode

	// Infrastructure - Data
	database     *DatabaseBundle
	repositories *RepositoryBundle
	store        port.AttachmentStore

	// Infrastructure - External
	mailbox  port.Mailbox
	oracles  *OracleBundle
	notifier port.Notifier
	alerter  *infraLark.Alerter

	// Application
	dispatcher dispatcher.Dispatcher
	metrics    *metrics.Recorder
	admin      *service.CaseAdmin
	processor  *service.CaseProcessor
	batch      *service.BatchRunner

	// Workers
	workers *worker.WorkerManager
	poller  *worker.MailboxPoller

	mu     sync.Mutex
	closed atomic.Bool
}

// New builds the object graph. The database is opened and migrated.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, mode Mode) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if mode == ModeFull {
		if err := cfg.ValidateRuntime(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}

	c := &Container{config: cfg, logger: logger, mode: mode}

	if err := c.build(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}

	logger.Info("Container initialized", zap.Bool("full", mode == ModeFull))
	return c, nil
}

func (c *Container) build(ctx context.Context) error {
	cfg := c.config

	// Step 1: database and repositories
	db, err := ProvideDatabase(ctx, &cfg.Database, c.logger.Named("db"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.database = db
	c.repositories = ProvideRepositories(db.Tx, c.logger)

	// Step 2: storage, events and metrics
	c.store = storage.NewLocalFileStorage(cfg.Storage.AttachmentsDir, c.logger.Named("storage"))
	c.dispatcher = ProvideDispatcher(c.logger)
	c.metrics = metrics.NewRecorder()

	c.admin = service.NewCaseAdmin(
		c.repositories.Cases,
		c.repositories.Attachments,
		c.repositories.Notifications,
		c.store,
		db.Tx,
		export.NewXLSXExporter(c.logger.Named("export")),
		c.dispatcher,
		NewLoggerAdapter(c.logger.Named("admin")),
	)

	if c.mode == ModeFull {
		if err := c.buildPipeline(ctx); err != nil {
			return err
		}
	}

	c.subscribe()
	return nil
}

// buildPipeline creates the components a live processing pass needs
func (c *Container) buildPipeline(ctx context.Context) error {
	cfg := c.config

	mb, err := ProvideMailbox(ctx, &cfg.Mailbox, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize mailbox: %w", err)
	}
	c.mailbox = mb

	c.oracles = ProvideOracles(&cfg.LLM, &cfg.VLM, c.logger)
	c.notifier = ProvideNotifier(cfg, c.logger)
	c.alerter = ProvideAlerter(&cfg.Lark, c.logger)

	svcLogger := NewLoggerAdapter(c.logger.Named("triage"))

	engine, err := ProvideReconcileEngine(&cfg.Reconcile, c.oracles.Text, svcLogger)
	if err != nil {
		return err
	}

	var draftOracle port.TextOracle
	if cfg.Notify.LLMDraft {
		draftOracle = c.oracles.Text
	}

	c.processor = service.NewCaseProcessor(service.ProcessorDeps{
		Mailbox:       c.mailbox,
		Store:         c.store,
		Cases:         c.repositories.Cases,
		Attachments:   c.repositories.Attachments,
		Notifications: c.repositories.Notifications,
		Tx:            c.database.Tx,
		Extractor:     service.NewFactExtractor(c.oracles.Text, svcLogger),
		Reader: service.NewReceiptReader(
			c.oracles.Vision,
			render.NewPDFRenderer(cfg.Processing.MaxPDFPages, c.logger.Named("render")),
			svcLogger,
		),
		Engine:     engine,
		Composer:   service.NewClarificationComposer(draftOracle, svcLogger),
		Notifier:   c.notifier,
		Dispatcher: c.dispatcher,
		Logger:     svcLogger,
	}, service.ProcessorConfig{
		OCRConcurrency: cfg.Processing.OCRConcurrency,
		NotifyEnabled:  cfg.Notify.Enabled,
	})

	c.batch = service.NewBatchRunner(c.mailbox, c.repositories.Cases, c.processor, c.dispatcher, service.BatchConfig{
		ScanDays:    cfg.Mailbox.ScanDays,
		MaxPerRun:   cfg.Mailbox.MaxPerRun,
		BatchSize:   cfg.Processing.BatchSize,
		CaseTimeout: cfg.Processing.CaseTimeout,
	}, NewLoggerAdapter(c.logger.Named("batch")))

	return nil
}

// subscribe registers the event handlers of the built components
func (c *Container) subscribe() {
	d := c.dispatcher
	d.Subscribe(event.TypeCaseDecided, "metrics", c.metrics.HandleCaseDecided)
	d.Subscribe(event.TypeCaseReimbursed, "metrics", c.metrics.HandleCaseReimbursed)
	d.Subscribe(event.TypeBatchCompleted, "metrics", c.metrics.HandleBatchCompleted)
	if c.alerter != nil {
		d.Subscribe(event.TypeCaseDecided, "lark_alert", c.alerter.HandleCaseDecided)
	}
}

// StartPoller registers the mailbox poller and starts all workers.
// Only valid in ModeFull.
func (c *Container) StartPoller(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.batch == nil {
		return fmt.Errorf("poller needs a container built in full mode")
	}
	if c.workers != nil {
		return fmt.Errorf("workers already started")
	}

	c.workers = worker.NewWorkerManager(c.logger.Named("worker"))
	c.poller = worker.NewMailboxPoller(c.batch, c.config.Processing.PollInterval, c.logger.Named("poller"))
	c.workers.Register(c.poller)

	if err := c.workers.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	return nil
}

// HTTPServer builds the admin API over the container's services
func (c *Container) HTTPServer() *httpapi.Server {
	srvCfg := httpapi.ServerConfig{
		Host:         c.config.Server.Host,
		Port:         c.config.Server.Port,
		ReadTimeout:  c.config.Server.ReadTimeout,
		WriteTimeout: c.config.Server.WriteTimeout,
		AdminToken:   c.config.Server.AdminToken,
	}

	deps := httpapi.Deps{
		Admin:   c.admin,
		Metrics: c.metrics.Handler(),
		Status:  c.workerStatus,
		Logger:  NewLoggerAdapter(c.logger.Named("http")),
	}
	// Typed nils would defeat the handlers' nil checks
	if c.processor != nil {
		deps.Processor = c.processor
	}
	if c.batch != nil {
		deps.Batch = c.batch
	}
	return httpapi.NewServer(srvCfg, deps)
}

func (c *Container) workerStatus() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poller == nil {
		return nil
	}
	return c.poller.Status()
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("container already closed")
	}

	var errs []error

	// Step 1: stop workers so no new pass starts
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}

	// Step 2: drain async event handlers
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
	}

	// Step 3: mailbox connection
	if c.mailbox != nil {
		if err := c.mailbox.Close(); err != nil {
			c.logger.Warn("Failed to close mailbox", zap.Error(err))
			errs = append(errs, fmt.Errorf("close mailbox: %w", err))
		}
	}

	// Step 4: database
	if c.database != nil {
		if err := c.database.Conn.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	c.logger.Info("Container closed")
	return nil
}

// Admin returns the operator service.
func (c *Container) Admin() *service.CaseAdmin {
	return c.admin
}

// Processor returns the case processor, nil in ModeAdmin.
func (c *Container) Processor() *service.CaseProcessor {
	return c.processor
}

// Batch returns the batch runner, nil in ModeAdmin.
func (c *Container) Batch() *service.BatchRunner {
	return c.batch
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Metrics returns the Prometheus recorder.
func (c *Container) Metrics() *metrics.Recorder {
	return c.metrics
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}
