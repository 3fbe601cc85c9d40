package container

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/dispatcher"
	"github.com/garyjia/ai-reimbursement-triage/internal/application/port"
	"github.com/garyjia/ai-reimbursement-triage/internal/application/service"
	"github.com/garyjia/ai-reimbursement-triage/internal/config"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/reconcile"
	infraLark "github.com/garyjia/ai-reimbursement-triage/internal/infrastructure/external/lark"
	"github.com/garyjia/ai-reimbursement-triage/internal/infrastructure/external/openai"
	"github.com/garyjia/ai-reimbursement-triage/internal/infrastructure/mailbox"
	"github.com/garyjia/ai-reimbursement-triage/internal/infrastructure/notifier"
	"github.com/garyjia/ai-reimbursement-triage/internal/infrastructure/persistence/repository"
	"github.com/garyjia/ai-reimbursement-triage/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/ai-reimbursement-triage/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn *database.DB
	Tx   *sqldb.DB
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Cases         port.CaseRepository
	Attachments   port.AttachmentRepository
	Notifications port.NotificationRepository
}

// OracleBundle holds the text and vision model clients.
type OracleBundle struct {
	Text   *openai.Client
	Vision *openai.Client
}

// ProvideDatabase opens the record store and applies pending migrations.
func ProvideDatabase(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	conn, err := database.New(ctx, database.Config{
		Driver:          cfg.Driver,
		Path:            cfg.Path,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(conn, logger).Run(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{Conn: conn, Tx: sqldb.NewDB(conn.DB, logger)}, nil
}

// ProvideRepositories creates all repositories over one transaction manager.
func ProvideRepositories(db *sqldb.DB, logger *zap.Logger) *RepositoryBundle {
	return &RepositoryBundle{
		Cases:         repository.NewCaseRepository(db, logger),
		Attachments:   repository.NewAttachmentRepository(db, logger),
		Notifications: repository.NewNotificationRepository(db, logger),
	}
}

// ProvideOracles creates the chat completion clients. The vision client
// falls back to the text settings already merged by config.Load.
func ProvideOracles(llm, vlm *config.OracleConfig, logger *zap.Logger) *OracleBundle {
	return &OracleBundle{
		Text:   openai.NewClient(oracleConfig(llm), logger.Named("llm")),
		Vision: openai.NewClient(oracleConfig(vlm), logger.Named("vlm")),
	}
}

func oracleConfig(cfg *config.OracleConfig) openai.Config {
	return openai.Config{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout,
	}
}

// ProvideMailbox creates the mailbox reader selected by mailbox.driver.
func ProvideMailbox(ctx context.Context, cfg *config.MailboxConfig, logger *zap.Logger) (port.Mailbox, error) {
	filter := mailbox.NewKeywordFilter(cfg.Keywords)
	logger = logger.Named("mailbox")

	switch cfg.Driver {
	case "imap":
		return mailbox.NewIMAPMailbox(mailbox.IMAPConfig{
			Host:         cfg.Host,
			Port:         cfg.Port,
			Username:     cfg.Username,
			Password:     cfg.Password,
			Folder:       cfg.Folder,
			MarkSeen:     cfg.MarkSeen,
			DialAttempts: cfg.DialAttempts,
			DialDelay:    cfg.DialDelay,
		}, filter, logger), nil
	case "gmail":
		return mailbox.NewGmailMailbox(ctx, cfg.GmailCredentialsFile, cfg.GmailTokenFile, filter, logger)
	case "mbox":
		return mailbox.NewMboxMailbox(cfg.MboxPath, filter, logger), nil
	default:
		return nil, fmt.Errorf("unsupported mailbox driver %q", cfg.Driver)
	}
}

// ProvideNotifier creates the SMTP notifier, or nil when delivery is disabled.
func ProvideNotifier(cfg *config.Config, logger *zap.Logger) port.Notifier {
	if !cfg.Notify.Enabled || cfg.SMTP.Host == "" {
		logger.Info("Clarification delivery disabled, replies are only logged")
		return nil
	}
	return notifier.NewSMTPNotifier(notifier.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		Security: cfg.SMTP.Security,
		Attempts: cfg.SMTP.Attempts,
		Delay:    cfg.SMTP.Delay,
	}, logger.Named("smtp"))
}

// ProvideReconcileEngine builds the grading engine from the configured policy.
// With use_oracle off, items are paired by tool alias only.
func ProvideReconcileEngine(cfg *config.ReconcileConfig, text port.TextOracle, logger Logger) (*reconcile.Engine, error) {
	policy := reconcile.DefaultPolicy()
	if cfg.AmountTolerance != "" {
		tol, err := decimal.NewFromString(cfg.AmountTolerance)
		if err != nil {
			return nil, fmt.Errorf("invalid reconcile.amount_tolerance %q: %w", cfg.AmountTolerance, err)
		}
		if tol.IsNegative() {
			return nil, fmt.Errorf("reconcile.amount_tolerance must not be negative")
		}
		policy.AmountTolerance = tol
	}
	policy.DateSlack = time.Duration(cfg.DateSlackDays) * 24 * time.Hour
	policy.StrictDates = cfg.StrictDates

	var pairer reconcile.Pairer = reconcile.NewAliasPairer(policy)
	if cfg.UseOracle && text != nil {
		pairer = service.NewOraclePairer(text, logger)
	}
	return reconcile.NewEngine(pairer, policy), nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&dispatcherLoggerAdapter{logger: logger.Named("dispatcher")}),
	)
}

// ProvideAlerter creates the Lark reviewer alerter, or nil when disabled.
func ProvideAlerter(cfg *config.LarkConfig, logger *zap.Logger) *infraLark.Alerter {
	if !cfg.Enabled {
		return nil
	}
	client := infraLark.NewSDKClient(infraLark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		ChatID:    cfg.ChatID,
		BaseURL:   cfg.BaseURL,
	}, logger)
	return infraLark.NewAlerter(client, cfg.ChatID, logger.Named("lark"))
}

// Logger is the key/value logging surface shared by services and the API.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// zapLoggerAdapter adapts zap.Logger to the service and http Logger interfaces.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

// NewLoggerAdapter wraps a zap logger in the key/value Logger interface.
func NewLoggerAdapter(logger *zap.Logger) Logger {
	return &zapLoggerAdapter{logger: logger}
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Warn(msg string, keysAndValues ...interface{}) {
	a.logger.Warn(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// dispatcherLoggerAdapter adapts zap.Logger to the dispatcher.Logger interface.
type dispatcherLoggerAdapter struct {
	logger *zap.Logger
}

func (a *dispatcherLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *dispatcherLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
// Errors are logged under their key with zap.NamedError.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, ok := keysAndValues[i+1].(error); ok {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
