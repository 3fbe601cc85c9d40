package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	LLM        OracleConfig     `mapstructure:"llm"`
	VLM        OracleConfig     `mapstructure:"vlm"`
	Mailbox    MailboxConfig    `mapstructure:"mailbox"`
	SMTP       SMTPConfig       `mapstructure:"smtp"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Reconcile  ReconcileConfig  `mapstructure:"reconcile"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Lark       LarkConfig       `mapstructure:"lark"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds admin HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// AdminToken, when set, is required as a bearer token on /api routes
	AdminToken string `mapstructure:"admin_token"`
}

// DatabaseConfig holds Record Store configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite or postgres
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// OracleConfig holds chat completion model configuration
type OracleConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// MailboxConfig holds mailbox reader configuration
type MailboxConfig struct {
	Driver    string   `mapstructure:"driver"` // imap, gmail or mbox
	Host      string   `mapstructure:"host"`
	Port      int      `mapstructure:"port"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Folder    string   `mapstructure:"folder"`
	ScanDays  int      `mapstructure:"scan_days"`
	MaxPerRun int      `mapstructure:"max_per_run"`
	Keywords  []string `mapstructure:"keywords"`
	// MarkSeen flags processed IMAP messages as read
	MarkSeen bool `mapstructure:"mark_seen"`

	DialAttempts uint          `mapstructure:"dial_attempts"`
	DialDelay    time.Duration `mapstructure:"dial_delay"`

	GmailCredentialsFile string `mapstructure:"gmail_credentials_file"`
	GmailTokenFile       string `mapstructure:"gmail_token_file"`

	MboxPath string `mapstructure:"mbox_path"`
}

// SMTPConfig holds Notifier configuration
type SMTPConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	Security string        `mapstructure:"security"` // tls, starttls or none
	Attempts uint          `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
}

// StorageConfig holds attachment storage configuration
type StorageConfig struct {
	AttachmentsDir string `mapstructure:"attachments_dir"`
}

// ReconcileConfig holds grading tolerances
type ReconcileConfig struct {
	AmountTolerance string `mapstructure:"amount_tolerance"`
	DateSlackDays   int    `mapstructure:"date_slack_days"`
	StrictDates     bool   `mapstructure:"strict_dates"`
	// UseOracle pairs items with the text model; off means alias matching only
	UseOracle bool `mapstructure:"use_oracle"`
}

// ProcessingConfig holds pipeline limits
type ProcessingConfig struct {
	BatchSize      int           `mapstructure:"batch_size"`
	OCRConcurrency int           `mapstructure:"ocr_concurrency"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	CaseTimeout    time.Duration `mapstructure:"case_timeout"`
	MaxPDFPages    int           `mapstructure:"max_pdf_pages"`
}

// NotifyConfig holds clarification message settings
type NotifyConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	LLMDraft bool `mapstructure:"llm_draft"`
}

// LarkConfig holds reviewer alert configuration
type LarkConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	ChatID    string `mapstructure:"chat_id"`
	BaseURL   string `mapstructure:"base_url"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load reads configuration from file, .env and environment variables.
// A missing config file is not an error: defaults and environment apply.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.VLM.inherit(cfg.LLM)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/triage.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Oracle defaults
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 2000)
	v.SetDefault("llm.timeout", 90*time.Second)

	// Mailbox defaults
	v.SetDefault("mailbox.driver", "imap")
	v.SetDefault("mailbox.port", 993)
	v.SetDefault("mailbox.folder", "INBOX")
	v.SetDefault("mailbox.scan_days", 120)
	v.SetDefault("mailbox.max_per_run", 20)
	v.SetDefault("mailbox.keywords", []string{"报销", "reimbursement", "AI工具", "Cursor", "ChatGPT", "Claude", "Gemini", "OpenAI"})
	v.SetDefault("mailbox.dial_attempts", 3)
	v.SetDefault("mailbox.dial_delay", 2*time.Second)
	v.SetDefault("mailbox.gmail_token_file", "data/gmail_token.json")

	// SMTP defaults
	v.SetDefault("smtp.port", 465)
	v.SetDefault("smtp.attempts", 3)
	v.SetDefault("smtp.delay", 2*time.Second)

	v.SetDefault("storage.attachments_dir", "storage/attachments")

	// Reconciliation defaults
	v.SetDefault("reconcile.amount_tolerance", "0.01")
	v.SetDefault("reconcile.date_slack_days", 7)
	v.SetDefault("reconcile.use_oracle", true)

	// Processing defaults
	v.SetDefault("processing.batch_size", 4)
	v.SetDefault("processing.ocr_concurrency", 3)
	v.SetDefault("processing.poll_interval", 5*time.Minute)
	v.SetDefault("processing.case_timeout", 5*time.Minute)
	v.SetDefault("processing.max_pdf_pages", 5)

	v.SetDefault("notify.enabled", true)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds the conventional variable names of secrets and endpoints
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string][]string{
		"llm.api_key":        {"LLM_API_KEY", "OPENAI_API_KEY"},
		"llm.base_url":       {"LLM_BASE_URL", "OPENAI_BASE_URL"},
		"llm.model":          {"LLM_MODEL"},
		"vlm.api_key":        {"VLM_API_KEY"},
		"vlm.base_url":       {"VLM_BASE_URL"},
		"vlm.model":          {"VLM_MODEL"},
		"mailbox.host":       {"IMAP_HOST"},
		"mailbox.username":   {"EMAIL_USER"},
		"mailbox.password":   {"EMAIL_PASSWORD"},
		"mailbox.folder":     {"EMAIL_FOLDER"},
		"smtp.host":          {"SMTP_HOST"},
		"smtp.username":      {"SMTP_USER", "EMAIL_USER"},
		"smtp.password":      {"SMTP_PASSWORD", "EMAIL_PASSWORD"},
		"database.dsn":       {"DATABASE_URL"},
		"lark.app_id":        {"LARK_APP_ID"},
		"lark.app_secret":    {"LARK_APP_SECRET"},
		"server.admin_token": {"ADMIN_TOKEN"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return err
		}
	}
	return nil
}

// inherit fills empty fields from the text model configuration
func (o *OracleConfig) inherit(from OracleConfig) {
	if o.APIKey == "" {
		o.APIKey = from.APIKey
	}
	if o.BaseURL == "" {
		o.BaseURL = from.BaseURL
	}
	if o.Model == "" {
		o.Model = from.Model
	}
	if o.Temperature == 0 {
		o.Temperature = from.Temperature
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = from.MaxTokens
	}
	if o.Timeout == 0 {
		o.Timeout = from.Timeout
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}

	switch c.SMTP.Security {
	case "", "tls", "starttls", "none":
	default:
		return fmt.Errorf("smtp.security must be tls, starttls or none, got %q", c.SMTP.Security)
	}

	switch c.Mailbox.Driver {
	case "imap", "gmail", "mbox":
	default:
		return fmt.Errorf("mailbox.driver must be imap, gmail or mbox, got %q", c.Mailbox.Driver)
	}

	if c.Processing.BatchSize < 1 {
		return fmt.Errorf("processing.batch_size must be at least 1")
	}
	if c.Processing.OCRConcurrency < 1 {
		return fmt.Errorf("processing.ocr_concurrency must be at least 1")
	}
	if c.Reconcile.DateSlackDays < 0 {
		return fmt.Errorf("reconcile.date_slack_days must not be negative")
	}

	if c.Lark.Enabled && (c.Lark.AppID == "" || c.Lark.AppSecret == "" || c.Lark.ChatID == "") {
		return fmt.Errorf("lark.app_id, lark.app_secret and lark.chat_id are required when lark is enabled")
	}

	return nil
}

// ValidateRuntime checks the settings a live processing pass needs.
// Administrative commands such as migrate or export do not call it.
func (c *Config) ValidateRuntime() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required")
	}
	switch c.Mailbox.Driver {
	case "imap":
		if c.Mailbox.Host == "" || c.Mailbox.Username == "" {
			return fmt.Errorf("mailbox.host and mailbox.username are required for imap")
		}
	case "gmail":
		if c.Mailbox.GmailCredentialsFile == "" {
			return fmt.Errorf("mailbox.gmail_credentials_file is required for gmail")
		}
	case "mbox":
		if c.Mailbox.MboxPath == "" {
			return fmt.Errorf("mailbox.mbox_path is required for mbox")
		}
	}
	if c.Notify.Enabled && (c.SMTP.Host == "" || c.SMTP.From == "") {
		return fmt.Errorf("smtp.host and smtp.from are required when notify is enabled")
	}
	return nil
}
