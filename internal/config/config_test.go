package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "imap", cfg.Mailbox.Driver)
	assert.Equal(t, 993, cfg.Mailbox.Port)
	assert.Equal(t, 120, cfg.Mailbox.ScanDays)
	assert.Equal(t, 20, cfg.Mailbox.MaxPerRun)
	assert.Contains(t, cfg.Mailbox.Keywords, "报销")
	assert.Equal(t, 465, cfg.SMTP.Port)
	assert.Equal(t, "0.01", cfg.Reconcile.AmountTolerance)
	assert.Equal(t, 7, cfg.Reconcile.DateSlackDays)
	assert.Equal(t, 5*time.Minute, cfg.Processing.PollInterval)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: postgres
  dsn: postgres://triage@localhost/triage
llm:
  model: gpt-4o-mini
  base_url: https://llm.example.com/v1
vlm:
  model: gpt-4o
processing:
  batch_size: 8
`)
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("EMAIL_PASSWORD", "hunter2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 8, cfg.Processing.BatchSize)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "hunter2", cfg.Mailbox.Password)
	assert.Equal(t, "hunter2", cfg.SMTP.Password)

	// vision settings fall back to the text model where unset
	assert.Equal(t, "gpt-4o", cfg.VLM.Model)
	assert.Equal(t, "sk-test", cfg.VLM.APIKey)
	assert.Equal(t, "https://llm.example.com/v1", cfg.VLM.BaseURL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown database driver", "database:\n  driver: mysql\n"},
		{"postgres without dsn", "database:\n  driver: postgres\n"},
		{"unknown mailbox driver", "mailbox:\n  driver: pop3\n"},
		{"zero batch size", "processing:\n  batch_size: 0\n"},
		{"lark without chat", "lark:\n  enabled: true\n  app_id: a\n  app_secret: b\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestValidateRuntime(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := Load("")
	require.NoError(t, err)

	assert.ErrorContains(t, cfg.ValidateRuntime(), "llm.api_key")

	cfg.LLM.APIKey = "sk"
	cfg.Mailbox.Driver = "mbox"
	cfg.Mailbox.MboxPath = "testdata/inbox.mbox"
	cfg.Notify.Enabled = false
	assert.NoError(t, cfg.ValidateRuntime())
}
