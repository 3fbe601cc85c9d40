package container

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/garyjia/ai-reimbursement-triage/internal/config"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/event"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	mbox := filepath.Join(dir, "inbox.mbox")
	require.NoError(t, os.WriteFile(mbox, nil, 0644))

	return &config.Config{
		Server:   config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Database: config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(dir, "triage.db")},
		LLM:      config.OracleConfig{APIKey: "test-key", Model: "gpt-4o"},
		VLM:      config.OracleConfig{APIKey: "test-key", Model: "gpt-4o"},
		Mailbox: config.MailboxConfig{
			Driver:    "mbox",
			MboxPath:  mbox,
			ScanDays:  30,
			MaxPerRun: 5,
		},
		Storage:    config.StorageConfig{AttachmentsDir: filepath.Join(dir, "attachments")},
		Reconcile:  config.ReconcileConfig{AmountTolerance: "0.05", DateSlackDays: 3},
		Processing: config.ProcessingConfig{BatchSize: 2, OCRConcurrency: 1, PollInterval: time.Hour},
	}
}

func TestNew_AdminMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.APIKey = ""

	c, err := New(context.Background(), cfg, zap.NewNop(), ModeAdmin)
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.Processor())
	assert.Nil(t, c.Batch())
	assert.Equal(t, []string{"metrics"}, c.Dispatcher().Handlers(event.TypeCaseDecided))

	cases, err := c.Admin().List(context.Background(), entity.CaseFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, cases)

	assert.Error(t, c.StartPoller(context.Background()))

	rec := httptest.NewRecorder()
	c.HTTPServer().Router().ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/runs", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNew_FullModeRequiresRuntimeSettings(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.APIKey = ""

	_, err := New(context.Background(), cfg, zap.NewNop(), ModeFull)
	assert.ErrorContains(t, err, "llm.api_key")
}

func TestNew_FullModeRunsEmptyMailbox(t *testing.T) {
	cfg := testConfig(t)

	c, err := New(context.Background(), cfg, zap.NewNop(), ModeFull)
	require.NoError(t, err)

	require.NotNil(t, c.Processor())
	require.NotNil(t, c.Batch())

	report, err := c.Batch().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Listed)

	require.NoError(t, c.StartPoller(context.Background()))
	assert.Error(t, c.StartPoller(context.Background()))

	rec := httptest.NewRecorder()
	c.HTTPServer().Router().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, c.Close())
	assert.Error(t, c.Close())
}

func TestProvideReconcileEngine_RejectsBadTolerance(t *testing.T) {
	_, err := ProvideReconcileEngine(&config.ReconcileConfig{AmountTolerance: "abc"}, nil, nil)
	assert.Error(t, err)

	_, err = ProvideReconcileEngine(&config.ReconcileConfig{AmountTolerance: "-1"}, nil, nil)
	assert.Error(t, err)

	engine, err := ProvideReconcileEngine(&config.ReconcileConfig{AmountTolerance: "0.02", UseOracle: true}, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, engine)
}

func TestLoggerAdapter_Fields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := NewLoggerAdapter(zap.New(core))

	log.Warn("Notification failed", "case_id", "42", "error", errors.New("smtp down"), "dangling")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "42", fields["case_id"])
	assert.Equal(t, "smtp down", fields["error"])
	assert.NotContains(t, fields, "dangling")
}
