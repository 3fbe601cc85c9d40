// Package http exposes the administrative API over gin.
// Handlers translate requests into application service calls and nothing more.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/service"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// CaseAdmin is the operator surface of the case store
type CaseAdmin interface {
	List(ctx context.Context, filter entity.CaseFilter) ([]*entity.ReimbursementCase, error)
	Get(ctx context.Context, id string) (*service.CaseDetail, error)
	MarkReimbursed(ctx context.Context, id, operator string) (*entity.ReimbursementCase, error)
	Delete(ctx context.Context, id string) error
	Export(ctx context.Context, w io.Writer, filter entity.CaseFilter) error
	ExportContentType() string
}

// CaseProcessor re-runs the triage pass for one case
type CaseProcessor interface {
	Process(ctx context.Context, caseID string) (*service.ProcessResult, error)
}

// BatchTrigger starts mailbox scans
type BatchTrigger interface {
	Run(ctx context.Context) (*service.BatchReport, error)
	Running() bool
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// AdminToken, when set, must be sent as a bearer token on /api routes
	AdminToken string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "127.0.0.1",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
}

// Deps are the services the API calls into
type Deps struct {
	Admin     CaseAdmin
	Processor CaseProcessor
	Batch     BatchTrigger
	// Metrics serves /metrics when set
	Metrics http.Handler
	// Status adds background worker state to /health when set
	Status func() any
	Logger Logger
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	handlers := NewHandlers(deps)
	s := &Server{
		config:   config,
		router:   gin.New(),
		handlers: handlers,
		logger:   handlers.deps.Logger,
	}

	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	s.setupRoutes(deps.Metrics)

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(metrics http.Handler) {
	h := s.handlers

	s.router.GET("/health", h.HealthCheck)
	if metrics != nil {
		s.router.GET("/metrics", gin.WrapH(metrics))
	}

	api := s.router.Group("/api/v1", bearerAuth(s.config.AdminToken))
	{
		api.GET("/cases", h.ListCases)
		api.GET("/cases/:id", h.GetCase)
		api.POST("/cases/:id/process", h.ProcessCase)
		api.POST("/cases/:id/reimbursed", h.MarkReimbursed)
		api.DELETE("/cases/:id", h.DeleteCase)
		api.POST("/runs", h.TriggerRun)
		api.GET("/export.xlsx", h.Export)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.handlers.baseCtx = ctx

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
