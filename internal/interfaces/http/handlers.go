package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/service"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	deps Deps
	// baseCtx outlives requests and carries background batch runs
	baseCtx context.Context
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Deps) *Handlers {
	if deps.Logger == nil {
		deps.Logger = nopLogger{}
	}
	return &Handlers{deps: deps, baseCtx: context.Background()}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Workers   any    `json:"workers,omitempty"`
}

// ListCasesRequest represents query parameters for listing cases
type ListCasesRequest struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// ProcessResponse is the result of a manual re-run
type ProcessResponse struct {
	Case        *entity.ReimbursementCase `json:"case"`
	Skipped     bool                      `json:"skipped"`
	Notified    bool                      `json:"notified"`
	NotifyError string                    `json:"notify_error,omitempty"`
}

// ReimbursedRequest is the optional body of a payout confirmation
type ReimbursedRequest struct {
	Operator string `json:"operator"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if h.deps.Status != nil {
		resp.Workers = h.deps.Status()
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: resp})
}

// ListCases handles GET /api/v1/cases
func (h *Handlers) ListCases(c *gin.Context) {
	filter, ok := h.bindFilter(c)
	if !ok {
		return
	}

	cases, err := h.deps.Admin.List(c.Request.Context(), filter)
	if err != nil {
		h.deps.Logger.Error("Failed to list cases", "error", err)
		h.fail(c, http.StatusInternalServerError, "failed to retrieve cases")
		return
	}
	if cases == nil {
		cases = []*entity.ReimbursementCase{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: cases})
}

// GetCase handles GET /api/v1/cases/:id
func (h *Handlers) GetCase(c *gin.Context) {
	id := c.Param("id")
	detail, err := h.deps.Admin.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "Failed to get case", id, err, http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: detail})
}

// ProcessCase handles POST /api/v1/cases/:id/process
func (h *Handlers) ProcessCase(c *gin.Context) {
	id := c.Param("id")
	if h.deps.Processor == nil {
		h.fail(c, http.StatusServiceUnavailable, "processing is not configured")
		return
	}
	h.deps.Logger.Info("Manual re-run requested", "case_id", id)

	result, err := h.deps.Processor.Process(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "Processing failed", id, err, http.StatusBadGateway)
		return
	}

	resp := ProcessResponse{
		Case:     result.Case,
		Skipped:  result.Skipped,
		Notified: result.Notified,
	}
	if result.NotifyError != nil {
		resp.NotifyError = result.NotifyError.Error()
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: resp})
}

// MarkReimbursed handles POST /api/v1/cases/:id/reimbursed
func (h *Handlers) MarkReimbursed(c *gin.Context) {
	id := c.Param("id")

	var req ReimbursedRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.fail(c, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	rc, err := h.deps.Admin.MarkReimbursed(c.Request.Context(), id, strings.TrimSpace(req.Operator))
	if err != nil {
		h.writeError(c, "Failed to mark case reimbursed", id, err, http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: rc})
}

// DeleteCase handles DELETE /api/v1/cases/:id
func (h *Handlers) DeleteCase(c *gin.Context) {
	id := c.Param("id")
	if err := h.deps.Admin.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, "Failed to delete case", id, err, http.StatusInternalServerError)
		return
	}
	h.deps.Logger.Info("Case deleted via API", "case_id", id)
	c.Status(http.StatusNoContent)
}

// TriggerRun handles POST /api/v1/runs. With ?wait=true the report is
// returned; otherwise the pass runs in the background.
func (h *Handlers) TriggerRun(c *gin.Context) {
	if h.deps.Batch == nil {
		h.fail(c, http.StatusServiceUnavailable, "processing is not configured")
		return
	}
	if h.deps.Batch.Running() {
		h.fail(c, http.StatusConflict, service.ErrBatchRunning.Error())
		return
	}

	if c.Query("wait") == "true" {
		report, err := h.deps.Batch.Run(c.Request.Context())
		if err != nil {
			h.writeError(c, "Batch pass failed", "", err, http.StatusBadGateway)
			return
		}
		c.JSON(http.StatusOK, Response{Success: true, Data: report})
		return
	}

	go func() {
		if _, err := h.deps.Batch.Run(h.baseCtx); err != nil {
			h.deps.Logger.Warn("Background batch pass failed", "error", err)
		}
	}()
	c.JSON(http.StatusAccepted, Response{Success: true, Data: gin.H{"started": true}})
}

// Export handles GET /api/v1/export.xlsx
func (h *Handlers) Export(c *gin.Context) {
	filter, ok := h.bindFilter(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.deps.Admin.Export(c.Request.Context(), &buf, filter); err != nil {
		h.deps.Logger.Error("Export failed", "error", err)
		h.fail(c, http.StatusInternalServerError, "export failed")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="cases-`+time.Now().Format("20060102")+`.xlsx"`)
	c.Data(http.StatusOK, h.deps.Admin.ExportContentType(), buf.Bytes())
}

func (h *Handlers) bindFilter(c *gin.Context) (entity.CaseFilter, bool) {
	var req ListCasesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "invalid query parameters")
		return entity.CaseFilter{}, false
	}

	filter := entity.CaseFilter{Limit: req.Limit, Offset: req.Offset}
	if filter.Limit < 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	for _, s := range strings.Split(req.Status, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		status := entity.CaseStatus(s)
		if !status.IsValid() {
			h.fail(c, http.StatusBadRequest, "unknown status "+s)
			return entity.CaseFilter{}, false
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	return filter, true
}

// writeError maps service errors onto status codes. Errors it does not
// recognise get the fallback status.
func (h *Handlers) writeError(c *gin.Context, msg, id string, err error, fallback int) {
	var persistErr *entity.PersistenceError
	switch {
	case errors.Is(err, entity.ErrCaseNotFound):
		h.fail(c, http.StatusNotFound, "case not found")
	case errors.Is(err, service.ErrBatchRunning):
		h.fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, workflow.ErrInvalidTransition), errors.Is(err, workflow.ErrGuardFailed):
		h.fail(c, http.StatusConflict, err.Error())
	case errors.As(err, &persistErr):
		h.deps.Logger.Error(msg, "case_id", id, "error", err)
		h.fail(c, http.StatusInternalServerError, "storage failure")
	default:
		h.deps.Logger.Error(msg, "case_id", id, "error", err)
		h.fail(c, fallback, err.Error())
	}
}

func (h *Handlers) fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Error: msg})
}
