package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/adx-agent/backend/internal/model"
	"github.com/adx-agent/backend/internal/sandbox"
)

// ExecutionReader reads journaled executions.
type ExecutionReader interface {
	GetExecution(ctx context.Context, id string) (*model.ExecResult, error)
	ListExecutions(ctx context.Context, sandboxID string, limit int) ([]*model.ExecResult, error)
}

// ExecuteHandler handles command execution inside sandboxes.
type ExecuteHandler struct {
	registry   *sandbox.Registry
	executions ExecutionReader
	credential gin.HandlerFunc
}

// NewExecuteHandler creates a new ExecuteHandler. executions may be nil when
// journaling is disabled.
func NewExecuteHandler(registry *sandbox.Registry, executions ExecutionReader, credential gin.HandlerFunc) *ExecuteHandler {
	return &ExecuteHandler{
		registry:   registry,
		executions: executions,
		credential: credential,
	}
}

// Execute handles POST /api/execute. The sandbox may also be named with the
// sandbox_id query parameter, as in the derived execute endpoint.
func (h *ExecuteHandler) Execute(c *gin.Context) {
	var req model.ExecRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.SandboxID == "" {
		req.SandboxID = c.Query("sandbox_id")
	}

	result, err := h.registry.Execute(c.Request.Context(), &req)
	if err != nil {
		sendAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"result": result,
	})
}

// List handles GET /api/executions?sandbox_id=&limit=.
func (h *ExecuteHandler) List(c *gin.Context) {
	if h.executions == nil {
		sendAppError(c, model.Unconfigured("execution journal"))
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			sendAppError(c, model.NewError(model.KindInvalidArgument, "limit must be a non-negative integer", nil))
			return
		}
		limit = n
	}

	results, err := h.executions.ListExecutions(c.Request.Context(), c.Query("sandbox_id"), limit)
	if err != nil {
		sendAppError(c, model.NewError(model.KindInternal, "list executions", err))
		return
	}
	if results == nil {
		results = []*model.ExecResult{}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"executions": results,
		"count":      len(results),
	})
}

// Get handles GET /api/executions/:id.
func (h *ExecuteHandler) Get(c *gin.Context) {
	if h.executions == nil {
		sendAppError(c, model.Unconfigured("execution journal"))
		return
	}

	result, err := h.executions.GetExecution(c.Request.Context(), c.Param("id"))
	if err != nil {
		if model.KindOf(err) != model.KindNotFound {
			err = model.NewError(model.KindInternal, "get execution", err)
		}
		sendAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"result": result,
	})
}

// RegisterRoutes registers the execution routes on a Gin router group.
func (h *ExecuteHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/execute", h.credential, h.Execute)
	rg.GET("/executions", h.List)
	rg.GET("/executions/:id", h.Get)
}
