package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adx-agent/backend/internal/model"
	"github.com/adx-agent/backend/internal/sandbox"
)

// EventLister reads the journaled lifecycle of a sandbox.
type EventLister interface {
	ListSandboxEvents(ctx context.Context, sandboxID string) ([]*model.SandboxEvent, error)
}

// SandboxHandler handles HTTP requests for sandbox lifecycle management.
type SandboxHandler struct {
	registry   *sandbox.Registry
	events     EventLister
	credential gin.HandlerFunc
}

// NewSandboxHandler creates a new SandboxHandler. events may be nil when
// journaling is disabled.
func NewSandboxHandler(registry *sandbox.Registry, events EventLister, credential gin.HandlerFunc) *SandboxHandler {
	return &SandboxHandler{
		registry:   registry,
		events:     events,
		credential: credential,
	}
}

// SandboxResponse wraps a sandbox record with the action outcome.
type SandboxResponse struct {
	Status  string         `json:"status"`
	Sandbox *model.Sandbox `json:"sandbox"`
	Message string         `json:"message,omitempty"`
}

// Manage handles POST /api/sandbox - create, destroy or inspect a sandbox.
func (h *SandboxHandler) Manage(c *gin.Context) {
	var req model.SandboxRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		sendAppError(c, err)
		return
	}

	switch req.Action {
	case model.SandboxActionCreate:
		var cfg model.SandboxConfig
		if req.Config != nil {
			cfg = *req.Config
		}
		sb, err := h.registry.Create(c.Request.Context(), cfg)
		if err != nil {
			sendAppError(c, err)
			return
		}
		c.JSON(http.StatusOK, SandboxResponse{
			Status:  "created",
			Sandbox: sb,
			Message: "Sandbox is being provisioned",
		})

	case model.SandboxActionDestroy:
		sb, err := h.registry.Destroy(c.Request.Context(), req.SandboxID)
		if err != nil {
			sendAppError(c, err)
			return
		}
		c.JSON(http.StatusOK, SandboxResponse{
			Status:  "destroyed",
			Sandbox: sb,
			Message: "Sandbox " + sb.ID + " destroyed",
		})

	case model.SandboxActionStatus:
		h.respondStatus(c, req.SandboxID)
	}
}

// Status handles GET /api/sandbox/status/:id.
func (h *SandboxHandler) Status(c *gin.Context) {
	h.respondStatus(c, c.Param("id"))
}

func (h *SandboxHandler) respondStatus(c *gin.Context, id string) {
	sb, err := h.registry.Status(id)
	if err != nil {
		sendAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, SandboxResponse{
		Status:  string(sb.Status),
		Sandbox: sb,
	})
}

// List handles GET /api/sandboxes.
func (h *SandboxHandler) List(c *gin.Context) {
	sandboxes := h.registry.List()
	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"sandboxes": sandboxes,
		"count":     len(sandboxes),
	})
}

// Events handles GET /api/sandbox/:id/events.
func (h *SandboxHandler) Events(c *gin.Context) {
	if h.events == nil {
		sendAppError(c, model.Unconfigured("execution journal"))
		return
	}

	id := c.Param("id")
	events, err := h.events.ListSandboxEvents(c.Request.Context(), id)
	if err != nil {
		sendAppError(c, model.NewError(model.KindInternal, "list sandbox events", err))
		return
	}
	if events == nil {
		events = []*model.SandboxEvent{}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"sandbox_id": id,
		"events":     events,
		"count":      len(events),
	})
}

// RegisterRoutes registers the sandbox routes on a Gin router group.
func (h *SandboxHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sandbox", h.credential, h.Manage)
	rg.GET("/sandbox/status/:id", h.Status)
	rg.GET("/sandbox/:id/events", h.Events)
	rg.GET("/sandboxes", h.List)
}
