package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Service identity reported by the status endpoints.
const (
	ServiceName    = "ADX Agent Backend"
	ServiceVersion = "1.0.0"
)

// Counter reports the size of a live collection.
type Counter interface {
	Count() int
}

// CounterFunc adapts a function to Counter.
type CounterFunc func() int

// Count calls f.
func (f CounterFunc) Count() int { return f() }

// HealthStatus is the input of the health endpoints.
type HealthStatus struct {
	AIConfigured      bool
	SandboxConfigured bool
	Model             string
	Sessions          Counter
	Connections       Counter
	Sandboxes         Counter
}

// HealthHandler reports service status.
type HealthHandler struct {
	status    HealthStatus
	startedAt time.Time
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(status HealthStatus) *HealthHandler {
	return &HealthHandler{
		status:    status,
		startedAt: time.Now(),
	}
}

// Root handles GET /.
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   ServiceName,
		"version":   ServiceVersion,
		"timestamp": time.Now(),
		"endpoints": endpointMap(),
	})
}

// Health handles GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"service":        ServiceName,
		"version":        ServiceVersion,
		"timestamp":      time.Now(),
		"uptime_seconds": time.Since(h.startedAt).Seconds(),
		"model":          h.status.Model,
		"api_keys_available": gin.H{
			"ai":      h.status.AIConfigured,
			"sandbox": h.status.SandboxConfigured,
		},
		"active_sessions":    count(h.status.Sessions),
		"active_connections": count(h.status.Connections),
		"active_sandboxes":   count(h.status.Sandboxes),
		"endpoints":          endpointMap(),
	})
}

func count(c Counter) int {
	if c == nil {
		return 0
	}
	return c.Count()
}

func endpointMap() gin.H {
	return gin.H{
		"health":     "/health",
		"metrics":    "/metrics",
		"websocket":  "/ws",
		"chat":       "/api/chat",
		"ai_agent":   "/api/ai-agent",
		"sandbox":    "/api/sandbox",
		"sandboxes":  "/api/sandboxes",
		"execute":    "/api/execute",
		"executions": "/api/executions",
		"sessions":   "/api/sessions",
	}
}

// RegisterRoutes registers the status routes on the engine root.
func (h *HealthHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
}
