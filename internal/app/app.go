// Package app wires configuration into the running services and exposes
// them through a gin engine.
package app

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/adx-agent/backend/api/handlers"
	"github.com/adx-agent/backend/internal/agent"
	"github.com/adx-agent/backend/internal/chat"
	"github.com/adx-agent/backend/internal/config"
	"github.com/adx-agent/backend/internal/db"
	"github.com/adx-agent/backend/internal/logging"
	"github.com/adx-agent/backend/internal/metrics"
	"github.com/adx-agent/backend/internal/model"
	"github.com/adx-agent/backend/internal/repository"
	"github.com/adx-agent/backend/internal/sandbox"
	"github.com/adx-agent/backend/internal/session"
	"github.com/adx-agent/backend/internal/stream"
	"github.com/adx-agent/backend/internal/ws"
)

// App owns every long-lived service of the server.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Journal     *repository.Journal
	Sessions    *session.Store
	Sandboxes   *sandbox.Registry
	Hub         *ws.Hub
	Generator   agent.Generator
	Chat        *chat.Service
	Coordinator *stream.Coordinator
	WebSocket   *ws.Handler

	database *sql.DB
}

// Option customises App construction.
type Option func(*options)

type options struct {
	generator   agent.Generator
	provisioner sandbox.Provisioner
}

// WithGenerator replaces the generator selected from configuration.
func WithGenerator(generator agent.Generator) Option {
	return func(o *options) { o.generator = generator }
}

// WithProvisioner replaces the simulated sandbox provisioner.
func WithProvisioner(provisioner sandbox.Provisioner) Option {
	return func(o *options) { o.provisioner = provisioner }
}

// New builds the services described by cfg. The caller must Close the App.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		Config:   cfg,
		Logger:   logging.OrNop(logger),
		Registry: prometheus.NewRegistry(),
	}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	if path := cfg.Database.Path; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		database, err := db.Open(path)
		if err != nil {
			return nil, err
		}
		a.database = database
		a.Journal = repository.NewJournal(database)
	} else {
		a.Logger.Warn("database path empty, journaling disabled")
	}

	provisioner := o.provisioner
	if provisioner == nil {
		provisioner = sandbox.NewSimulatedProvisioner(cfg.Sandbox.ProvisionDelay, cfg.Sandbox.ExecDelay)
	}
	registryOpts := []sandbox.Option{
		sandbox.WithMetrics(a.Metrics),
		sandbox.WithLogger(a.Logger),
	}
	if a.Journal != nil {
		registryOpts = append(registryOpts, sandbox.WithRecorder(a.Journal))
	}
	a.Sandboxes = sandbox.NewRegistry(provisioner, sandbox.Config{
		Endpoints: model.EndpointScheme{
			Host:    cfg.Sandbox.EndpointHost,
			VNCPort: cfg.Sandbox.VNCPort,
			WebPort: cfg.Sandbox.WebPort,
		},
		ProvisionTimeout: cfg.Sandbox.ProvisionTimeout,
	}, registryOpts...)

	a.Generator = o.generator
	if a.Generator == nil {
		generator, err := agent.NewGenerator(cfg.AI, a.Logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Generator = generator
	}

	a.Sessions = session.NewStore()
	a.Hub = ws.NewHub(cfg.WebSocket.HistorySize, a.Metrics, a.Logger)
	a.Chat = chat.NewService(a.Sessions, a.Generator, a.Hub, cfg.Chat.ContextSize, a.Metrics, a.Logger)
	a.Coordinator = stream.NewCoordinator(a.Generator, a.Sandboxes, stream.Config{
		ToolCallDelay: cfg.Stream.ToolCallDelay,
	}, a.Metrics, a.Logger)
	a.WebSocket = ws.NewHandler(a.Hub, a.Chat, a.Logger)

	return a, nil
}

// Router builds the gin engine serving every route.
func (a *App) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.GinMiddleware(a.Logger))
	r.Use(corsMiddleware())

	sandboxCredential := handlers.RequireCredential(a.Config.SandboxConfigured(), "sandbox provider API key")

	var events handlers.EventLister
	var executions handlers.ExecutionReader
	if a.Journal != nil {
		events = a.Journal
		executions = a.Journal
	}

	health := handlers.NewHealthHandler(handlers.HealthStatus{
		AIConfigured:      a.Config.AIConfigured(),
		SandboxConfigured: a.Config.SandboxConfigured(),
		Model:             a.Generator.Model(),
		Sessions:          handlers.CounterFunc(a.Sessions.Len),
		Connections:       handlers.CounterFunc(a.Hub.ClientCount),
		Sandboxes:         a.Sandboxes,
	})
	health.RegisterRoutes(r)
	handlers.NewWebSocketHandler(a.WebSocket, a.Logger).RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{Registry: a.Registry})))

	api := r.Group("/api")
	{
		handlers.NewSandboxHandler(a.Sandboxes, events, sandboxCredential).RegisterRoutes(api)
		handlers.NewExecuteHandler(a.Sandboxes, executions, sandboxCredential).RegisterRoutes(api)
		handlers.NewChatHandler(a.Chat).RegisterRoutes(api)
		handlers.NewAgentHandler(a.Coordinator, a.Logger).RegisterRoutes(api)
		handlers.NewSessionHandler(a.Sessions).RegisterRoutes(api)
	}

	return r
}

// Close stops background work and releases the database.
func (a *App) Close() error {
	var result *multierror.Error

	if a.Sandboxes != nil {
		if err := a.Sandboxes.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close sandbox registry: %w", err))
		}
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
	if a.database != nil {
		if err := a.database.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close database: %w", err))
		}
	}

	return result.ErrorOrNil()
}

// corsMiddleware allows the browser frontend to call the API from any origin.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
