// Package sandbox tracks remote sandbox records through their lifecycle:
// creating -> running, and creating|running -> removed.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adx-agent/backend/internal/logging"
	"github.com/adx-agent/backend/internal/metrics"
	"github.com/adx-agent/backend/internal/model"
)

// DefaultSandboxID names the target of executions that give no sandbox id.
const DefaultSandboxID = "default"

// DefaultProvisionTimeout bounds a single provisioning attempt.
const DefaultProvisionTimeout = 2 * time.Minute

// Recorder receives lifecycle events and executions for auditing.
type Recorder interface {
	RecordSandboxEvent(ctx context.Context, event *model.SandboxEvent) error
	RecordExecution(ctx context.Context, result *model.ExecResult) error
}

// Config holds configuration for the registry.
type Config struct {
	Endpoints        model.EndpointScheme
	ProvisionTimeout time.Duration
}

// Registry owns every sandbox record. Mutations are serialized by a single
// lock; provisioning and provider calls run outside it.
type Registry struct {
	provisioner Provisioner
	recorder    Recorder
	metrics     *metrics.Metrics
	logger      *zap.Logger
	config      Config

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.RWMutex
	records map[string]*entry
	closed  bool
}

type entry struct {
	sandbox *model.Sandbox
	// cancel aborts outstanding provisioning.
	cancel context.CancelFunc
}

// Option customizes a Registry.
type Option func(*Registry)

// WithRecorder journals lifecycle events and executions.
func WithRecorder(recorder Recorder) Option {
	return func(r *Registry) { r.recorder = recorder }
}

// WithMetrics records sandbox gauges and counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates a new registry backed by provisioner.
func NewRegistry(provisioner Provisioner, config Config, opts ...Option) *Registry {
	if config.ProvisionTimeout <= 0 {
		config.ProvisionTimeout = DefaultProvisionTimeout
	}
	if config.Endpoints.Host == "" {
		config.Endpoints = model.DefaultEndpointScheme()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		provisioner: provisioner,
		config:      config,
		baseCtx:     ctx,
		cancel:      cancel,
		records:     make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrNop(r.logger).Named("sandbox")
	return r
}

// Create inserts a new sandbox in the creating state and starts provisioning
// it in the background. The returned record is a snapshot.
func (r *Registry) Create(ctx context.Context, cfg model.SandboxConfig) (*model.Sandbox, error) {
	id := uuid.New().String()
	derived := model.DeriveEndpoints(r.config.Endpoints, id)

	sb := &model.Sandbox{
		ID:           id,
		Status:       model.SandboxStatusCreating,
		Config:       cfg.WithDefaults(),
		CreatedAt:    time.Now(),
		VNCURL:       derived.VNCURL,
		WebInterface: derived.WebInterface,
		Endpoints:    derived.Endpoints,
	}

	provisionCtx, cancel := context.WithTimeout(r.baseCtx, r.config.ProvisionTimeout)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		return nil, model.NewError(model.KindCancelled, "sandbox registry is closed", nil)
	}
	r.records[id] = &entry{sandbox: sb, cancel: cancel}
	snapshot := sb.Clone()
	r.wg.Add(1)
	r.mu.Unlock()

	r.metrics.SandboxTransition("", string(model.SandboxStatusCreating))
	r.metrics.SandboxOp("create", "ok")
	r.logger.Info("sandbox created",
		zap.String("sandbox_id", id),
		zap.String("environment", snapshot.Config.Environment))
	r.recordEvent(ctx, id, model.SandboxEventCreated, model.SandboxStatusCreating, "")

	go r.provision(provisionCtx, cancel, id, snapshot.Config)

	return snapshot, nil
}

// provision runs the provider call and applies the resulting transition if
// the record is still waiting for it.
func (r *Registry) provision(ctx context.Context, cancel context.CancelFunc, id string, cfg model.SandboxConfig) {
	defer r.wg.Done()
	defer cancel()

	err := r.provisioner.Provision(ctx, id, cfg)

	r.mu.Lock()
	e, exists := r.records[id]
	if !exists || e.sandbox.Status != model.SandboxStatusCreating {
		r.mu.Unlock()
		r.logger.Debug("sandbox removed during provisioning", zap.String("sandbox_id", id))
		return
	}
	if err != nil {
		delete(r.records, id)
		r.mu.Unlock()

		r.metrics.SandboxTransition(string(model.SandboxStatusCreating), "")
		r.metrics.SandboxOp("provision", "error")
		r.logger.Warn("sandbox provisioning failed", zap.String("sandbox_id", id), zap.Error(err))
		r.recordEvent(context.Background(), id, model.SandboxEventProvisionFailed, model.SandboxStatusDestroyed, err.Error())
		return
	}
	e.sandbox.Status = model.SandboxStatusRunning
	r.mu.Unlock()

	r.metrics.SandboxTransition(string(model.SandboxStatusCreating), string(model.SandboxStatusRunning))
	r.metrics.SandboxOp("provision", "ok")
	r.logger.Info("sandbox running", zap.String("sandbox_id", id))
	r.recordEvent(context.Background(), id, model.SandboxEventRunning, model.SandboxStatusRunning, "")
}

// Destroy removes a sandbox whatever its status. Outstanding provisioning
// is cancelled and the provider teardown is attempted best-effort.
func (r *Registry) Destroy(ctx context.Context, id string) (*model.Sandbox, error) {
	r.mu.Lock()
	e, exists := r.records[id]
	if !exists {
		r.mu.Unlock()
		r.metrics.SandboxOp("destroy", "not_found")
		return nil, model.ErrSandboxNotFound
	}
	delete(r.records, id)
	removed := e.sandbox.Clone()
	cancel := e.cancel
	r.mu.Unlock()

	cancel()
	r.metrics.SandboxTransition(string(removed.Status), "")
	r.metrics.SandboxOp("destroy", "ok")

	if err := r.provisioner.Teardown(ctx, id); err != nil {
		r.logger.Warn("sandbox teardown failed", zap.String("sandbox_id", id), zap.Error(err))
	}

	r.logger.Info("sandbox destroyed",
		zap.String("sandbox_id", id),
		zap.String("previous_status", string(removed.Status)))
	r.recordEvent(ctx, id, model.SandboxEventDestroyed, model.SandboxStatusDestroyed, "previous status: "+string(removed.Status))

	removed.Status = model.SandboxStatusDestroyed
	return removed, nil
}

// Status returns a snapshot of a sandbox record.
func (r *Registry) Status(id string) (*model.Sandbox, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.records[id]
	if !exists {
		return nil, model.ErrSandboxNotFound
	}
	return e.sandbox.Clone(), nil
}

// List returns snapshots of every record, oldest first.
func (r *Registry) List() []*model.Sandbox {
	r.mu.RLock()
	sandboxes := make([]*model.Sandbox, 0, len(r.records))
	for _, e := range r.records {
		sandboxes = append(sandboxes, e.sandbox.Clone())
	}
	r.mu.RUnlock()

	slices.SortFunc(sandboxes, func(a, b *model.Sandbox) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return sandboxes
}

// Count returns the number of registered sandboxes.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Execute passes a command through to the provisioner. A request without a
// sandbox id targets DefaultSandboxID. The request timeout surfaces as a
// Timeout error.
func (r *Registry) Execute(ctx context.Context, req *model.ExecRequest) (*model.ExecResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sandboxID := req.SandboxID
	if sandboxID == "" {
		sandboxID = DefaultSandboxID
	} else if _, err := r.Status(sandboxID); err != nil {
		return nil, err
	}

	timeout := req.TimeoutDuration()
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	out, err := r.provisioner.Exec(execCtx, sandboxID, req.Command, req.Environment)
	elapsed := time.Since(start)

	result := &model.ExecResult{
		ExecutionID:   uuid.New().String(),
		SandboxID:     sandboxID,
		Command:       req.Command,
		Status:        model.ExecStatusCompleted,
		ExecutionTime: elapsed.Seconds(),
		Timestamp:     start,
	}

	switch {
	case err == nil && out == nil:
		result.Status = model.ExecStatusFailed
		err = model.NewError(model.KindUpstreamFailure, "provisioner returned no output", nil)
	case err == nil:
		result.ExitCode = out.ExitCode
		result.Stdout = out.Stdout
		result.Stderr = out.Stderr
	case ctx.Err() != nil:
		result.Status = model.ExecStatusFailed
		err = model.NewError(model.KindCancelled, "execution cancelled", err)
	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		result.Status = model.ExecStatusTimeout
		err = model.NewError(model.KindTimeout, fmt.Sprintf("command timed out after %s", timeout), err)
	default:
		result.Status = model.ExecStatusFailed
		err = model.NewError(model.KindUpstreamFailure, "command execution failed", err)
	}

	r.metrics.Execution(string(result.Status))
	if r.recorder != nil {
		if recErr := r.recorder.RecordExecution(context.WithoutCancel(ctx), result); recErr != nil {
			r.logger.Warn("failed to journal execution", zap.String("execution_id", result.ExecutionID), zap.Error(recErr))
		}
	}

	if err != nil {
		r.logger.Warn("execution failed",
			zap.String("sandbox_id", sandboxID),
			zap.String("status", string(result.Status)),
			zap.Error(err))
		return nil, err
	}

	r.logger.Debug("execution completed",
		zap.String("sandbox_id", sandboxID),
		zap.String("execution_id", result.ExecutionID),
		zap.Duration("duration", elapsed))
	return result, nil
}

// Close cancels outstanding provisioning and waits for it to finish.
// Records are left in place.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	return nil
}

func (r *Registry) recordEvent(ctx context.Context, id, event string, status model.SandboxStatus, detail string) {
	if r.recorder == nil {
		return
	}
	err := r.recorder.RecordSandboxEvent(context.WithoutCancel(ctx), &model.SandboxEvent{
		SandboxID: id,
		Event:     event,
		Status:    status,
		Detail:    detail,
	})
	if err != nil {
		r.logger.Warn("failed to journal sandbox event",
			zap.String("sandbox_id", id),
			zap.String("event", event),
			zap.Error(err))
	}
}
