package sandbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adx-agent/backend/internal/model"
)

// gatedProvisioner blocks provisioning until released.
type gatedProvisioner struct {
	release chan struct{}
	err     error

	mu        sync.Mutex
	torndown  []string
	execDelay time.Duration
}

func newGatedProvisioner() *gatedProvisioner {
	return &gatedProvisioner{release: make(chan struct{})}
}

func (p *gatedProvisioner) Provision(ctx context.Context, id string, cfg model.SandboxConfig) error {
	select {
	case <-p.release:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *gatedProvisioner) Exec(ctx context.Context, id, command string, env map[string]string) (*ExecOutput, error) {
	if err := sleep(ctx, p.execDelay); err != nil {
		return nil, err
	}
	return &ExecOutput{Stdout: id + ":" + command}, nil
}

func (p *gatedProvisioner) Teardown(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.torndown = append(p.torndown, id)
	return nil
}

type memoryRecorder struct {
	mu         sync.Mutex
	events     []*model.SandboxEvent
	executions []*model.ExecResult
}

func (m *memoryRecorder) RecordSandboxEvent(ctx context.Context, event *model.SandboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memoryRecorder) RecordExecution(ctx context.Context, result *model.ExecResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions = append(m.executions, result)
	return nil
}

func (m *memoryRecorder) eventNames(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, e := range m.events {
		if e.SandboxID == id {
			names = append(names, e.Event)
		}
	}
	return names
}

func statusOf(r *Registry, id string) model.SandboxStatus {
	sb, err := r.Status(id)
	if err != nil {
		return ""
	}
	return sb.Status
}

func TestRegistry_CreateThenRunningThenDestroy(t *testing.T) {
	recorder := &memoryRecorder{}
	r := NewRegistry(NewSimulatedProvisioner(20*time.Millisecond, 0), Config{}, WithRecorder(recorder))
	defer r.Close()

	sb, err := r.Create(context.Background(), model.SandboxConfig{})
	require.NoError(t, err)
	assert.Equal(t, model.SandboxStatusCreating, sb.Status)
	assert.Equal(t, model.DefaultEnvironment, sb.Config.Environment)
	assert.NotEmpty(t, sb.VNCURL)
	assert.NotEmpty(t, sb.WebInterface)

	require.Eventually(t, func() bool {
		return statusOf(r, sb.ID) == model.SandboxStatusRunning
	}, 2*time.Second, 5*time.Millisecond)

	running, err := r.Status(sb.ID)
	require.NoError(t, err)
	assert.Equal(t, sb.VNCURL, running.VNCURL, "endpoints are stable for the life of the record")

	destroyed, err := r.Destroy(context.Background(), sb.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SandboxStatusDestroyed, destroyed.Status)

	_, err = r.Status(sb.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Empty(t, r.List())

	assert.Equal(t, []string{
		model.SandboxEventCreated,
		model.SandboxEventRunning,
		model.SandboxEventDestroyed,
	}, recorder.eventNames(sb.ID))
}

func TestRegistry_ConcurrentCreates(t *testing.T) {
	r := NewRegistry(NewSimulatedProvisioner(10*time.Millisecond, 0), Config{})
	defer r.Close()

	var wg sync.WaitGroup
	ids := make([]string, 2)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sb, err := r.Create(context.Background(), model.SandboxConfig{})
			if err == nil {
				ids[i] = sb.ID
			}
		}(i)
	}
	wg.Wait()

	require.NotEmpty(t, ids[0])
	require.NotEmpty(t, ids[1])
	assert.NotEqual(t, ids[0], ids[1])

	require.Eventually(t, func() bool {
		return statusOf(r, ids[0]) == model.SandboxStatusRunning &&
			statusOf(r, ids[1]) == model.SandboxStatusRunning
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, r.Count())
}

func TestRegistry_ProvisioningDoesNotBlockOthers(t *testing.T) {
	p := newGatedProvisioner()
	r := NewRegistry(p, Config{})
	defer r.Close()

	first, err := r.Create(context.Background(), model.SandboxConfig{})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.Create(context.Background(), model.SandboxConfig{})
		_ = r.List()
		_, _ = r.Status(first.ID)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("registry operations blocked by outstanding provisioning")
	}
	assert.Equal(t, 2, r.Count())
	close(p.release)
}

func TestRegistry_DestroyWhileCreating(t *testing.T) {
	p := newGatedProvisioner()
	r := NewRegistry(p, Config{})
	defer r.Close()

	sb, err := r.Create(context.Background(), model.SandboxConfig{})
	require.NoError(t, err)

	removed, err := r.Destroy(context.Background(), sb.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SandboxStatusDestroyed, removed.Status)

	close(p.release)
	time.Sleep(20 * time.Millisecond)

	_, err = r.Status(sb.ID)
	assert.ErrorIs(t, err, model.ErrSandboxNotFound, "provisioning must not resurrect a destroyed record")

	p.mu.Lock()
	assert.Equal(t, []string{sb.ID}, p.torndown)
	p.mu.Unlock()
}

func TestRegistry_DestroyUnknown(t *testing.T) {
	r := NewRegistry(NewSimulatedProvisioner(0, 0), Config{})
	defer r.Close()

	_, err := r.Destroy(context.Background(), "missing")
	assert.Equal(t, model.KindNotFound, model.KindOf(err))

	_, err = r.Status("missing")
	assert.Equal(t, model.KindNotFound, model.KindOf(err))
}

func TestRegistry_ProvisionFailureRemovesRecord(t *testing.T) {
	p := newGatedProvisioner()
	p.err = errors.New("quota exceeded")
	close(p.release)

	recorder := &memoryRecorder{}
	r := NewRegistry(p, Config{}, WithRecorder(recorder))
	defer r.Close()

	sb, err := r.Create(context.Background(), model.SandboxConfig{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := r.Status(sb.ID)
		return err != nil
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		names := recorder.eventNames(sb.ID)
		return len(names) == 2 && names[1] == model.SandboxEventProvisionFailed
	}, time.Second, 5*time.Millisecond)
}

func TestRegistry_ProvisionTimeout(t *testing.T) {
	r := NewRegistry(newGatedProvisioner(), Config{ProvisionTimeout: 20 * time.Millisecond})
	defer r.Close()

	sb, err := r.Create(context.Background(), model.SandboxConfig{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := r.Status(sb.ID)
		return err != nil
	}, time.Second, 5*time.Millisecond)
}

func TestRegistry_ListOrderAndCopies(t *testing.T) {
	r := NewRegistry(newGatedProvisioner(), Config{})
	defer r.Close()

	first, err := r.Create(context.Background(), model.SandboxConfig{Environment: "first"})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := r.Create(context.Background(), model.SandboxConfig{Environment: "second"})
	require.NoError(t, err)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
	assert.Equal(t, model.SandboxStatusCreating, list[0].Status, "creating records are listed")

	list[0].Config.Tools[0] = "mutated"
	again, err := r.Status(first.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again.Config.Tools[0])
}

func TestRegistry_Execute(t *testing.T) {
	recorder := &memoryRecorder{}
	r := NewRegistry(NewSimulatedProvisioner(0, 0), Config{}, WithRecorder(recorder))
	defer r.Close()

	t.Run("default sandbox", func(t *testing.T) {
		result, err := r.Execute(context.Background(), &model.ExecRequest{Command: "ls"})
		require.NoError(t, err)
		assert.Equal(t, DefaultSandboxID, result.SandboxID)
		assert.Equal(t, model.ExecStatusCompleted, result.Status)
		assert.Equal(t, "Demo: Executed 'ls' in sandbox", result.Stdout)
		assert.NotEmpty(t, result.ExecutionID)
	})

	t.Run("unknown sandbox", func(t *testing.T) {
		_, err := r.Execute(context.Background(), &model.ExecRequest{Command: "ls", SandboxID: "nope"})
		assert.ErrorIs(t, err, model.ErrSandboxNotFound)
	})

	t.Run("missing command", func(t *testing.T) {
		_, err := r.Execute(context.Background(), &model.ExecRequest{})
		assert.Equal(t, model.KindInvalidArgument, model.KindOf(err))
	})

	t.Run("timeout too large", func(t *testing.T) {
		_, err := r.Execute(context.Background(), &model.ExecRequest{Command: "ls", Timeout: 10_000_000_000})
		assert.Equal(t, model.KindInvalidArgument, model.KindOf(err))
	})

	recorder.mu.Lock()
	assert.Len(t, recorder.executions, 1)
	recorder.mu.Unlock()
}

func TestRegistry_ExecuteTimeout(t *testing.T) {
	p := newGatedProvisioner()
	p.execDelay = 3 * time.Second
	close(p.release)

	recorder := &memoryRecorder{}
	r := NewRegistry(p, Config{}, WithRecorder(recorder))
	defer r.Close()

	sb, err := r.Create(context.Background(), model.SandboxConfig{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err = r.Execute(ctx, &model.ExecRequest{Command: "sleep", SandboxID: sb.ID, Timeout: 1})
	assert.Equal(t, model.KindTimeout, model.KindOf(err))
	assert.Less(t, time.Since(start), 2*time.Second)

	recorder.mu.Lock()
	require.Len(t, recorder.executions, 1)
	assert.Equal(t, model.ExecStatusTimeout, recorder.executions[0].Status)
	recorder.mu.Unlock()
}

// silentProvisioner reports success without any output.
type silentProvisioner struct {
	*SimulatedProvisioner
}

func (silentProvisioner) Exec(ctx context.Context, id, command string, env map[string]string) (*ExecOutput, error) {
	return nil, nil
}

func TestRegistry_ExecuteWithoutOutput(t *testing.T) {
	recorder := &memoryRecorder{}
	r := NewRegistry(silentProvisioner{NewSimulatedProvisioner(0, 0)}, Config{}, WithRecorder(recorder))
	defer r.Close()

	_, err := r.Execute(context.Background(), &model.ExecRequest{Command: "ls"})
	assert.Equal(t, model.KindUpstreamFailure, model.KindOf(err))

	recorder.mu.Lock()
	require.Len(t, recorder.executions, 1)
	assert.Equal(t, model.ExecStatusFailed, recorder.executions[0].Status)
	recorder.mu.Unlock()
}

func TestRegistry_ExecuteCancelled(t *testing.T) {
	p := newGatedProvisioner()
	p.execDelay = time.Second
	r := NewRegistry(p, Config{})
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Execute(ctx, &model.ExecRequest{Command: "ls"})
	assert.Equal(t, model.KindCancelled, model.KindOf(err))
}

func TestRegistry_CloseRejectsCreate(t *testing.T) {
	r := NewRegistry(newGatedProvisioner(), Config{})
	_, err := r.Create(context.Background(), model.SandboxConfig{})
	require.NoError(t, err)

	require.NoError(t, r.Close())

	_, err = r.Create(context.Background(), model.SandboxConfig{})
	assert.Error(t, err)
}

// Property: after any sequence of creates and destroys, destroyed ids are
// never reported by Status or List.
func TestRegistryDestroyedIdsStayGoneProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("destroyed sandboxes are never reported", prop.ForAll(
		func(ops []bool) bool {
			p := NewSimulatedProvisioner(time.Millisecond, 0)
			r := NewRegistry(p, Config{})
			defer r.Close()

			var live []string
			destroyed := make(map[string]bool)

			for _, create := range ops {
				if create || len(live) == 0 {
					sb, err := r.Create(context.Background(), model.SandboxConfig{})
					if err != nil {
						return false
					}
					live = append(live, sb.ID)
					continue
				}
				id := live[0]
				live = live[1:]
				if _, err := r.Destroy(context.Background(), id); err != nil {
					return false
				}
				destroyed[id] = true
			}

			// Let outstanding provisioning settle.
			time.Sleep(5 * time.Millisecond)

			for id := range destroyed {
				if _, err := r.Status(id); !errors.Is(err, model.ErrNotFound) {
					return false
				}
			}
			for _, sb := range r.List() {
				if destroyed[sb.ID] {
					return false
				}
			}
			return r.Count() == len(live)
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
