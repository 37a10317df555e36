package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/adx-agent/backend/internal/model"
)

// ExecOutput is what a provisioner reports for a finished command.
type ExecOutput struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Provisioner is the boundary to the remote sandbox provider. Provision is
// called without any registry lock held and may take as long as the
// provider needs; the registry bounds it with its own timeout.
type Provisioner interface {
	// Provision brings up the environment for a sandbox.
	Provision(ctx context.Context, id string, cfg model.SandboxConfig) error

	// Exec runs a command inside a sandbox.
	Exec(ctx context.Context, id, command string, env map[string]string) (*ExecOutput, error)

	// Teardown releases the environment of a sandbox.
	Teardown(ctx context.Context, id string) error
}

// SimulatedProvisioner stands in for a real provider: provisioning is a
// delay and commands are echoed back.
type SimulatedProvisioner struct {
	Delay     time.Duration
	ExecDelay time.Duration
}

// NewSimulatedProvisioner creates a simulated provisioner.
func NewSimulatedProvisioner(delay, execDelay time.Duration) *SimulatedProvisioner {
	return &SimulatedProvisioner{
		Delay:     delay,
		ExecDelay: execDelay,
	}
}

// Provision waits for the configured delay.
func (p *SimulatedProvisioner) Provision(ctx context.Context, id string, cfg model.SandboxConfig) error {
	return sleep(ctx, p.Delay)
}

// Exec reports a successful demo execution.
func (p *SimulatedProvisioner) Exec(ctx context.Context, id, command string, env map[string]string) (*ExecOutput, error) {
	if err := sleep(ctx, p.ExecDelay); err != nil {
		return nil, err
	}
	return &ExecOutput{
		ExitCode: 0,
		Stdout:   fmt.Sprintf("Demo: Executed '%s' in sandbox", command),
	}, nil
}

// Teardown does nothing.
func (p *SimulatedProvisioner) Teardown(ctx context.Context, id string) error {
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
