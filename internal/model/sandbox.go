package model

import (
	"fmt"
	"net/url"
	"time"
)

// SandboxStatus represents the lifecycle state of a sandbox.
type SandboxStatus string

const (
	SandboxStatusCreating  SandboxStatus = "creating"
	SandboxStatusRunning   SandboxStatus = "running"
	SandboxStatusDestroyed SandboxStatus = "destroyed"
)

// Sandbox configuration defaults.
const (
	DefaultEnvironment = "ubuntu-desktop"
	DefaultDisplay     = "1920x1080"
	DefaultMemory      = 4
	DefaultCPU         = 2
)

// DefaultTools returns the tool set requested when none is given.
func DefaultTools() []string {
	return []string{"browser", "terminal", "code_editor"}
}

// SandboxConfig is the caller-supplied configuration of a sandbox.
type SandboxConfig struct {
	Environment string   `json:"environment"`
	Display     string   `json:"display"`
	Tools       []string `json:"tools"`
	Memory      int      `json:"memory"`
	CPU         int      `json:"cpu"`
}

// WithDefaults returns a copy of c with defaults applied to absent fields.
func (c SandboxConfig) WithDefaults() SandboxConfig {
	if c.Environment == "" {
		c.Environment = DefaultEnvironment
	}
	if c.Display == "" {
		c.Display = DefaultDisplay
	}
	if c.Tools == nil {
		c.Tools = DefaultTools()
	} else {
		c.Tools = append([]string(nil), c.Tools...)
	}
	if c.Memory <= 0 {
		c.Memory = DefaultMemory
	}
	if c.CPU <= 0 {
		c.CPU = DefaultCPU
	}
	return c
}

// EndpointScheme is the fixed host/port convention used to derive sandbox URLs.
type EndpointScheme struct {
	Host    string
	VNCPort int
	WebPort int
}

// DefaultEndpointScheme returns the localhost convention.
func DefaultEndpointScheme() EndpointScheme {
	return EndpointScheme{Host: "localhost", VNCPort: 5900, WebPort: 6080}
}

// SandboxEndpoints are the API paths through which a sandbox is reached.
type SandboxEndpoints struct {
	Execute string `json:"execute"`
	Status  string `json:"status"`
}

// DerivedEndpoints groups every connection descriptor derived from an id.
type DerivedEndpoints struct {
	VNCURL       string
	WebInterface string
	Endpoints    SandboxEndpoints
}

// DeriveEndpoints computes the connection descriptors of a sandbox. It is a
// pure function of the scheme and the identifier.
func DeriveEndpoints(scheme EndpointScheme, id string) DerivedEndpoints {
	escaped := url.QueryEscape(id)
	return DerivedEndpoints{
		VNCURL:       fmt.Sprintf("vnc://%s:%d/%s", scheme.Host, scheme.VNCPort, id),
		WebInterface: fmt.Sprintf("http://%s:%d/vnc.html?id=%s", scheme.Host, scheme.WebPort, escaped),
		Endpoints: SandboxEndpoints{
			Execute: "/api/execute?sandbox_id=" + escaped,
			Status:  "/api/sandbox/status/" + id,
		},
	}
}

// Sandbox is the registry record of a remote execution environment.
type Sandbox struct {
	ID           string           `json:"id"`
	Status       SandboxStatus    `json:"status"`
	Config       SandboxConfig    `json:"config"`
	CreatedAt    time.Time        `json:"created_at"`
	VNCURL       string           `json:"vnc_url"`
	WebInterface string           `json:"web_interface"`
	Endpoints    SandboxEndpoints `json:"endpoints"`
}

// Clone returns a deep copy of the record.
func (s *Sandbox) Clone() *Sandbox {
	c := *s
	c.Config.Tools = append([]string(nil), s.Config.Tools...)
	return &c
}

// SandboxRequest is the action-dispatch request of the sandbox API.
type SandboxRequest struct {
	Action    string         `json:"action"`
	Config    *SandboxConfig `json:"config"`
	SandboxID string         `json:"sandbox_id"`
}

// Sandbox actions.
const (
	SandboxActionCreate  = "create"
	SandboxActionDestroy = "destroy"
	SandboxActionStatus  = "status"
)

// Validate validates the sandbox request.
func (r *SandboxRequest) Validate() error {
	switch r.Action {
	case SandboxActionCreate:
		return nil
	case SandboxActionDestroy, SandboxActionStatus:
		if r.SandboxID == "" {
			return ErrSandboxNotFound
		}
		return nil
	default:
		return NewError(KindInvalidArgument, "invalid action, use: create, destroy, or status", nil)
	}
}

// Execution timeouts. DefaultExecTimeout is applied when a request has none;
// MaxExecTimeout is the largest a request may ask for.
const (
	DefaultExecTimeout = 30 * time.Second
	MaxExecTimeout     = time.Hour
)

// ExecRequest is a command to run inside a sandbox.
type ExecRequest struct {
	Command     string            `json:"command"`
	Timeout     int               `json:"timeout"`
	SandboxID   string            `json:"sandbox_id"`
	Environment map[string]string `json:"environment"`
}

// Validate validates the execution request.
func (r *ExecRequest) Validate() error {
	if r.Command == "" {
		return ErrCommandRequired
	}
	if r.Timeout < 0 {
		return NewError(KindInvalidArgument, "timeout must not be negative", nil)
	}
	if r.Timeout > int(MaxExecTimeout/time.Second) {
		return NewError(KindInvalidArgument, fmt.Sprintf("timeout must not exceed %d seconds", int(MaxExecTimeout/time.Second)), nil)
	}
	return nil
}

// TimeoutDuration returns the request timeout, defaulting to
// DefaultExecTimeout and capped at MaxExecTimeout.
func (r *ExecRequest) TimeoutDuration() time.Duration {
	if r.Timeout <= 0 {
		return DefaultExecTimeout
	}
	if r.Timeout > int(MaxExecTimeout/time.Second) {
		return MaxExecTimeout
	}
	return time.Duration(r.Timeout) * time.Second
}

// ExecStatus is the outcome of an execution.
type ExecStatus string

const (
	ExecStatusCompleted ExecStatus = "completed"
	ExecStatusFailed    ExecStatus = "failed"
	ExecStatusTimeout   ExecStatus = "timeout"
)

// ExecResult is the outcome of a command executed in a sandbox.
type ExecResult struct {
	ExecutionID   string     `json:"execution_id"`
	SandboxID     string     `json:"sandbox_id"`
	Command       string     `json:"command"`
	Status        ExecStatus `json:"status"`
	ExitCode      int        `json:"exit_code"`
	Stdout        string     `json:"stdout"`
	Stderr        string     `json:"stderr"`
	ExecutionTime float64    `json:"execution_time"`
	Timestamp     time.Time  `json:"timestamp"`
}

// SandboxEvent is a journaled lifecycle transition.
type SandboxEvent struct {
	ID        int64         `json:"id"`
	SandboxID string        `json:"sandbox_id"`
	Event     string        `json:"event"`
	Status    SandboxStatus `json:"status"`
	Detail    string        `json:"detail,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Sandbox lifecycle event names.
const (
	SandboxEventCreated         = "created"
	SandboxEventRunning         = "running"
	SandboxEventProvisionFailed = "provision_failed"
	SandboxEventDestroyed       = "destroyed"
)
