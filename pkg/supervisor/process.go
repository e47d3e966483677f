package supervisor

import (
	"sync"
	"time"

	"github.com/httpmocker/httpmocker/pkg/app"
)

// Status is the lifecycle state of a process.
type Status string

// Process states.
const (
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
)

// Child is a spawned app process.
type Child interface {
	// Pid returns the OS process id, or 0 for in-process children.
	Pid() int
	// Done is closed once the child has exited.
	Done() <-chan struct{}
	// Err returns the exit error after Done is closed.
	Err() error
	// Terminate asks the child to exit.
	Terminate() error
	// Kill stops the child immediately.
	Kill() error
}

// Process is a supervised app.
type Process struct {
	Spec      app.Spec
	StartedAt time.Time

	child Child

	mu       sync.Mutex
	exitedAt time.Time
}

// NewProcess wraps a spawned child.
func NewProcess(spec app.Spec, child Child) *Process {
	return &Process{Spec: spec, StartedAt: time.Now(), child: child}
}

// ID returns the app id.
func (p *Process) ID() string {
	return p.Spec.ID
}

// Pid returns the child's process id.
func (p *Process) Pid() int {
	return p.child.Pid()
}

// Done is closed when the child exits.
func (p *Process) Done() <-chan struct{} {
	return p.child.Done()
}

// Status reports whether the child is still running.
func (p *Process) Status() Status {
	select {
	case <-p.child.Done():
		return StatusExited
	default:
		return StatusRunning
	}
}

// Alive reports whether the child is running.
func (p *Process) Alive() bool {
	return p.Status() == StatusRunning
}

// ExitErr returns the child's exit error once it has exited.
func (p *Process) ExitErr() error {
	if p.Alive() {
		return nil
	}
	return p.child.Err()
}

// Info is a serializable view of a Process.
type Info struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	Host      string     `json:"host"`
	Port      int        `json:"port"`
	SSL       bool       `json:"ssl"`
	Pid       int        `json:"pid,omitempty"`
	Status    Status     `json:"status"`
	StartedAt time.Time  `json:"startedAt"`
	ExitedAt  *time.Time `json:"exitedAt,omitempty"`
}

// Info returns a snapshot of the process.
func (p *Process) Info() Info {
	info := Info{
		ID:        p.Spec.ID,
		Kind:      p.Spec.Kind,
		Host:      p.Spec.Host,
		Port:      p.Spec.Port,
		SSL:       p.Spec.TLSEnabled(),
		Pid:       p.child.Pid(),
		Status:    p.Status(),
		StartedAt: p.StartedAt,
	}
	p.mu.Lock()
	if !p.exitedAt.IsZero() {
		t := p.exitedAt
		info.ExitedAt = &t
	}
	p.mu.Unlock()
	return info
}

func (p *Process) markExited() {
	p.mu.Lock()
	p.exitedAt = time.Now()
	p.mu.Unlock()
}
