package executor

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/resurrectci/resurrectci/internal/models"
)

var (
	// ErrBusy is returned when an execute call is made while another is
	// still in flight for the same session.
	ErrBusy = errors.New("a command is already running")

	// ErrUnreachable indicates a backend could not be reached. During setup
	// it triggers fallback to the next variant; during normal operation it
	// surfaces as a failed command.
	ErrUnreachable = errors.New("execution backend unreachable")
)

// Request carries one command and the session context it runs in.
type Request struct {
	Command          string
	WorkingDirectory string
	ProjectKey       string
}

// Result is the terminal outcome of a command.
type Result struct {
	Success  bool
	ExitCode int

	// WorkingDirectory is non-empty only for backends that track cwd
	// server-side and report it back after each call.
	WorkingDirectory string
}

// Sink receives output produced while a command runs. Chunks may contain
// embedded newlines; the dispatcher splits them into transcript lines.
// PortOpened is the side channel for "a network server became reachable on
// port N" events from backends that can observe them.
type Sink interface {
	Output(text string)
	ErrorOutput(text string)
	PortOpened(port int)
}

// Backend executes commands for one session. Implementations are not
// required to be safe for concurrent Execute calls; callers go through
// Guard, which rejects overlap with ErrBusy.
type Backend interface {
	Mode() models.ExecutionMode
	Execute(ctx context.Context, req Request, sink Sink) (Result, error)
	Close() error
}

// Guard wraps a backend with the single-flight rule: at most one in-flight
// Execute per session, a second call fails fast with ErrBusy. This protects
// shared working-directory state even if the UI layer forgets to disable
// input while a command runs.
type Guard struct {
	backend Backend
	running atomic.Bool
}

// NewGuard wraps backend with single-flight enforcement.
func NewGuard(backend Backend) *Guard {
	return &Guard{backend: backend}
}

func (g *Guard) Mode() models.ExecutionMode {
	return g.backend.Mode()
}

func (g *Guard) Execute(ctx context.Context, req Request, sink Sink) (Result, error) {
	if !g.running.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	defer g.running.Store(false)

	return g.backend.Execute(ctx, req, sink)
}

// Running reports whether an Execute call is currently in flight.
func (g *Guard) Running() bool {
	return g.running.Load()
}

func (g *Guard) Close() error {
	return g.backend.Close()
}
