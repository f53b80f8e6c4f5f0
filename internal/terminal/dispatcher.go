package terminal

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/resurrectci/resurrectci/internal/executor"
	"github.com/resurrectci/resurrectci/internal/logger"
	"github.com/resurrectci/resurrectci/internal/models"
)

const helpText = `Built-in commands:
  clear   clear the transcript
  help    show this message
  setup   tear down and reinitialize the project environment
  exit    close the terminal

Anything else is sent to the execution backend for this session.`

// Environment is the slice of session state the dispatcher needs. The
// session manager implements it; tests substitute a fake.
type Environment interface {
	ProjectKey() string
	WorkingDirectory() string
	SetWorkingDirectory(dir string)
	ExecutionMode() models.ExecutionMode
	Backend() executor.Backend

	// Reset runs a forced teardown followed by a fresh setup, for the
	// `setup` built-in.
	Reset(ctx context.Context) error

	// DevServerDetected translates a port side-channel event into dev
	// server state.
	DevServerDetected(port int)
}

// Dispatcher turns submitted lines into built-in actions or backend calls
// and republishes results into the transcript. It enforces the single-flight
// rule itself because built-ins like `setup` bypass the backend guard and
// must not race an in-flight execute.
type Dispatcher struct {
	log     *Log
	history *History
	env     Environment
	onClose func()

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewDispatcher wires a dispatcher to its transcript, history, and session
// environment. onClose fires when the user submits `exit`; it may be nil.
func NewDispatcher(log *Log, history *History, env Environment, onClose func()) *Dispatcher {
	return &Dispatcher{log: log, history: history, env: env, onClose: onClose}
}

// IsRunning reports whether a command is in flight.
func (d *Dispatcher) IsRunning() bool {
	return d.running.Load()
}

// Run handles one submitted line, blocking until it completes. It returns
// executor.ErrBusy when a command is already in flight; the transcript is
// unchanged by a rejected submission. Backend failures are reported through
// the transcript, not the error return.
func (d *Dispatcher) Run(ctx context.Context, line string) error {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}

	switch trimmed {
	case "clear":
		if d.running.Load() {
			return executor.ErrBusy
		}
		d.history.Record(trimmed)
		d.log.Clear()
		return nil

	case "help":
		if d.running.Load() {
			return executor.ErrBusy
		}
		d.history.Record(trimmed)
		d.log.Append(models.MessageSystem, helpText)
		return nil

	case "exit":
		if d.running.Load() {
			return executor.ErrBusy
		}
		d.history.Record(trimmed)
		if d.onClose != nil {
			d.onClose()
		}
		return nil

	case "setup":
		return d.runSetup(ctx)
	}

	return d.runCommand(ctx, trimmed)
}

func (d *Dispatcher) runSetup(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return executor.ErrBusy
	}
	defer d.running.Store(false)

	d.history.Record("setup")
	d.log.Append(models.MessageSystem, "Reinitializing project environment...")

	if err := d.env.Reset(ctx); err != nil {
		d.log.Append(models.MessageError, fmt.Sprintf("Environment setup failed: %v", err))
		return nil
	}

	d.log.Append(models.MessageSystem, fmt.Sprintf("Environment ready (%s mode)", d.env.ExecutionMode()))
	return nil
}

func (d *Dispatcher) runCommand(ctx context.Context, command string) error {
	if !d.running.CompareAndSwap(false, true) {
		return executor.ErrBusy
	}
	defer func() {
		// Always reset, success or failure; a stuck isRunning would wedge
		// the whole session.
		d.setCancel(nil)
		d.running.Store(false)
	}()

	d.history.Record(command)
	d.log.Append(models.MessageInput, "$ "+command)

	backend := d.env.Backend()
	if backend == nil {
		// The environment was torn down, or setup has not finished yet.
		d.log.Append(models.MessageError, "No execution environment; run setup to reconnect")
		d.log.Append(models.MessageSystem, "Command failed")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.setCancel(cancel)

	simulated := d.env.ExecutionMode() == models.ModeSimulated
	sink := &transcriptSink{dispatcher: d, simulated: simulated}

	workingDir := d.env.WorkingDirectory()
	result, err := backend.Execute(runCtx, executor.Request{
		Command:          command,
		WorkingDirectory: workingDir,
		ProjectKey:       d.env.ProjectKey(),
	}, sink)

	switch {
	case errors.Is(err, executor.ErrBusy):
		return err

	case errors.Is(err, context.Canceled):
		d.log.Append(models.MessageSystem, "Command terminated")

	case err != nil:
		logger.Warnf("Command failed for %s: %v", d.env.ProjectKey(), err)
		d.appendLines(models.MessageError, err.Error(), simulated)
		d.log.Append(models.MessageSystem, "Command failed")

	case result.Success:
		d.applyWorkingDirectory(command, workingDir, result)
		d.appendSummary(models.MessageSystem, "Command completed", simulated)

	default:
		d.appendSummary(models.MessageSystem, fmt.Sprintf("Command failed (exit %d)", result.ExitCode), simulated)
	}

	return nil
}

// applyWorkingDirectory updates session cwd state. Backends that track cwd
// server-side report it in the result; for the rest, a plain cd that the
// backend accepted is resolved locally.
func (d *Dispatcher) applyWorkingDirectory(command, previous string, result executor.Result) {
	if result.WorkingDirectory != "" {
		if result.WorkingDirectory != previous {
			d.env.SetWorkingDirectory(result.WorkingDirectory)
		}
		return
	}

	if resolved, ok := resolveCd(command, previous); ok && resolved != previous {
		d.env.SetWorkingDirectory(resolved)
	}
}

func resolveCd(command, cwd string) (string, bool) {
	fields := strings.Fields(command)
	if len(fields) == 0 || fields[0] != "cd" {
		return "", false
	}
	if len(fields) == 1 {
		return cwd, false
	}

	target := fields[1]
	if !strings.HasPrefix(target, "/") {
		target = path.Join(cwd, target)
	}
	return path.Clean(target), true
}

// Interrupt requests cancellation of the in-flight command. For the
// sandboxed backend this terminates the process best-effort; for remote and
// simulated backends it only stops further transcript writes and re-enables
// input.
func (d *Dispatcher) Interrupt() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (d *Dispatcher) setCancel(cancel context.CancelFunc) {
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()
}

func (d *Dispatcher) appendLines(kind models.MessageKind, text string, simulated bool) {
	text = strings.TrimRight(text, "\n")
	for _, line := range strings.Split(text, "\n") {
		if simulated {
			d.log.AppendSimulated(kind, line)
		} else {
			d.log.Append(kind, line)
		}
	}
}

func (d *Dispatcher) appendSummary(kind models.MessageKind, text string, simulated bool) {
	if simulated {
		d.log.AppendSimulated(kind, text)
		return
	}
	d.log.Append(kind, text)
}

// transcriptSink republishes backend output into the transcript line by
// line, preserving the order chunks arrive in.
type transcriptSink struct {
	dispatcher *Dispatcher
	simulated  bool
}

func (s *transcriptSink) Output(text string) {
	s.dispatcher.appendLines(models.MessageOutput, text, s.simulated)
}

func (s *transcriptSink) ErrorOutput(text string) {
	s.dispatcher.appendLines(models.MessageError, text, s.simulated)
}

func (s *transcriptSink) PortOpened(port int) {
	s.dispatcher.env.DevServerDetected(port)
}
