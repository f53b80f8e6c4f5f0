package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/resurrectci/resurrectci/internal/executor"
	"github.com/resurrectci/resurrectci/internal/logger"
	"github.com/resurrectci/resurrectci/internal/models"
	"github.com/resurrectci/resurrectci/internal/terminal"
)

// defaultWorkingDirectory is where every backend variant starts. The
// sandboxed variant bind-mounts the project checkout here; the remote
// variants chroot their own sessions to the same path.
const defaultWorkingDirectory = "/workspace"

// Session is the per-project terminal state: transcript, history, selected
// execution backend, working directory, and dev server bookkeeping. One
// session exists per project key; concurrent use is safe.
type Session struct {
	projectKey string
	createdAt  time.Time

	log        *terminal.Log
	history    *terminal.History
	dispatcher *terminal.Dispatcher

	manager *Manager
	subID   string

	mu         sync.RWMutex
	status     models.ConnectionStatus
	mode       models.ExecutionMode
	workingDir string
	backend    executor.Backend
	devServer  *models.DevServer
}

func newSession(manager *Manager, projectKey string) *Session {
	s := &Session{
		projectKey: projectKey,
		createdAt:  time.Now(),
		log:        terminal.NewLog(),
		history:    terminal.NewHistory(),
		manager:    manager,
		status:     models.StatusDisconnected,
		mode:       models.ModeSimulated,
		workingDir: defaultWorkingDirectory,
	}
	s.dispatcher = terminal.NewDispatcher(s.log, s.history, s, func() {
		// `exit` closes the whole session, not just the transcript.
		if err := manager.Close(context.Background(), projectKey); err != nil {
			logger.Warnf("Session close for %s failed: %v", projectKey, err)
		}
	})
	return s
}

// setup selects an execution backend and moves the session to connected (or
// degraded when only the simulated fallback is available).
func (s *Session) setup(ctx context.Context) {
	s.setStatus(models.StatusConnecting)

	backend := executor.NewGuard(s.manager.selectBackend(ctx, s.projectKey))

	s.mu.Lock()
	s.backend = backend
	s.mode = backend.Mode()
	s.workingDir = defaultWorkingDirectory
	if s.mode == models.ModeSimulated {
		s.status = models.StatusDegraded
	} else {
		s.status = models.StatusConnected
	}
	s.mu.Unlock()

	logger.Infof("Session for %s ready in %s mode", s.projectKey, backend.Mode())
	s.manager.emitter.SessionStatus(s.projectKey, s.Info())
}

// teardown releases the backend and returns the session to disconnected.
// The transcript survives teardown; only the execution environment is torn
// down.
func (s *Session) teardown() {
	s.StopDevServer()
	s.dispatcher.Interrupt()

	s.mu.Lock()
	backend := s.backend
	s.backend = nil
	s.status = models.StatusDisconnected
	s.mu.Unlock()

	if backend != nil {
		if err := backend.Close(); err != nil {
			logger.Warnf("Backend teardown for %s: %v", s.projectKey, err)
		}
	}
	s.manager.emitter.SessionStatus(s.projectKey, s.Info())
}

// Run submits one line to the dispatcher. It blocks until the command
// completes and returns executor.ErrBusy while another command is in flight.
func (s *Session) Run(ctx context.Context, line string) error {
	return s.dispatcher.Run(ctx, line)
}

// Interrupt cancels the in-flight command, if any.
func (s *Session) Interrupt() {
	s.dispatcher.Interrupt()
}

// Info returns a point-in-time snapshot of the session.
func (s *Session) Info() models.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := models.SessionInfo{
		ProjectKey:       s.projectKey,
		Status:           s.status,
		Mode:             s.mode,
		WorkingDirectory: s.workingDir,
		IsRunning:        s.dispatcher.IsRunning(),
		CreatedAt:        s.createdAt,
	}
	if s.devServer != nil {
		serverCopy := *s.devServer
		info.DevServer = &serverCopy
	}
	return info
}

// Messages returns the full transcript.
func (s *Session) Messages() []models.TerminalMessage {
	return s.log.Messages()
}

// MessagesSince returns transcript entries after the given id; an unknown id
// yields the full transcript.
func (s *Session) MessagesSince(id string) []models.TerminalMessage {
	return s.log.Since(id)
}

// Subscribe registers a live feed of transcript entries; Unsubscribe
// releases it. Transports use this for per-session streaming.
func (s *Session) Subscribe() (string, <-chan models.TerminalMessage) {
	return s.log.Subscribe()
}

// Unsubscribe removes a transcript subscriber.
func (s *Session) Unsubscribe(id string) {
	s.log.Unsubscribe(id)
}

// History returns the recorded commands, oldest first.
func (s *Session) History() []string {
	return s.history.Entries()
}

// HistoryPrevious and HistoryNext expose arrow-key navigation to transports
// that keep no client-side state.
func (s *Session) HistoryPrevious() (string, bool) { return s.history.Previous() }
func (s *Session) HistoryNext() (string, bool)     { return s.history.Next() }

// StopDevServer stops the tracked dev server if one is running. Calling it
// with no dev server is a no-op; the stopped event fires at most once per
// detected server.
func (s *Session) StopDevServer() {
	s.mu.Lock()
	server := s.devServer
	s.devServer = nil
	s.mu.Unlock()

	if server == nil {
		return
	}

	// The dev server is the in-flight command; cancelling it terminates the
	// process on backends that can (sandbox), and stops transcript writes on
	// the rest.
	s.dispatcher.Interrupt()

	logger.Infof("Dev server on port %d stopped for %s", server.Port, s.projectKey)
	s.manager.emitter.DevServerStopped(s.projectKey)
	s.manager.emitter.SessionStatus(s.projectKey, s.Info())
}

// ProjectKey implements terminal.Environment.
func (s *Session) ProjectKey() string { return s.projectKey }

// WorkingDirectory implements terminal.Environment.
func (s *Session) WorkingDirectory() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workingDir
}

// SetWorkingDirectory implements terminal.Environment.
func (s *Session) SetWorkingDirectory(dir string) {
	s.mu.Lock()
	s.workingDir = dir
	s.mu.Unlock()
}

// ExecutionMode implements terminal.Environment.
func (s *Session) ExecutionMode() models.ExecutionMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Backend implements terminal.Environment.
func (s *Session) Backend() executor.Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend
}

// Reset implements terminal.Environment: forced teardown plus a fresh
// backend selection, for the `setup` built-in. Working directory and dev
// server state reset; the transcript does not.
func (s *Session) Reset(ctx context.Context) error {
	s.StopDevServer()

	s.mu.Lock()
	backend := s.backend
	s.backend = nil
	s.mu.Unlock()

	if backend != nil {
		if err := backend.Close(); err != nil {
			logger.Warnf("Backend teardown for %s: %v", s.projectKey, err)
		}
	}

	s.setup(ctx)
	return nil
}

// DevServerDetected implements terminal.Environment. Only the first
// detection per server is kept; the started event fires exactly once.
func (s *Session) DevServerDetected(port int) {
	s.mu.Lock()
	if s.devServer != nil {
		s.mu.Unlock()
		return
	}
	server := models.DevServer{
		URL:       fmt.Sprintf("http://localhost:%d", port),
		Port:      port,
		StartedAt: time.Now(),
	}
	s.devServer = &server
	s.mu.Unlock()

	logger.Infof("Dev server detected on port %d for %s", port, s.projectKey)
	s.manager.emitter.DevServerStarted(s.projectKey, server)
	s.manager.emitter.SessionStatus(s.projectKey, s.Info())
}

func (s *Session) setStatus(status models.ConnectionStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	s.manager.emitter.SessionStatus(s.projectKey, s.Info())
}
