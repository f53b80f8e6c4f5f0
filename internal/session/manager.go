package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/resurrectci/resurrectci/internal/executor"
	"github.com/resurrectci/resurrectci/internal/logger"
	"github.com/resurrectci/resurrectci/internal/models"
	"github.com/resurrectci/resurrectci/internal/recovery"
	"github.com/resurrectci/resurrectci/internal/repository"
)

// Emitter receives session lifecycle and transcript events for fan-out to
// connected clients. The SSE broadcaster implements it.
type Emitter interface {
	TerminalMessage(projectKey string, msg models.TerminalMessage)
	SessionStatus(projectKey string, info models.SessionInfo)
	DevServerStarted(projectKey string, server models.DevServer)
	DevServerStopped(projectKey string)
}

type noopEmitter struct{}

func (noopEmitter) TerminalMessage(string, models.TerminalMessage) {}
func (noopEmitter) SessionStatus(string, models.SessionInfo)       {}
func (noopEmitter) DevServerStarted(string, models.DevServer)      {}
func (noopEmitter) DevServerStopped(string)                        {}

// Options configures backend selection for sessions the manager opens.
type Options struct {
	// ExecutorURL enables the remote backend variants when non-empty.
	ExecutorURL string

	// SandboxEnabled, SandboxImage, and WorkspaceDir drive the
	// container-backed variant; a project checkout under WorkspaceDir is
	// bind-mounted into the container.
	SandboxEnabled bool
	SandboxImage   string
	WorkspaceDir   string

	// GitHubToken authenticates checkout clones for private projects.
	GitHubToken string

	// DevServerPorts are polled during sandboxed commands to detect a dev
	// server coming up.
	DevServerPorts []int
}

// Manager owns all terminal sessions, one per project key. Opening an
// already-open session returns it untouched; the environment is only
// (re)initialized by a fresh open or the `setup` built-in.
type Manager struct {
	opts    Options
	emitter Emitter

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager. emitter may be nil.
func NewManager(opts Options, emitter Emitter) *Manager {
	if emitter == nil {
		emitter = noopEmitter{}
	}
	return &Manager{
		opts:     opts,
		emitter:  emitter,
		sessions: make(map[string]*Session),
	}
}

// Open returns the session for a project, creating and setting it up first
// if none exists. Setup never fails outright: when no real backend is
// reachable the session comes up degraded on the simulated fallback.
func (m *Manager) Open(ctx context.Context, projectKey string) (*Session, error) {
	if projectKey == "" {
		return nil, fmt.Errorf("project key is required")
	}

	m.mu.Lock()
	if existing, ok := m.sessions[projectKey]; ok {
		m.mu.Unlock()
		return existing, nil
	}

	s := newSession(m, projectKey)
	m.sessions[projectKey] = s
	m.mu.Unlock()

	// Forward transcript appends to connected clients for the session's
	// whole lifetime.
	subID, ch := s.log.Subscribe()
	s.subID = subID
	recovery.SafeGo("transcript-feed/"+projectKey, func() {
		for msg := range ch {
			m.emitter.TerminalMessage(projectKey, msg)
		}
	})

	s.setup(ctx)
	return s, nil
}

// Get returns the session for a project, if open.
func (m *Manager) Get(projectKey string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[projectKey]
	return s, ok
}

// Close tears down and removes a project's session. Closing an unknown
// project is an error so transports can answer 404.
func (m *Manager) Close(ctx context.Context, projectKey string) error {
	m.mu.Lock()
	s, ok := m.sessions[projectKey]
	if ok {
		delete(m.sessions, projectKey)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("no session for project %s", projectKey)
	}

	s.teardown()
	s.log.Unsubscribe(s.subID)
	logger.Infof("Session closed for %s", projectKey)
	return nil
}

// List snapshots all open sessions.
func (m *Manager) List() []models.SessionInfo {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	infos := make([]models.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// Shutdown tears down every open session. Used on process exit so sandbox
// containers do not leak.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for key, s := range sessions {
		s.teardown()
		s.log.Unsubscribe(s.subID)
		logger.Infof("Session closed for %s", key)
	}
}

// selectBackend runs the fallback ladder for one project. The sandbox
// variant needs a local checkout to mount; a failed checkout disables that
// rung rather than failing the session.
func (m *Manager) selectBackend(ctx context.Context, projectKey string) executor.Backend {
	checkoutDir := ""
	if m.opts.SandboxEnabled && m.opts.WorkspaceDir != "" {
		dir := repository.CheckoutPath(m.opts.WorkspaceDir, projectKey)
		if err := repository.EnsureCheckout(ctx, projectKey, dir, m.opts.GitHubToken); err != nil {
			logger.Warnf("Checkout for %s unavailable, skipping sandbox: %v", projectKey, err)
		} else {
			checkoutDir = dir
		}
	}

	return executor.Select(ctx, executor.SelectOptions{
		ProjectKey:     projectKey,
		ProjectPath:    "/workspace",
		ExecutorURL:    m.opts.ExecutorURL,
		SandboxEnabled: m.opts.SandboxEnabled && checkoutDir != "",
		SandboxImage:   m.opts.SandboxImage,
		CheckoutDir:    checkoutDir,
		DevServerPorts: m.opts.DevServerPorts,
	})
}
