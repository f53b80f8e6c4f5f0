package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resurrectci/resurrectci/internal/models"
)

// recordingEmitter captures emitted events for assertions.
type recordingEmitter struct {
	mu       sync.Mutex
	messages []models.TerminalMessage
	statuses []models.ConnectionStatus
	started  []models.DevServer
	stopped  int
}

func (e *recordingEmitter) TerminalMessage(_ string, msg models.TerminalMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(e.messages, msg)
}

func (e *recordingEmitter) SessionStatus(_ string, info models.SessionInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statuses = append(e.statuses, info.Status)
}

func (e *recordingEmitter) DevServerStarted(_ string, server models.DevServer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = append(e.started, server)
}

func (e *recordingEmitter) DevServerStopped(string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped++
}

func (e *recordingEmitter) snapshot() recordingEmitter {
	e.mu.Lock()
	defer e.mu.Unlock()
	return recordingEmitter{
		messages: append([]models.TerminalMessage(nil), e.messages...),
		statuses: append([]models.ConnectionStatus(nil), e.statuses...),
		started:  append([]models.DevServer(nil), e.started...),
		stopped:  e.stopped,
	}
}

// offlineManager selects the simulated fallback: no executor URL, sandbox
// disabled.
func offlineManager(emitter Emitter) *Manager {
	return NewManager(Options{}, emitter)
}

func TestOpenFallsBackToSimulated(t *testing.T) {
	emitter := &recordingEmitter{}
	m := offlineManager(emitter)

	s, err := m.Open(context.Background(), "octo/demo")
	require.NoError(t, err)

	info := s.Info()
	assert.Equal(t, models.ModeSimulated, info.Mode)
	assert.Equal(t, models.StatusDegraded, info.Status)
	assert.Equal(t, "/workspace", info.WorkingDirectory)

	events := emitter.snapshot()
	assert.Equal(t, []models.ConnectionStatus{models.StatusConnecting, models.StatusDegraded}, events.statuses)
}

func TestOpenIsIdempotent(t *testing.T) {
	m := offlineManager(nil)

	first, err := m.Open(context.Background(), "octo/demo")
	require.NoError(t, err)
	require.NoError(t, first.Run(context.Background(), "cd src"))

	second, err := m.Open(context.Background(), "octo/demo")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, "/workspace/src", second.Info().WorkingDirectory,
		"reopening does not reinitialize the environment")
}

func TestOpenRequiresProjectKey(t *testing.T) {
	m := offlineManager(nil)
	_, err := m.Open(context.Background(), "")
	assert.Error(t, err)
}

func TestRunPublishesTranscriptEvents(t *testing.T) {
	emitter := &recordingEmitter{}
	m := offlineManager(emitter)

	s, err := m.Open(context.Background(), "octo/demo")
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background(), "pwd"))

	require.Eventually(t, func() bool {
		return len(emitter.snapshot().messages) == 3
	}, time.Second, 10*time.Millisecond)

	events := emitter.snapshot()
	assert.Equal(t, "$ pwd", events.messages[0].Text)
	assert.Equal(t, "/workspace", events.messages[1].Text)
	assert.True(t, events.messages[1].Simulated)
}

func TestCloseRemovesSession(t *testing.T) {
	emitter := &recordingEmitter{}
	m := offlineManager(emitter)

	s, err := m.Open(context.Background(), "octo/demo")
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background(), "pwd"))

	require.NoError(t, m.Close(context.Background(), "octo/demo"))

	_, ok := m.Get("octo/demo")
	assert.False(t, ok)
	assert.Equal(t, models.StatusDisconnected, s.Info().Status)

	// Closing again is an error for 404 mapping.
	assert.Error(t, m.Close(context.Background(), "octo/demo"))
}

func TestRunAfterCloseFailsThroughTranscript(t *testing.T) {
	m := offlineManager(nil)

	s, err := m.Open(context.Background(), "octo/demo")
	require.NoError(t, err)
	require.NoError(t, m.Close(context.Background(), "octo/demo"))

	// A client still holding the session can submit after teardown; the
	// missing environment is reported through the transcript.
	require.NoError(t, s.Run(context.Background(), "pwd"))

	messages := s.Messages()
	require.NotEmpty(t, messages)
	last := messages[len(messages)-1]
	assert.Equal(t, models.MessageSystem, last.Kind)
	assert.Equal(t, "Command failed", last.Text)
}

func TestExitBuiltinClosesSession(t *testing.T) {
	m := offlineManager(nil)

	s, err := m.Open(context.Background(), "octo/demo")
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background(), "exit"))

	_, ok := m.Get("octo/demo")
	assert.False(t, ok)
}

func TestSetupBuiltinReinitializes(t *testing.T) {
	m := offlineManager(nil)

	s, err := m.Open(context.Background(), "octo/demo")
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background(), "cd src"))
	require.Equal(t, "/workspace/src", s.Info().WorkingDirectory)

	before := s.log.Len()
	require.NoError(t, s.Run(context.Background(), "setup"))

	info := s.Info()
	assert.Equal(t, "/workspace", info.WorkingDirectory, "setup resets the working directory")
	assert.Equal(t, models.StatusDegraded, info.Status)
	assert.Greater(t, s.log.Len(), before, "the transcript survives setup")
}

func TestDevServerLifecycle(t *testing.T) {
	emitter := &recordingEmitter{}
	m := offlineManager(emitter)

	s, err := m.Open(context.Background(), "octo/demo")
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background(), "npm run dev"))

	info := s.Info()
	require.NotNil(t, info.DevServer)
	assert.Equal(t, 3000, info.DevServer.Port)
	assert.Equal(t, "http://localhost:3000", info.DevServer.URL)

	// Duplicate detections are collapsed to one started event.
	s.DevServerDetected(3000)
	s.DevServerDetected(5173)
	assert.Len(t, emitter.snapshot().started, 1)

	s.StopDevServer()
	assert.Nil(t, s.Info().DevServer)

	// Stop is idempotent; stopped fires at most once per server.
	s.StopDevServer()
	assert.Equal(t, 1, emitter.snapshot().stopped)
}

func TestListSnapshotsSessions(t *testing.T) {
	m := offlineManager(nil)

	_, err := m.Open(context.Background(), "octo/demo")
	require.NoError(t, err)
	_, err = m.Open(context.Background(), "octo/site")
	require.NoError(t, err)

	infos := m.List()
	assert.Len(t, infos, 2)
}

func TestShutdownClosesEverything(t *testing.T) {
	m := offlineManager(nil)

	s, err := m.Open(context.Background(), "octo/demo")
	require.NoError(t, err)

	m.Shutdown(context.Background())

	_, ok := m.Get("octo/demo")
	assert.False(t, ok)
	assert.Equal(t, models.StatusDisconnected, s.Info().Status)
}
