package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resurrectci/resurrectci/internal/models"
	"github.com/resurrectci/resurrectci/internal/session"
)

var _ session.Emitter = (*EventsHandler)(nil)

func TestBroadcastReachesClients(t *testing.T) {
	h := NewEventsHandler()

	ch := make(chan SSEMessage, 10)
	h.addClient("client-1", ch)
	defer h.removeClient("client-1")

	h.TerminalMessage("octo/demo", models.TerminalMessage{
		Kind: models.MessageOutput,
		Text: "hello",
	})

	select {
	case msg := <-ch:
		assert.Equal(t, TerminalMessageEvent, msg.Event.Type)
		assert.Equal(t, "octo/demo", msg.Event.Project)
		require.NotEmpty(t, msg.ID)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestBroadcastDropsDeadClientsAfterGracePeriod(t *testing.T) {
	h := NewEventsHandler()

	// Unbuffered channel with no reader simulates a wedged client.
	h.addClient("dead", make(chan SSEMessage))
	h.clientsMux.Lock()
	h.clientConnectTimes["dead"] = time.Now().Add(-time.Minute)
	h.clientsMux.Unlock()

	h.DevServerStopped("octo/demo")

	assert.Equal(t, 0, h.ClientCount())
}

func TestBroadcastKeepsFreshClients(t *testing.T) {
	h := NewEventsHandler()

	// Same wedged client, but within the connect grace period.
	h.addClient("fresh", make(chan SSEMessage))
	h.DevServerStopped("octo/demo")

	assert.Equal(t, 1, h.ClientCount())
	h.Stop()
	assert.Equal(t, 0, h.ClientCount())
}

func TestSessionStatusEventPayload(t *testing.T) {
	h := NewEventsHandler()

	ch := make(chan SSEMessage, 10)
	h.addClient("client-1", ch)
	defer h.removeClient("client-1")

	h.SessionStatus("octo/demo", models.SessionInfo{
		ProjectKey: "octo/demo",
		Status:     models.StatusDegraded,
		Mode:       models.ModeSimulated,
	})

	msg := <-ch
	assert.Equal(t, SessionStatusEvent, msg.Event.Type)
	info, ok := msg.Event.Payload.(models.SessionInfo)
	require.True(t, ok)
	assert.Equal(t, models.StatusDegraded, info.Status)
}
