package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/resurrectci/resurrectci/internal/logger"
	"github.com/resurrectci/resurrectci/internal/models"
)

// EventType identifies an SSE event. The names match the frontend
// TypeScript definitions.
type EventType string

const (
	TerminalMessageEvent  EventType = "terminal:message"
	SessionStatusEvent    EventType = "session:status"
	DevServerStartedEvent EventType = "devserver:started"
	DevServerStoppedEvent EventType = "devserver:stopped"
	HeartbeatEvent        EventType = "heartbeat"
)

type AppEvent struct {
	Type    EventType `json:"type"`
	Project string    `json:"project,omitempty"`
	Payload any       `json:"payload"`
}

type HeartbeatPayload struct {
	Timestamp int64 `json:"timestamp"`
	Uptime    int64 `json:"uptime"`
}

type DevServerStoppedPayload struct {
	Project string `json:"project"`
}

type SSEMessage struct {
	Event     AppEvent `json:"event"`
	Timestamp int64    `json:"timestamp"`
	ID        string   `json:"id"`
}

// EventsHandler streams session events to browsers over SSE and fans out
// everything the session manager emits. It implements session.Emitter.
type EventsHandler struct {
	clients            map[string]chan SSEMessage
	clientsMux         sync.RWMutex
	clientConnectTimes map[string]time.Time
	startTime          time.Time
}

func NewEventsHandler() *EventsHandler {
	return &EventsHandler{
		clients:            make(map[string]chan SSEMessage),
		clientConnectTimes: make(map[string]time.Time),
		startTime:          time.Now(),
	}
}

// HandleSSE streams terminal, session, and dev server events.
// GET /v1/events
func (h *EventsHandler) HandleSSE(c *fiber.Ctx) error {
	if ah := c.Get("Accept"); ah != "" && !strings.Contains(ah, "text/event-stream") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "This endpoint only accepts Server-Sent Events (text/event-stream)",
		})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // disable nginx buffering

	clientID := uuid.New().String()
	ch := make(chan SSEMessage, 100)

	h.addClient(clientID, ch)
	logger.Infof("SSE client connected: %s from %s", clientID, c.IP())

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		send := func(msg SSEMessage) bool {
			if msg.Event.Type == "" {
				return true
			}
			b, _ := json.Marshal(msg)
			if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
				return false
			}
			return w.Flush() == nil
		}

		if !send(h.makeHeartbeat()) {
			return
		}

		tick := time.NewTicker(30 * time.Second)
		defer tick.Stop()

		for {
			select {
			case msg, ok := <-ch:
				if !ok || !send(msg) {
					return
				}
			case <-tick.C:
				if !send(h.makeHeartbeat()) {
					return
				}
			}
		}
	}))

	return nil
}

// TerminalMessage implements session.Emitter.
func (h *EventsHandler) TerminalMessage(projectKey string, msg models.TerminalMessage) {
	h.broadcastEvent(AppEvent{Type: TerminalMessageEvent, Project: projectKey, Payload: msg})
}

// SessionStatus implements session.Emitter.
func (h *EventsHandler) SessionStatus(projectKey string, info models.SessionInfo) {
	h.broadcastEvent(AppEvent{Type: SessionStatusEvent, Project: projectKey, Payload: info})
}

// DevServerStarted implements session.Emitter.
func (h *EventsHandler) DevServerStarted(projectKey string, server models.DevServer) {
	h.broadcastEvent(AppEvent{Type: DevServerStartedEvent, Project: projectKey, Payload: server})
}

// DevServerStopped implements session.Emitter.
func (h *EventsHandler) DevServerStopped(projectKey string) {
	h.broadcastEvent(AppEvent{
		Type:    DevServerStoppedEvent,
		Project: projectKey,
		Payload: DevServerStoppedPayload{Project: projectKey},
	})
}

func (h *EventsHandler) addClient(id string, ch chan SSEMessage) {
	h.clientsMux.Lock()
	h.clients[id] = ch
	h.clientConnectTimes[id] = time.Now()
	logger.Debugf("Added event client %s", id)
	h.clientsMux.Unlock()
}

func (h *EventsHandler) removeClient(id string) {
	h.clientsMux.Lock()
	if ch, ok := h.clients[id]; ok {
		logger.Debugf("Removing event client %s", id)
		close(ch)
		delete(h.clients, id)
	}
	delete(h.clientConnectTimes, id)
	h.clientsMux.Unlock()
}

func (h *EventsHandler) makeHeartbeat() SSEMessage {
	return SSEMessage{
		Event: AppEvent{
			Type: HeartbeatEvent,
			Payload: HeartbeatPayload{
				Timestamp: time.Now().UnixMilli(),
				Uptime:    time.Since(h.startTime).Milliseconds(),
			},
		},
		Timestamp: time.Now().UnixMilli(),
		ID:        uuid.New().String(),
	}
}

func (h *EventsHandler) broadcastEvent(event AppEvent) {
	if event.Type == "" {
		logger.Warnf("Attempting to broadcast event with empty type")
		return
	}

	message := SSEMessage{
		Event:     event,
		Timestamp: time.Now().UnixMilli(),
		ID:        uuid.New().String(),
	}

	h.clientsMux.RLock()
	clientsToRemove := []string{}

	for clientID, clientChan := range h.clients {
		select {
		case clientChan <- message:
		default:
			// Freshly connected clients get a grace period before a full
			// channel counts as dead.
			connectTime, exists := h.clientConnectTimes[clientID]
			if exists && time.Since(connectTime) < 2*time.Second {
				logger.Debugf("Client %s in grace period, not removing", clientID)
			} else {
				clientsToRemove = append(clientsToRemove, clientID)
			}
		}
	}
	h.clientsMux.RUnlock()

	for _, clientID := range clientsToRemove {
		h.removeClient(clientID)
	}
}

// ClientCount reports the number of connected SSE clients.
func (h *EventsHandler) ClientCount() int {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	return len(h.clients)
}

// Stop closes every client stream.
func (h *EventsHandler) Stop() {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()

	for _, clientChan := range h.clients {
		close(clientChan)
	}
	h.clients = make(map[string]chan SSEMessage)
	h.clientConnectTimes = make(map[string]time.Time)
}
