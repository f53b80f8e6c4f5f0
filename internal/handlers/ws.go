package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/websocket/v2"

	"github.com/resurrectci/resurrectci/internal/executor"
	"github.com/resurrectci/resurrectci/internal/logger"
	"github.com/resurrectci/resurrectci/internal/models"
	"github.com/resurrectci/resurrectci/internal/recovery"
	"github.com/resurrectci/resurrectci/internal/session"
)

// wsInbound is what the browser sends over the session socket.
type wsInbound struct {
	// Type is "command", "interrupt", or "history" (prev/next navigation).
	Type      string `json:"type"`
	Command   string `json:"command,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// wsOutbound frames everything the server pushes.
type wsOutbound struct {
	Type    string                  `json:"type"`
	Message *models.TerminalMessage `json:"message,omitempty"`
	Info    *models.SessionInfo     `json:"info,omitempty"`
	Entry   string                  `json:"entry,omitempty"`
	Active  bool                    `json:"active,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

// WSHandler serves the per-session WebSocket: command lines in, transcript
// entries out.
type WSHandler struct {
	manager *session.Manager
}

func NewWSHandler(manager *session.Manager) *WSHandler {
	return &WSHandler{manager: manager}
}

// HandleSession runs one socket connection for a session.
// GET /v1/sessions/:owner/:repo/ws
func (h *WSHandler) HandleSession(c *websocket.Conn) {
	defer c.Close()

	key := c.Params("owner") + "/" + c.Params("repo")
	s, ok := h.manager.Get(key)
	if !ok {
		_ = c.WriteJSON(wsOutbound{Type: "error", Error: "Session not found"})
		return
	}

	logger.Infof("WebSocket client attached to %s", key)

	// Backlog first so the client renders the full transcript, then live
	// entries as they append.
	info := s.Info()
	_ = c.WriteJSON(wsOutbound{Type: "status", Info: &info})
	for _, msg := range s.Messages() {
		entry := msg
		if err := c.WriteJSON(wsOutbound{Type: "message", Message: &entry}); err != nil {
			return
		}
	}

	subID, feed := s.Subscribe()
	defer s.Unsubscribe(subID)

	// writes is never closed; both pumps exit on done and senders are
	// non-blocking, so late command completions cannot panic or leak.
	writes := make(chan wsOutbound, 100)
	done := make(chan struct{})
	defer close(done)

	recovery.SafeGo("ws-feed/"+key, func() {
		for {
			select {
			case msg, open := <-feed:
				if !open {
					return
				}
				entry := msg
				select {
				case writes <- wsOutbound{Type: "message", Message: &entry}:
				default:
					// Slow client; it resyncs over REST.
				}
			case <-done:
				return
			}
		}
	})

	recovery.SafeGo("ws-writer/"+key, func() {
		for {
			select {
			case out := <-writes:
				if err := c.WriteJSON(out); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	})

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			logger.Debugf("WebSocket client for %s gone: %v", key, err)
			return
		}

		var in wsInbound
		if err := json.Unmarshal(raw, &in); err != nil {
			// Bare text is treated as a command line.
			in = wsInbound{Type: "command", Command: string(raw)}
		}

		switch in.Type {
		case "command":
			h.runCommand(s, in.Command, writes)

		case "interrupt":
			s.Interrupt()

		case "history":
			var entry string
			var active bool
			if in.Direction == "next" {
				entry, active = s.HistoryNext()
			} else {
				entry, active = s.HistoryPrevious()
			}
			select {
			case writes <- wsOutbound{Type: "history", Entry: entry, Active: active}:
			default:
			}

		default:
			select {
			case writes <- wsOutbound{Type: "error", Error: "unknown message type"}:
			default:
			}
		}
	}
}

func (h *WSHandler) runCommand(s *session.Session, command string, writes chan wsOutbound) {
	if strings.TrimSpace(command) == "" {
		return
	}

	// Run asynchronously so the read loop keeps servicing interrupts while a
	// long command (dev server) is in flight.
	recovery.SafeGo("ws-command", func() {
		err := s.Run(context.Background(), command)
		if errors.Is(err, executor.ErrBusy) {
			select {
			case writes <- wsOutbound{Type: "error", Error: "A command is already running"}:
			default:
			}
			return
		}

		info := s.Info()
		select {
		case writes <- wsOutbound{Type: "status", Info: &info}:
		default:
		}
	})
}
