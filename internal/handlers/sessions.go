package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/resurrectci/resurrectci/internal/executor"
	"github.com/resurrectci/resurrectci/internal/session"
)

// SessionsHandler exposes the terminal session lifecycle over REST.
type SessionsHandler struct {
	manager *session.Manager
}

func NewSessionsHandler(manager *session.Manager) *SessionsHandler {
	return &SessionsHandler{manager: manager}
}

type createSessionRequest struct {
	ProjectKey string `json:"project_key"`
}

type executeRequest struct {
	Command string `json:"command"`
}

func projectKey(c *fiber.Ctx) string {
	return c.Params("owner") + "/" + c.Params("repo")
}

// CreateSession opens (or returns) the session for a project.
// POST /v1/sessions
func (h *SessionsHandler) CreateSession(c *fiber.Ctx) error {
	var req createSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	key := strings.TrimSpace(req.ProjectKey)
	if key == "" || !strings.Contains(key, "/") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "project_key must be owner/repo"})
	}

	s, err := h.manager.Open(c.Context(), key)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(s.Info())
}

// ListSessions returns all open sessions.
// GET /v1/sessions
func (h *SessionsHandler) ListSessions(c *fiber.Ctx) error {
	return c.JSON(h.manager.List())
}

// GetSession returns one session's snapshot.
// GET /v1/sessions/:owner/:repo
func (h *SessionsHandler) GetSession(c *fiber.Ctx) error {
	s, ok := h.manager.Get(projectKey(c))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	}
	return c.JSON(s.Info())
}

// DeleteSession tears down a session.
// DELETE /v1/sessions/:owner/:repo
func (h *SessionsHandler) DeleteSession(c *fiber.Ctx) error {
	if err := h.manager.Close(c.Context(), projectKey(c)); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	}
	return c.JSON(fiber.Map{"status": "closed"})
}

// Execute submits one command line and blocks until it completes. A session
// already running a command answers 409.
// POST /v1/sessions/:owner/:repo/execute
func (h *SessionsHandler) Execute(c *fiber.Ctx) error {
	s, ok := h.manager.Get(projectKey(c))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	}

	var req executeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if strings.TrimSpace(req.Command) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "command is required"})
	}

	if err := s.Run(c.Context(), req.Command); err != nil {
		if errors.Is(err, executor.ErrBusy) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "A command is already running"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(s.Info())
}

// Interrupt cancels the in-flight command.
// POST /v1/sessions/:owner/:repo/interrupt
func (h *SessionsHandler) Interrupt(c *fiber.Ctx) error {
	s, ok := h.manager.Get(projectKey(c))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	}
	s.Interrupt()
	return c.JSON(fiber.Map{"status": "interrupted"})
}

// GetMessages returns the transcript, optionally only entries after ?since=.
// GET /v1/sessions/:owner/:repo/messages
func (h *SessionsHandler) GetMessages(c *fiber.Ctx) error {
	s, ok := h.manager.Get(projectKey(c))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	}

	if since := c.Query("since"); since != "" {
		return c.JSON(s.MessagesSince(since))
	}
	return c.JSON(s.Messages())
}

// GetHistory returns the recorded command history, oldest first.
// GET /v1/sessions/:owner/:repo/history
func (h *SessionsHandler) GetHistory(c *fiber.Ctx) error {
	s, ok := h.manager.Get(projectKey(c))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	}
	return c.JSON(s.History())
}

// StopDevServer stops the tracked dev server, if any. Always succeeds for a
// known session.
// POST /v1/sessions/:owner/:repo/devserver/stop
func (h *SessionsHandler) StopDevServer(c *fiber.Ctx) error {
	s, ok := h.manager.Get(projectKey(c))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	}
	s.StopDevServer()
	return c.JSON(s.Info())
}
