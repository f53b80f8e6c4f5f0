package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/resurrectci/resurrectci/internal/models"
)

// Frame mirrors the server's WebSocket envelope.
type Frame struct {
	Type    string                  `json:"type"`
	Message *models.TerminalMessage `json:"message,omitempty"`
	Info    *models.SessionInfo     `json:"info,omitempty"`
	Entry   string                  `json:"entry,omitempty"`
	Active  bool                    `json:"active,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

// Client talks to a running server: REST for session setup, WebSocket for
// the live terminal.
type Client struct {
	baseURL string
	project string
	http    *http.Client
	conn    *websocket.Conn
}

func NewClient(baseURL, project string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		project: project,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// OpenSession creates (or reuses) the project session.
func (c *Client) OpenSession(ctx context.Context) (models.SessionInfo, error) {
	body, _ := json.Marshal(map[string]string{"project_key": c.project})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/sessions", bytes.NewReader(body))
	if err != nil {
		return models.SessionInfo{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return models.SessionInfo{}, fmt.Errorf("cannot reach server at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.SessionInfo{}, fmt.Errorf("server rejected session: %s", resp.Status)
	}

	var info models.SessionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return models.SessionInfo{}, err
	}
	return info, nil
}

// Connect dials the session WebSocket.
func (c *Client) Connect() error {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}

	scheme := "ws"
	if parsed.Scheme == "https" {
		scheme = "wss"
	}
	wsURL := fmt.Sprintf("%s://%s/v1/sessions/%s/ws", scheme, parsed.Host, c.project)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	c.conn = conn
	return nil
}

// ReadFrame blocks for the next server frame.
func (c *Client) ReadFrame() (Frame, error) {
	var frame Frame
	if err := c.conn.ReadJSON(&frame); err != nil {
		return Frame{}, err
	}
	return frame, nil
}

func (c *Client) SendCommand(command string) error {
	return c.conn.WriteJSON(map[string]string{"type": "command", "command": command})
}

func (c *Client) SendInterrupt() error {
	return c.conn.WriteJSON(map[string]string{"type": "interrupt"})
}

func (c *Client) SendHistory(direction string) error {
	return c.conn.WriteJSON(map[string]string{"type": "history", "direction": direction})
}

func (c *Client) Close() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
