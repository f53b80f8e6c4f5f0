package models

import "time"

// MessageKind classifies a transcript entry.
type MessageKind string

const (
	MessageInput  MessageKind = "input"
	MessageOutput MessageKind = "output"
	MessageError  MessageKind = "error"
	MessageSystem MessageKind = "system"
)

// TerminalMessage is one entry in a session's transcript. Entries are
// append-only; display order equals insertion order.
type TerminalMessage struct {
	ID        string      `json:"id"`
	Kind      MessageKind `json:"kind"`
	Text      string      `json:"text"`
	Simulated bool        `json:"simulated,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// ConnectionStatus tracks the session state machine. Transitions are
// disconnected -> connecting -> {connected, degraded}; back to disconnected
// only via explicit teardown.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDegraded     ConnectionStatus = "degraded"
)

// ExecutionMode identifies which backend variant a session selected at setup.
type ExecutionMode string

const (
	ModeSession   ExecutionMode = "session"
	ModeDirect    ExecutionMode = "direct"
	ModeSandbox   ExecutionMode = "sandbox"
	ModeSimulated ExecutionMode = "simulated"
)

// DevServer describes a long-lived network-serving process detected for a
// session. Present iff a dev server is currently believed to be running.
type DevServer struct {
	URL       string    `json:"url"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"started_at"`
}

// SessionInfo is the read-only snapshot of a session exposed over the API.
type SessionInfo struct {
	ProjectKey       string           `json:"project_key"`
	Status           ConnectionStatus `json:"status"`
	Mode             ExecutionMode    `json:"mode"`
	WorkingDirectory string           `json:"working_directory"`
	DevServer        *DevServer       `json:"dev_server,omitempty"`
	IsRunning        bool             `json:"is_running"`
	CreatedAt        time.Time        `json:"created_at"`
}
