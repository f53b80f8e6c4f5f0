package terminal

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/resurrectci/resurrectci/internal/models"
)

// Log is the append-only transcript backing a terminal session. Entries are
// never mutated or reordered after insertion; Clear is the only destructive
// operation. Subscribers receive every appended entry on a buffered channel
// and are dropped rather than blocked when they fall behind.
type Log struct {
	mu          sync.RWMutex
	entries     []models.TerminalMessage
	subscribers map[string]chan models.TerminalMessage
}

// NewLog creates an empty transcript.
func NewLog() *Log {
	return &Log{
		subscribers: make(map[string]chan models.TerminalMessage),
	}
}

// Append adds one entry and returns its id. It always succeeds.
func (l *Log) Append(kind models.MessageKind, text string) string {
	return l.append(kind, text, false)
}

// AppendSimulated adds an entry tagged as coming from the simulated backend.
func (l *Log) AppendSimulated(kind models.MessageKind, text string) string {
	return l.append(kind, text, true)
}

func (l *Log) append(kind models.MessageKind, text string, simulated bool) string {
	now := time.Now()
	msg := models.TerminalMessage{
		ID:        fmt.Sprintf("%d-%s", now.UnixNano(), uuid.New().String()[:8]),
		Kind:      kind,
		Text:      text,
		Simulated: simulated,
		CreatedAt: now,
	}

	l.mu.Lock()
	l.entries = append(l.entries, msg)
	for id, ch := range l.subscribers {
		select {
		case ch <- msg:
		default:
			// Slow consumer; it will resync from a snapshot if it cares.
			_ = id
		}
	}
	l.mu.Unlock()

	return msg.ID
}

// Clear empties the transcript.
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

// Messages returns a copy of the transcript in display order.
func (l *Log) Messages() []models.TerminalMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.TerminalMessage, len(l.entries))
	copy(out, l.entries)
	return out
}

// Since returns the entries appended after the entry with the given id. An
// unknown id returns the full transcript, which lets clients resync after a
// Clear.
func (l *Log) Since(id string) []models.TerminalMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i, msg := range l.entries {
		if msg.ID == id {
			out := make([]models.TerminalMessage, len(l.entries)-i-1)
			copy(out, l.entries[i+1:])
			return out
		}
	}

	out := make([]models.TerminalMessage, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Subscribe registers a live feed of appended entries. The returned id is
// passed to Unsubscribe when the consumer goes away.
func (l *Log) Subscribe() (string, <-chan models.TerminalMessage) {
	id := uuid.New().String()
	ch := make(chan models.TerminalMessage, 100)

	l.mu.Lock()
	l.subscribers[id] = ch
	l.mu.Unlock()

	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (l *Log) Unsubscribe(id string) {
	l.mu.Lock()
	if ch, ok := l.subscribers[id]; ok {
		close(ch)
		delete(l.subscribers, id)
	}
	l.mu.Unlock()
}
