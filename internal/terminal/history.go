package terminal

import (
	"strings"
	"sync"
)

// historyLimit bounds the number of retained commands.
const historyLimit = 500

// cursorSentinel means "not navigating".
const cursorSentinel = -1

// History is the deduplicating command-history buffer behind up/down
// navigation. Re-issuing a command moves it to the most-recent position
// instead of creating a duplicate. The cursor is either the sentinel or a
// valid index into the entries.
type History struct {
	mu      sync.Mutex
	entries []string
	cursor  int
}

// NewHistory creates an empty history with the cursor at the sentinel.
func NewHistory() *History {
	return &History{cursor: cursorSentinel}
}

// Record stores a submitted command. Whitespace-only commands are never
// recorded. Recording always resets the navigation cursor.
func (h *History) Record(command string) {
	command = strings.TrimSpace(command)
	if command == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for i, existing := range h.entries {
		if existing == command {
			h.entries = append(h.entries[:i], h.entries[i+1:]...)
			break
		}
	}
	h.entries = append(h.entries, command)

	if len(h.entries) > historyLimit {
		h.entries = h.entries[len(h.entries)-historyLimit:]
	}

	h.cursor = cursorSentinel
}

// Previous moves the cursor one step back and returns the entry there. The
// first call starts at the most recent entry; further calls walk toward the
// oldest and stop at it. Returns false when the history is empty.
func (h *History) Previous() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.entries) == 0 {
		return "", false
	}

	if h.cursor == cursorSentinel {
		h.cursor = len(h.entries) - 1
	} else if h.cursor > 0 {
		h.cursor--
	}

	return h.entries[h.cursor], true
}

// Next moves the cursor one step forward. Stepping past the most recent
// entry resets the cursor to the sentinel and returns an empty string,
// which callers use to restore an empty input line.
func (h *History) Next() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.entries) == 0 || h.cursor == cursorSentinel {
		return "", false
	}

	h.cursor++
	if h.cursor > len(h.entries)-1 {
		h.cursor = cursorSentinel
		return "", false
	}

	return h.entries[h.cursor], true
}

// Entries returns a copy of the recorded commands, oldest first.
func (h *History) Entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]string, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of recorded commands.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
