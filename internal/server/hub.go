package server

import (
	"sync"

	"github.com/gridhouse/sheetsync/internal/wire"
)

// Hub broadcasts sheet deltas to all sessions subscribed to a project.
//
// Listener channels are buffered; a listener that falls behind loses
// events rather than blocking the writer. Sessions recover from gaps by
// re-fetching, so dropped pushes degrade latency, not correctness.
type Hub struct {
	mu        sync.RWMutex
	listeners map[string]map[chan wire.Event]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		listeners: make(map[string]map[chan wire.Event]struct{}),
	}
}

// Subscribe returns a channel receiving the project's deltas.
// The caller must call Unsubscribe when done to prevent leaks.
func (h *Hub) Subscribe(project string) chan wire.Event {
	ch := make(chan wire.Event, 32)
	h.mu.Lock()
	if h.listeners[project] == nil {
		h.listeners[project] = make(map[chan wire.Event]struct{})
	}
	h.listeners[project][ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
func (h *Hub) Unsubscribe(project string, ch chan wire.Event) {
	h.mu.Lock()
	if set, ok := h.listeners[project]; ok {
		if _, subscribed := set[ch]; subscribed {
			delete(set, ch)
			close(ch)
		}
		if len(set) == 0 {
			delete(h.listeners, project)
		}
	}
	h.mu.Unlock()
}

// Broadcast sends a delta to every listener of the project.
// Non-blocking: a full listener channel skips the event.
func (h *Hub) Broadcast(project string, ev wire.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.listeners[project] {
		select {
		case ch <- ev:
		default:
			// Channel full, skip (listener re-fetches to catch up)
		}
	}
}

// ListenerCount returns the number of subscribers for a project.
// Used for testing and diagnostics.
func (h *Hub) ListenerCount(project string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners[project])
}
