package events

import (
	"slices"
	"sync"
)

// History is a fixed-size window over the most recent events.
type History struct {
	mu   sync.RWMutex
	buf  []Event
	next int
	full bool
}

// NewHistory keeps the last size events. size below 1 is treated as 1.
func NewHistory(size int) *History {
	return &History{buf: make([]Event, max(size, 1))}
}

// Add appends e, evicting the oldest event once the window is full.
func (h *History) Add(e Event) {
	h.mu.Lock()
	h.buf[h.next] = e
	h.next++
	if h.next == len(h.buf) {
		h.next, h.full = 0, true
	}
	h.mu.Unlock()
}

// Len is the number of retained events.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return len(h.buf)
	}
	return h.next
}

// Find returns the retained events matching q, oldest first. With a Limit
// only the newest matches are kept.
func (h *History) Find(q Query) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := h.next
	if h.full {
		n = len(h.buf)
	}
	var out []Event
	for i := 1; i <= n; i++ {
		e := h.buf[(h.next-i+len(h.buf))%len(h.buf)]
		if !q.Match(e) {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	slices.Reverse(out)
	return out
}
