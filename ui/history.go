package ui

import (
	"context"
	"sync"
)

// History is an in-process Navigator that keeps the visited locations.
// Hosts without a real view layer (CLIs, tests, headless workers) use it
// to track where the gateway has sent the user.
type History struct {
	mu      sync.Mutex
	current Location
	visited []Location
	onVisit func(Location)
}

// NewHistory returns a History positioned at start.
func NewHistory(start Location) *History {
	if start.Path == "" {
		start.Path = "/"
	}
	return &History{current: start}
}

// OnVisit registers a callback invoked after every NavigateTo.
func (h *History) OnVisit(fn func(Location)) {
	h.mu.Lock()
	h.onVisit = fn
	h.mu.Unlock()
}

func (h *History) NavigateTo(_ context.Context, to Location) {
	h.mu.Lock()
	h.current = to
	h.visited = append(h.visited, to)
	fn := h.onVisit
	h.mu.Unlock()

	if fn != nil {
		fn(to)
	}
}

func (h *History) CurrentLocation() Location {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Visited returns a copy of every location navigated to, oldest first.
func (h *History) Visited() []Location {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Location, len(h.visited))
	copy(out, h.visited)
	return out
}
