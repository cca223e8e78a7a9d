package rpcgo

import (
	"net/http"
	"sync"
)

// Router dispatches incoming requests to the Handler registered for
// their exact path (spec §4.8, Routing). Handle and ServeHTTP share a
// read-write lock, so they may be called concurrently.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]*Handler
}

// NewRouter constructs an empty Router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]*Handler)}
}

// Handle registers h under its own procedure path.
func (m *Router) Handle(h *Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[h.spec.Procedure] = h
}

// ServeHTTP looks up the handler for the request path. An unknown path
// gets a trailers-only UNIMPLEMENTED response: HTTP 200, no body, and
// grpc-status carried directly in the headers since no data frame will
// ever follow (spec §4.8 Routing, spec §8 scenario 4).
func (m *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	h, ok := m.handlers[r.URL.Path]
	m.mu.RUnlock()
	if !ok {
		writeUnimplementedTrailersOnly(w, "unknown method "+r.URL.Path)
		return
	}
	h.ServeHTTP(w, r)
}
