// Package handlers exposes the REST and WebSocket surface: connect and
// disconnect sessions, start the remote shell, edit the plan checklist, and
// relay terminal bytes.
package handlers

import (
	"sync"

	"planterm/internal/plan"
	"planterm/internal/relay"
	"planterm/internal/session"
	"planterm/internal/shell"
)

// Handlers bundles the long-lived service objects the HTTP surface operates
// on. Constructed once in main and passed to the router.
type Handlers struct {
	Registry *session.Registry
	Relays   *relay.Manager
	Plans    *plan.Store
	Mux      shell.MuxOptions

	// Initial terminal size per session, recorded by POST /api/shell and
	// consumed by the next relay attach.
	mu    sync.Mutex
	sizes map[string][2]uint16
}

func New(reg *session.Registry, relays *relay.Manager, plans *plan.Store, mux shell.MuxOptions) *Handlers {
	return &Handlers{
		Registry: reg,
		Relays:   relays,
		Plans:    plans,
		Mux:      mux,
		sizes:    make(map[string][2]uint16),
	}
}

func (h *Handlers) recordSize(sessionID string, cols, rows uint16) {
	h.mu.Lock()
	h.sizes[sessionID] = [2]uint16{cols, rows}
	h.mu.Unlock()
}

func (h *Handlers) recordedSize(sessionID string) (cols, rows uint16, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	size, ok := h.sizes[sessionID]
	return size[0], size[1], ok
}

func (h *Handlers) forgetSize(sessionID string) {
	h.mu.Lock()
	delete(h.sizes, sessionID)
	h.mu.Unlock()
}
