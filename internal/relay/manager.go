package relay

import (
	"context"
	"log"
	"sync"

	"github.com/coder/websocket"
)

// Manager tracks the active relay per session. A session carries a single
// tmux-backed shell, so at most one relay may be attached to it at a time;
// attaching again force-closes the previous relay first.
type Manager struct {
	mu     sync.Mutex
	active map[string]*Relay
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{active: make(map[string]*Relay)}
}

// Attach runs a relay between conn and term, blocking until it ends. Any
// relay already attached to the session is stopped and waited for before
// the new one starts.
func (m *Manager) Attach(ctx context.Context, sessionID string, conn *websocket.Conn, term Terminal) {
	r := newRelay(ctx, sessionID, conn, term)

	m.mu.Lock()
	prev := m.active[sessionID]
	m.active[sessionID] = r
	m.mu.Unlock()

	if prev != nil {
		log.Printf("Relay replaced: session=%s", sessionID)
		prev.Stop()
		<-prev.Done()
	}

	log.Printf("Relay attached: session=%s", sessionID)
	r.run()

	m.mu.Lock()
	if m.active[sessionID] == r {
		delete(m.active, sessionID)
	}
	m.mu.Unlock()
	log.Printf("Relay detached: session=%s", sessionID)
}

// Stop tears down the relay attached to a session, if any. Used when the
// session itself is destroyed.
func (m *Manager) Stop(sessionID string) {
	m.mu.Lock()
	r := m.active[sessionID]
	m.mu.Unlock()
	if r != nil {
		r.Stop()
		<-r.Done()
	}
}

// StopAll tears down every active relay. Used on shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	relays := make([]*Relay, 0, len(m.active))
	for _, r := range m.active {
		relays = append(relays, r)
	}
	m.mu.Unlock()

	for _, r := range relays {
		r.Stop()
		<-r.Done()
	}
}
