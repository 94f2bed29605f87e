// Package session owns the registry of live SSH sessions.
//
// The Registry is the single owner of connection handles: it creates them
// through sshconn, hands out lookups, and is the only component allowed to
// close them. Session identifiers are UUIDs and are never reused.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"planterm/internal/sshconn"
)

// ErrNotFound reports a lookup for an unknown or already-destroyed session.
var ErrNotFound = errors.New("session not found")

// Session pairs a live connection handle with the config that produced it.
// The handle's lifetime is bound to the registry entry: destroying the
// session closes the handle.
type Session struct {
	ID        string
	Config    sshconn.ConnConfig
	Client    *ssh.Client
	CreatedAt time.Time
}

// Registry maps session identifiers to live sessions. Safe for concurrent
// use. Construct with NewRegistry and pass by reference; there is no global
// instance.
type Registry struct {
	connectTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(connectTimeout time.Duration) *Registry {
	return &Registry{
		connectTimeout: connectTimeout,
		sessions:       make(map[string]*Session),
	}
}

// Create connects and authenticates against cfg, then registers the handle
// under a fresh identifier. Connection failures are returned untouched so
// callers can inspect the sshconn error kind.
func (r *Registry) Create(ctx context.Context, cfg sshconn.ConnConfig) (string, error) {
	client, err := sshconn.Connect(ctx, cfg, r.connectTimeout)
	if err != nil {
		return "", err
	}

	s := &Session{
		ID:        uuid.NewString(),
		Config:    cfg,
		Client:    client,
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	log.Printf("Session %s created for %s@%s:%d", s.ID, cfg.Username, cfg.Host, cfg.Port)
	return s.ID, nil
}

// Get returns the session for id, or ErrNotFound. Pure lookup.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Destroy closes the session's handle and removes the entry. Destroying an
// unknown or already-destroyed id is a no-op.
func (r *Registry) Destroy(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if err := s.Client.Close(); err != nil {
		log.Printf("Session %s: close handle: %v", id, err)
	}
	log.Printf("Session %s destroyed", id)
}

// DestroyAll closes every live session. Used at process shutdown.
func (r *Registry) DestroyAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for id, s := range sessions {
		if err := s.Client.Close(); err != nil {
			log.Printf("Session %s: close handle: %v", id, err)
		}
	}
	log.Printf("All sessions destroyed (%d total)", len(sessions))
}

// List returns a snapshot of the live sessions.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
