package plan

import (
	"log"
	"sync"

	"planterm/internal/remotefs"
)

// Store performs read-mutate-write cycles against the plan file on a remote
// host. Mutations for the same key (session ID) are serialized through a
// per-key mutex, so two concurrent edits cannot overwrite each other's
// intermediate state.
type Store struct {
	path string

	mu    sync.Mutex
	gates map[string]*sync.Mutex
}

// NewStore returns a Store operating on the given remote path.
func NewStore(path string) *Store {
	return &Store{path: path, gates: make(map[string]*sync.Mutex)}
}

// Path returns the remote plan file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) gate(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gates[key]
	if !ok {
		g = &sync.Mutex{}
		s.gates[key] = g
	}
	return g
}

// Forget drops the mutation gate for a key. Call on session teardown.
func (s *Store) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.gates, key)
}

// Read fetches and parses the plan file. Reads are not gated; they see
// whatever complete state the last write left behind.
func (s *Store) Read(fio remotefs.FileIO) (*Document, error) {
	data, err := fio.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	return Parse(string(data)), nil
}

func (s *Store) mutate(key string, fio remotefs.FileIO, fn func(*Document) error) error {
	g := s.gate(key)
	g.Lock()
	defer g.Unlock()

	data, err := fio.ReadFile(s.path)
	if err != nil {
		return err
	}
	doc := Parse(string(data))
	if err := fn(doc); err != nil {
		return err
	}
	return fio.WriteFile(s.path, []byte(doc.String()))
}

// SetChecked updates an item's mark and writes the file back.
func (s *Store) SetChecked(key string, fio remotefs.FileIO, sectionTitle string, itemIndex int, checked bool) error {
	err := s.mutate(key, fio, func(d *Document) error {
		return d.SetChecked(sectionTitle, itemIndex, checked)
	})
	if err == nil {
		log.Printf("Plan: set %q[%d] checked=%t", sectionTitle, itemIndex, checked)
	}
	return err
}

// AddItem appends an unchecked item to a section and writes the file back.
func (s *Store) AddItem(key string, fio remotefs.FileIO, sectionTitle, text string) error {
	err := s.mutate(key, fio, func(d *Document) error {
		return d.AddItem(sectionTitle, text)
	})
	if err == nil {
		log.Printf("Plan: added item to %q", sectionTitle)
	}
	return err
}

// DeleteItem removes an item from a section and writes the file back.
func (s *Store) DeleteItem(key string, fio remotefs.FileIO, sectionTitle string, itemIndex int) error {
	err := s.mutate(key, fio, func(d *Document) error {
		return d.DeleteItem(sectionTitle, itemIndex)
	})
	if err == nil {
		log.Printf("Plan: deleted %q[%d]", sectionTitle, itemIndex)
	}
	return err
}
