// Package session holds per-conversation state. The store is injected into
// the conversation driver rather than referenced as ambient state, and the
// in-memory implementation serializes turns per session so two requests for
// the same identifier cannot interleave.
package session

import (
	"sync"
	"time"

	"github.com/kltan/smartshopper/internal/domain"
)

// Store manages conversation sessions. Sessions are not persisted across
// process restarts: one conversation per session slot, reset on completion.
type Store interface {
	// GetOrCreate returns the session for id, creating it at defaults on
	// first sight.
	GetOrCreate(id string) *domain.Session

	// Reset returns the session slot to defaults.
	Reset(id string)

	// Do runs fn with the session under the per-session lock.
	Do(id string, fn func(s *domain.Session))
}

type entry struct {
	mu      sync.Mutex
	session *domain.Session
}

// MemoryStore is the in-memory Store implementation.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
	}
}

func (m *MemoryStore) entryFor(id string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		e = &entry{session: domain.NewSession(id)}
		m.entries[id] = e
	}
	return e
}

// GetOrCreate returns the session for id.
func (m *MemoryStore) GetOrCreate(id string) *domain.Session {
	return m.entryFor(id).session
}

// Reset replaces the session with a fresh one so the next message starts a
// new decision tree.
func (m *MemoryStore) Reset(id string) {
	e := m.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session = domain.NewSession(id)
}

// Do runs fn with the session under the per-session lock and bumps the
// session's UpdatedAt.
func (m *MemoryStore) Do(id string, fn func(s *domain.Session)) {
	e := m.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.session)
	e.session.UpdatedAt = time.Now()
}

var _ Store = (*MemoryStore)(nil)
