package memory

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("memory: session not found")

// Store keeps independent sessions. A per-session lock serialises work on one
// session without blocking the others.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create registers a new session under a random id.
func (st *Store) Create() *Session {
	s := NewSession("sess_" + uuid.New().String())
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

// Do runs fn with exclusive access to the session.
func (st *Store) Do(id string, fn func(*Session) error) error {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s)
}

// Delete forgets a session. Remote objects it referenced are left alone.
func (st *Store) Delete(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(st.sessions, id)
	return nil
}

// IDs lists session ids in lexical order.
func (st *Store) IDs() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	ids := make([]string, 0, len(st.sessions))
	for id := range st.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
