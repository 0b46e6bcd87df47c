package sessionstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the in-process session map. A single lock guards it; sessions
// are cloned out for reads and swapped back in whole on Update, per
// spec.md §4.9 and the single-lock-map pattern tarsy's session.Manager uses.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// New returns an empty Store.
func New() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create starts a new session in READY status, seeded with a fresh run id.
func (st *Store) Create(query, userID string) Session {
	now := time.Now()
	s := &Session{
		ID:         uuid.New().String(),
		RunID:      uuid.New().String(),
		CreatedAt:  now,
		UpdatedAt:  now,
		UserID:     userID,
		Status:     StatusReady,
		InputQuery: query,
		State:      map[string]any{},
	}

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()

	return s.Clone()
}

// Get returns a clone of the session, or false if unknown.
func (st *Store) Get(id string) (Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return Session{}, false
	}
	return s.Clone(), true
}

// List returns clones of every session, most recently created first.
func (st *Store) List() []Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Update overwrites the stored session wholesale with the given value.
// Returns an error if the session does not already exist — Update never
// implicitly creates one.
func (st *Store) Update(s Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[s.ID]; !ok {
		return fmt.Errorf("sessionstore: session %q not found", s.ID)
	}
	s.UpdatedAt = time.Now()
	stored := s
	st.sessions[s.ID] = &stored
	return nil
}

// Delete removes a session, returning false if it was not present.
func (st *Store) Delete(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return false
	}
	delete(st.sessions, id)
	return true
}
