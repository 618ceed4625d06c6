package call

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// sessionStore keeps live call sessions in process memory. Sessions do not
// survive a restart; clients start a new one.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[uuid.UUID]*Session)}
}

func (st *sessionStore) put(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	cp := *s
	st.sessions[s.ID] = &cp
}

// update applies fn to the stored session under the lock and returns a copy
// of the result. fn's error leaves the session untouched.
func (st *sessionStore) update(id uuid.UUID, fn func(s *Session) error) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	cur, ok := st.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := *cur
	if err := fn(&next); err != nil {
		return nil, err
	}
	st.sessions[id] = &next
	out := next
	return &out, nil
}

// remove deletes the session if check accepts it.
func (st *sessionStore) remove(id uuid.UUID, check func(s *Session) error) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	cur, ok := st.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := check(cur); err != nil {
		return nil, err
	}
	delete(st.sessions, id)
	out := *cur
	return &out, nil
}

// prune drops sessions not touched since before.
func (st *sessionStore) prune(before time.Time) []*Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	var out []*Session
	for id, s := range st.sessions {
		if s.UpdatedAt.Before(before) {
			delete(st.sessions, id)
			out = append(out, s)
		}
	}
	return out
}

func (st *sessionStore) len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
