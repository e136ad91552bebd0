package flow

import (
	"sync"
	"time"
)

// Session holds one active conversation.
type Session struct {
	ID        string
	State     State
	Pending   Pending
	Transport Transport
	StartedAt time.Time
	UpdatedAt time.Time

	co *coroutine
}

// Store keeps active sessions in memory keyed by user.
type Store struct {
	mu       sync.RWMutex
	sessions map[UserKey]*Session
}

// NewStore constructs an empty in-memory Store.
func NewStore() *Store {
	return &Store{sessions: make(map[UserKey]*Session)}
}

// Get returns the session for a user if it exists.
func (s *Store) Get(key UserKey) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[key]
	return sess, ok
}

// Set registers or replaces the session for a user.
func (s *Store) Set(key UserKey, sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key] = sess
}

// Delete removes the session for a user.
func (s *Store) Delete(key UserKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
}

// Has reports whether the user has an active session.
func (s *Store) Has(key UserKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[key]
	return ok
}

// Len returns the number of active sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Snapshot returns a copy of the session map. Changing the copy does not touch the store.
func (s *Store) Snapshot() map[UserKey]*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[UserKey]*Session, len(s.sessions))
	for k, v := range s.sessions {
		out[k] = v
	}
	return out
}

// deleteIf removes the entry only while it still points at sess.
func (s *Store) deleteIf(key UserKey, sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.sessions[key]; ok && cur == sess {
		delete(s.sessions, key)
	}
}

// keyedMutex serializes work per user key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[UserKey]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[UserKey]*refMutex)}
}

// Lock acquires the mutex for key and returns its release function.
func (k *keyedMutex) Lock(key UserKey) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
