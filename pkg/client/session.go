package client

import (
	"sync"
	"time"
)

// Session is the state established by a successful RegisterClient.
type Session struct {
	SessionCookie  string
	TokenServerURI string
	// CarrierName is the region the session was registered against. Calls
	// that take no carrier of their own are sent to the same deployment.
	CarrierName   string
	EstablishedAt time.Time
}

// sessionStore holds the current session. Calls read a snapshot and never
// hold the lock across I/O; only a completed registration writes.
type sessionStore struct {
	mu      sync.RWMutex
	current *Session
}

func (s *sessionStore) load() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

func (s *sessionStore) store(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &sess
}
