package dmesim

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// tokenStore holds outstanding location verification tokens. A token is
// good for one VerifyLocation call and expires after ttl.
type tokenStore struct {
	mu      sync.Mutex
	entries map[string]time.Time // token -> expiry
	ttl     time.Duration
}

func newTokenStore(ttl time.Duration) *tokenStore {
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	return &tokenStore{entries: make(map[string]time.Time), ttl: ttl}
}

// issue mints a fresh token.
func (s *tokenStore) issue() string {
	tok := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[tok] = time.Now().Add(s.ttl)
	return tok
}

// consume reports whether tok was outstanding and unexpired, and retires it.
func (s *tokenStore) consume(tok string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.entries[tok]
	if !ok {
		return false
	}
	delete(s.entries, tok)
	return time.Now().Before(exp)
}

// evict removes all expired tokens.
func (s *tokenStore) evict() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	n := 0
	for tok, exp := range s.entries {
		if now.After(exp) {
			delete(s.entries, tok)
			n++
		}
	}
	return n
}

func (s *tokenStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// startEviction runs evict every interval until ctx is done.
func (s *tokenStore) startEviction(ctx context.Context, interval time.Duration, onEvict func(int)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.evict(); n > 0 && onEvict != nil {
					onEvict(n)
				}
			}
		}
	}()
}
