package dmesim

import (
	"context"
	"testing"
	"time"
)

func TestTokenStore_consumeOnce(t *testing.T) {
	s := newTokenStore(time.Minute)
	tok := s.issue()

	if !s.consume(tok) {
		t.Fatal("expected fresh token to be accepted")
	}
	if s.consume(tok) {
		t.Error("token must not be accepted twice")
	}
	if s.consume("never-issued") {
		t.Error("unknown token must be rejected")
	}
}

func TestTokenStore_expiry(t *testing.T) {
	s := newTokenStore(10 * time.Millisecond)
	tok := s.issue()
	time.Sleep(20 * time.Millisecond)

	if s.consume(tok) {
		t.Error("expired token must be rejected")
	}
}

func TestTokenStore_evict(t *testing.T) {
	s := newTokenStore(10 * time.Millisecond)
	s.issue()
	s.issue()
	time.Sleep(20 * time.Millisecond)
	s.ttl = time.Minute
	live := s.issue()

	if n := s.evict(); n != 2 {
		t.Errorf("evicted: got %d, want 2", n)
	}
	if s.len() != 1 || !s.consume(live) {
		t.Error("live token should survive eviction")
	}
}

func TestTokenStore_startEviction(t *testing.T) {
	s := newTokenStore(time.Millisecond)
	s.issue()
	time.Sleep(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	evicted := make(chan int, 1)
	s.startEviction(ctx, 5*time.Millisecond, func(n int) {
		select {
		case evicted <- n:
		default:
		}
	})

	select {
	case n := <-evicted:
		if n != 1 {
			t.Errorf("evicted: got %d, want 1", n)
		}
	case <-time.After(time.Second):
		t.Fatal("eviction did not run")
	}
}
