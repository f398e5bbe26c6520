// Package noncestore implements single-use reservation of request nonces
// with a validity delay, guarding the access-key resolution flow against
// replay.
package noncestore

import (
	"sync"
	"time"

	"github.com/jmhodges/clock"
)

// Store reserves nonces in memory. Reserving a nonce holds it for ttl:
// another reservation of the same nonce fails while the clock is still
// before that expiry, and succeeds again once it has passed.
type Store struct {
	clk  clock.Clock
	ttl  time.Duration
	mu   sync.Mutex
	seen map[string]time.Time // nonce -> expiration
}

// New returns a Store whose reservations expire after ttl (the configured
// access nonce lifetime).
func New(clk clock.Clock, ttl time.Duration) *Store {
	return &Store{
		clk:  clk,
		ttl:  ttl,
		seen: make(map[string]time.Time),
	}
}

// Reserve claims nonce for ttl. It reports false if the nonce was already
// reserved and has not yet expired. Expired entries are evicted lazily as
// they're encountered.
func (s *Store) Reserve(nonce string) bool {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if exp, ok := s.seen[nonce]; ok {
		if now.Before(exp) {
			return false
		}
		delete(s.seen, nonce)
	}

	s.seen[nonce] = now.Add(s.ttl)

	if len(s.seen)%256 == 0 {
		s.evictExpiredLocked(now)
	}

	return true
}

// evictExpiredLocked must be called with s.mu held.
func (s *Store) evictExpiredLocked(now time.Time) {
	for nonce, exp := range s.seen {
		if !now.Before(exp) {
			delete(s.seen, nonce)
		}
	}
}
