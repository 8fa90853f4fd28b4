package testutil

import (
	"context"
	"sync"
	"time"
)

// FakeClaimStore is an in-memory core.ClaimStore for tests. TTLs are
// recorded but never expire; tests drive expiry by releasing claims.
type FakeClaimStore struct {
	mu sync.Mutex

	// ClaimErr, when set, is returned by Claim.
	ClaimErr error

	held map[string]time.Duration
}

// NewFakeClaimStore constructs an empty FakeClaimStore.
func NewFakeClaimStore() *FakeClaimStore {
	return &FakeClaimStore{held: make(map[string]time.Duration)}
}

// Claim records the key, returning false when it is already held.
func (s *FakeClaimStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ClaimErr != nil {
		return false, s.ClaimErr
	}
	if _, ok := s.held[key]; ok {
		return false, nil
	}
	s.held[key] = ttl
	return true, nil
}

// ReleaseClaim drops the key.
func (s *FakeClaimStore) ReleaseClaim(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.held, key)
	return nil
}

// Held reports whether the key is currently claimed.
func (s *FakeClaimStore) Held(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.held[key]
	return ok
}
