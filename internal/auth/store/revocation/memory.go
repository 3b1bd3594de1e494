// Package revocation tracks revoked token IDs until their natural expiry.
package revocation

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time.Now for tests.
type Clock func() time.Time

// Memory is an in-process revocation list.
type Memory struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
	clock   Clock
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) MemoryOption {
	return func(m *Memory) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewMemory creates an in-memory revocation list.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		revoked: make(map[string]time.Time),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Revoke marks a token id revoked until ttl elapses.
func (m *Memory) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" || ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	m.revoked[tokenID] = m.clock().Add(ttl)
	m.mu.Unlock()
	return nil
}

// IsRevoked reports whether a token id is currently revoked. Entries past
// their expiry are dropped opportunistically.
func (m *Memory) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt, ok := m.revoked[tokenID]
	if !ok {
		return false, nil
	}
	if m.clock().After(expiresAt) {
		delete(m.revoked, tokenID)
		return false, nil
	}
	return true, nil
}
