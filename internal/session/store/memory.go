// Package store provides session snapshot persistence. Both backends apply
// the same freshness rule: a snapshot older than its TTL is treated as absent
// and removed on read, so a stale session is never restored.
package store

import (
	"context"
	"sync"
	"time"

	"peoplefinder/internal/session"
)

// Memory keeps a single snapshot in process memory. Used in tests and when no
// Redis is configured.
type Memory struct {
	mu   sync.Mutex
	snap *session.Snapshot
	ttl  time.Duration
	now  func() time.Time
}

// NewMemory creates an in-memory snapshot store with the given TTL.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl: ttl,
		now: time.Now,
	}
}

func (m *Memory) Save(_ context.Context, snap session.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = &snap
	return nil
}

func (m *Memory) Load(_ context.Context) (*session.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return nil, nil
	}
	if m.now().Sub(m.snap.SavedAt) > m.ttl {
		m.snap = nil
		return nil, nil
	}
	snap := *m.snap
	return &snap, nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = nil
	return nil
}
