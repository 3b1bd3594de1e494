// Package store persists tracked-person entries.
package store

import (
	"context"
	"sync"

	"peoplefinder/internal/tracking/models"
	"peoplefinder/pkg/sentinel"
)

// Memory keeps tracked people per user, newest first.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]models.TrackedPerson
}

// NewMemory creates an in-memory tracking store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]models.TrackedPerson)}
}

func (m *Memory) Upsert(_ context.Context, entry models.TrackedPerson) (created bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries[entry.UserID] {
		if e.PersonKey == entry.PersonKey {
			return false, nil
		}
	}
	m.entries[entry.UserID] = append([]models.TrackedPerson{entry}, m.entries[entry.UserID]...)
	return true, nil
}

func (m *Memory) ListByUser(_ context.Context, userID string) ([]models.TrackedPerson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.TrackedPerson, len(m.entries[userID]))
	copy(out, m.entries[userID])
	return out, nil
}

func (m *Memory) Find(_ context.Context, userID, personKey string) (*models.TrackedPerson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries[userID] {
		if e.PersonKey == personKey {
			entry := e
			return &entry, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (m *Memory) Delete(_ context.Context, userID, personKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.entries[userID]
	for i, e := range all {
		if e.PersonKey == personKey {
			m.entries[userID] = append(all[:i:i], all[i+1:]...)
			return nil
		}
	}
	return sentinel.ErrNotFound
}
