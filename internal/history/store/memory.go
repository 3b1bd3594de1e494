// Package store persists search-history entries. The memory store backs
// tests and single-node development; Postgres is the production backend.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"peoplefinder/internal/history/models"
	"peoplefinder/pkg/sentinel"
)

// Memory keeps history entries per user, newest first.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]models.Entry
}

// NewMemory creates an in-memory history store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]models.Entry)}
}

func (m *Memory) Insert(_ context.Context, entry models.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Prepend so listing stays newest first without sorting on read.
	m.entries[entry.UserID] = append([]models.Entry{entry}, m.entries[entry.UserID]...)
	return nil
}

func (m *Memory) ListByUser(_ context.Context, userID string, limit, offset int) ([]models.Entry, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.entries[userID]
	total := len(all)
	if offset >= total {
		return []models.Entry{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	out := make([]models.Entry, end-offset)
	copy(out, all[offset:end])
	return out, total, nil
}

func (m *Memory) GetByID(_ context.Context, userID string, id uuid.UUID) (*models.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries[userID] {
		if e.ID == id {
			entry := e
			return &entry, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (m *Memory) Delete(_ context.Context, userID string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.entries[userID]
	for i, e := range all {
		if e.ID == id {
			m.entries[userID] = append(all[:i:i], all[i+1:]...)
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (m *Memory) Aggregate(_ context.Context, userID string, from, to *time.Time) (models.Usage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var usage models.Usage
	for _, e := range m.entries[userID] {
		if from != nil && e.Date.Before(*from) {
			continue
		}
		if to != nil && e.Date.After(*to) {
			continue
		}
		date := e.Date
		if usage.Earliest == nil || date.Before(*usage.Earliest) {
			usage.Earliest = &date
		}
		if usage.Latest == nil || date.After(*usage.Latest) {
			usage.Latest = &date
		}
		usage.Queries++
		usage.Credits += e.CreditsUsed
	}
	return usage, nil
}
