// Package user persists user accounts.
package user

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"peoplefinder/internal/auth/models"
	"peoplefinder/pkg/sentinel"
)

// Memory is an in-memory user store for tests and development.
type Memory struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]models.User
	byName map[string]uuid.UUID
}

// NewMemory creates an empty in-memory user store.
func NewMemory() *Memory {
	return &Memory{
		byID:   make(map[uuid.UUID]models.User),
		byName: make(map[string]uuid.UUID),
	}
}

func (m *Memory) Create(_ context.Context, u models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(u.Username)
	if _, exists := m.byName[key]; exists {
		return sentinel.ErrInvalidState
	}
	m.byID[u.ID] = u
	m.byName[key] = u.ID
	return nil
}

func (m *Memory) FindByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byName[strings.ToLower(username)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	u := m.byID[id]
	return &u, nil
}

func (m *Memory) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &u, nil
}
