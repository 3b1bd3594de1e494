// Package service implements the person watchlist.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"peoplefinder/internal/session"
	"peoplefinder/internal/tracking/models"
	dErrors "peoplefinder/pkg/domain-errors"
	"peoplefinder/pkg/sentinel"
)

// Store persists tracked-person entries.
type Store interface {
	Upsert(ctx context.Context, entry models.TrackedPerson) (created bool, err error)
	ListByUser(ctx context.Context, userID string) ([]models.TrackedPerson, error)
	Find(ctx context.Context, userID, personKey string) (*models.TrackedPerson, error)
	Delete(ctx context.Context, userID, personKey string) error
}

// Service owns watchlist semantics: idempotent tracking keyed by the person
// row the user acted on.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates a tracking service backed by the given store.
func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tracking store is required")
	}
	s := &Service{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Track pins a person to the user's watchlist. Tracking the same person
// twice is a no-op and reports created=false.
func (s *Service) Track(ctx context.Context, userID string, person session.Person) (*models.TrackedPerson, bool, error) {
	if userID == "" {
		return nil, false, dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	if person.LocalID == "" {
		return nil, false, dErrors.New(dErrors.CodeInvalidInput, "person id is required")
	}

	entry := models.TrackedPerson{
		ID:        uuid.New(),
		UserID:    userID,
		PersonKey: person.LocalID,
		Person:    person,
		CreatedAt: s.now().UTC(),
	}
	created, err := s.store.Upsert(ctx, entry)
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "track person")
	}
	if !created {
		existing, err := s.store.Find(ctx, userID, person.LocalID)
		if err != nil {
			return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "load tracked person")
		}
		return existing, false, nil
	}
	return &entry, true, nil
}

// Untrack removes a person from the watchlist.
func (s *Service) Untrack(ctx context.Context, userID, personKey string) error {
	if err := s.store.Delete(ctx, userID, personKey); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "tracked person not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "untrack person")
	}
	return nil
}

// List returns the user's watchlist, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]models.TrackedPerson, error) {
	entries, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list tracked people")
	}
	return entries, nil
}

// IsTracking reports whether the person is on the user's watchlist.
func (s *Service) IsTracking(ctx context.Context, userID, personKey string) (bool, error) {
	_, err := s.store.Find(ctx, userID, personKey)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "check tracking status")
	}
	return true, nil
}
