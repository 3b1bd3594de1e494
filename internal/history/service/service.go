// Package service implements search-history recording and reporting.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"peoplefinder/internal/history/models"
	"peoplefinder/internal/session"
	dErrors "peoplefinder/pkg/domain-errors"
	"peoplefinder/pkg/sentinel"
)

// DefaultPageSize is the history page size served to the UI.
const DefaultPageSize = 10

// DefaultRecentLimit bounds the dashboard's recent-searches widget.
const DefaultRecentLimit = 6

// Store persists history entries.
type Store interface {
	Insert(ctx context.Context, entry models.Entry) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Entry, int, error)
	GetByID(ctx context.Context, userID string, id uuid.UUID) (*models.Entry, error)
	Delete(ctx context.Context, userID string, id uuid.UUID) error
	Aggregate(ctx context.Context, userID string, from, to *time.Time) (models.Usage, error)
}

// Service owns history semantics: id assignment, user scoping, pagination
// math, and usage aggregation.
type Service struct {
	store        Store
	logger       *slog.Logger
	pageSize     int
	creditsLimit int
	now          func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithCreditsLimit sets the plan limit reported alongside statistics.
func WithCreditsLimit(limit int) Option {
	return func(s *Service) {
		s.creditsLimit = limit
	}
}

func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// New creates a history service backed by the given store.
func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "history store is required")
	}
	s := &Service{
		store:    store,
		logger:   slog.Default(),
		pageSize: DefaultPageSize,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Record stores one search trace for the user. The entry id and a missing
// date are assigned here so callers only supply what they observed.
func (s *Service) Record(ctx context.Context, userID string, rec session.Record) (*models.Entry, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	if rec.Date.IsZero() {
		rec.Date = s.now().UTC()
	}

	entry := models.Entry{
		ID:     uuid.New(),
		UserID: userID,
		Record: rec,
	}
	if err := s.store.Insert(ctx, entry); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "record search history")
	}
	return &entry, nil
}

// Recent returns the user's newest entries for the dashboard widget.
func (s *Service) Recent(ctx context.Context, userID string, limit int) ([]models.Entry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	entries, _, err := s.store.ListByUser(ctx, userID, limit, 0)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list recent searches")
	}
	return entries, nil
}

// Page returns one page of the user's history, newest first.
func (s *Service) Page(ctx context.Context, userID string, page int) (*models.Page, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * s.pageSize

	entries, total, err := s.store.ListByUser(ctx, userID, s.pageSize, offset)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "page search history")
	}

	totalPages := (total + s.pageSize - 1) / s.pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	return &models.Page{
		Entries:     entries,
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalItems:  total,
	}, nil
}

// Get returns one of the user's entries by id.
func (s *Service) Get(ctx context.Context, userID string, id uuid.UUID) (*models.Entry, error) {
	entry, err := s.store.GetByID(ctx, userID, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "search history entry not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get search history entry")
	}
	return entry, nil
}

// Delete removes one of the user's entries.
func (s *Service) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	if err := s.store.Delete(ctx, userID, id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "search history entry not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "delete search history entry")
	}
	return nil
}

// Statistics aggregates usage across an optional date window. An unset
// window bound falls back to the earliest or latest matching entry date.
func (s *Service) Statistics(ctx context.Context, userID string, from, to *time.Time) (*models.Statistics, error) {
	usage, err := s.store.Aggregate(ctx, userID, from, to)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "aggregate search statistics")
	}

	start, end := from, to
	if start == nil {
		start = usage.Earliest
	}
	if end == nil {
		end = usage.Latest
	}
	return &models.Statistics{
		TotalQueries:     usage.Queries,
		TotalCreditsUsed: usage.Credits,
		StartDate:        start,
		EndDate:          end,
		CreditsLimit:     s.creditsLimit,
	}, nil
}

// TotalCreditsUsed reports the user's lifetime spend. The credit ledger is
// derived from history rather than kept as a separate counter.
func (s *Service) TotalCreditsUsed(ctx context.Context, userID string) (int, error) {
	usage, err := s.store.Aggregate(ctx, userID, nil, nil)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "sum credits used")
	}
	return usage.Credits, nil
}
