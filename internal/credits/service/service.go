// Package service implements the credit ledger. Spend is derived from
// recorded search history, so the ledger can never drift from what was
// actually executed.
package service

import (
	"context"
	"log/slog"

	"peoplefinder/internal/session"
	dErrors "peoplefinder/pkg/domain-errors"
)

// UsageSource reports a user's lifetime credit spend.
type UsageSource interface {
	TotalCreditsUsed(ctx context.Context, userID string) (int, error)
}

// Service answers credit availability questions against a fixed plan limit.
// Any failure to read usage fails closed: no report, no search.
type Service struct {
	usage  UsageSource
	limit  int
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates a credit ledger with the given plan limit.
func New(usage UsageSource, limit int, opts ...Option) (*Service, error) {
	if usage == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "usage source is required")
	}
	if limit <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credit limit must be positive")
	}
	s := &Service{
		usage:  usage,
		limit:  limit,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Check reports whether the user may spend estimatedCost credits now.
func (s *Service) Check(ctx context.Context, userID string, estimatedCost int) (*session.CreditReport, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	if estimatedCost <= 0 {
		estimatedCost = 1
	}

	used, err := s.usage.TotalCreditsUsed(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "credit ledger read failed", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "credit ledger unavailable")
	}

	available := s.limit - used
	if available < 0 {
		available = 0
	}
	return &session.CreditReport{
		Available:        available >= estimatedCost,
		AvailableCredits: available,
		TotalUsed:        used,
		Limit:            s.limit,
	}, nil
}

// Limit returns the configured plan limit.
func (s *Service) Limit() int {
	return s.limit
}
