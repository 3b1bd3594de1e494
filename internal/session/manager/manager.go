// Package manager hands out one search-session controller per user. The
// controller ports are bound to the user here so the session package never
// learns about user scoping.
package manager

import (
	"context"
	"log/slog"
	"sync"

	creditsService "peoplefinder/internal/credits/service"
	historyService "peoplefinder/internal/history/service"
	"peoplefinder/internal/platform/metrics"
	"peoplefinder/internal/session"
	dErrors "peoplefinder/pkg/domain-errors"
)

// StoreFactory builds the snapshot store for one user.
type StoreFactory func(userID string) session.SnapshotStore

// Manager memoizes controllers per user and restores their persisted
// sessions on first use.
type Manager struct {
	gateway    session.Gateway
	credits    *creditsService.Service
	history    *historyService.Service
	stores     StoreFactory
	logger     *slog.Logger
	metrics    *metrics.Metrics
	searchCost int

	mu          sync.Mutex
	controllers map[string]*session.Controller
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(met *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = met
	}
}

func WithSearchCost(cost int) Option {
	return func(m *Manager) {
		if cost > 0 {
			m.searchCost = cost
		}
	}
}

// New creates a controller manager.
func New(gateway session.Gateway, credits *creditsService.Service, history *historyService.Service, stores StoreFactory, opts ...Option) (*Manager, error) {
	if gateway == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "gateway is required")
	}
	if credits == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credits service is required")
	}
	if history == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "history service is required")
	}
	if stores == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "store factory is required")
	}

	m := &Manager{
		gateway:     gateway,
		credits:     credits,
		history:     history,
		stores:      stores,
		logger:      slog.Default(),
		searchCost:  1,
		controllers: make(map[string]*session.Controller),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Controller returns the user's controller, creating and restoring it on
// first use.
func (m *Manager) Controller(ctx context.Context, userID string) (*session.Controller, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}

	m.mu.Lock()
	if ctrl, ok := m.controllers[userID]; ok {
		m.mu.Unlock()
		return ctrl, nil
	}
	m.mu.Unlock()

	ctrl, err := session.New(
		m.gateway,
		&creditAdapter{credits: m.credits, userID: userID},
		&recorderAdapter{history: m.history, userID: userID},
		bearerPresent{},
		m.stores(userID),
		session.WithLogger(m.logger.With("user_id", userID)),
		session.WithMetrics(m.metrics),
		session.WithSearchCost(m.searchCost),
	)
	if err != nil {
		return nil, err
	}
	if err := ctrl.Restore(ctx); err != nil {
		// A broken snapshot only loses continuity, never the session itself.
		m.logger.WarnContext(ctx, "failed to restore session snapshot",
			"user_id", userID,
			"error", err,
		)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.controllers[userID]; ok {
		return existing, nil
	}
	m.controllers[userID] = ctrl
	return ctrl, nil
}

// creditAdapter binds the credit ledger to one user.
type creditAdapter struct {
	credits *creditsService.Service
	userID  string
}

func (a *creditAdapter) CheckCredits(ctx context.Context, estimatedCost int) (*session.CreditReport, error) {
	return a.credits.Check(ctx, a.userID, estimatedCost)
}

// recorderAdapter binds history recording to one user.
type recorderAdapter struct {
	history *historyService.Service
	userID  string
}

func (a *recorderAdapter) Record(ctx context.Context, rec session.Record) error {
	_, err := a.history.Record(ctx, a.userID, rec)
	return err
}

// bearerPresent reports an always-present credential: controllers are only
// reachable behind the auth middleware, which has already validated a token.
type bearerPresent struct{}

func (bearerPresent) IsAuthenticated() bool {
	return true
}
