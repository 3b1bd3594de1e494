// Package handler exposes the credit ledger over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"peoplefinder/internal/platform/metrics"
	"peoplefinder/internal/platform/middleware"
	"peoplefinder/internal/session"
	"peoplefinder/internal/transport/http/shared"
	dErrors "peoplefinder/pkg/domain-errors"
)

// Service defines the interface for credit checks.
type Service interface {
	Check(ctx context.Context, userID string, estimatedCost int) (*session.CreditReport, error)
}

// Handler handles credit endpoints.
type Handler struct {
	logger       *slog.Logger
	credits      Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a new credits Handler.
func New(credits Service, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		credits:      credits,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

// Register registers the credit routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(creditsRouter chi.Router) {
		creditsRouter.Use(middleware.Recovery(h.logger))
		creditsRouter.Use(middleware.RequestID)
		creditsRouter.Use(middleware.Logger(h.logger))
		creditsRouter.Use(middleware.Timeout(10 * time.Second))
		creditsRouter.Use(middleware.ContentTypeJSON)
		creditsRouter.Use(middleware.Latency(h.metrics))
		creditsRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

		creditsRouter.Post("/check-credits", h.handleCheck)
	})
}

type checkRequest struct {
	EstimatedCredits int `json:"estimatedCredits"`
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req checkRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
			return
		}
	}

	report, err := h.credits.Check(ctx, userID, req.EstimatedCredits)
	if err != nil {
		h.logger.ErrorContext(ctx, "credit check failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, report)
}
