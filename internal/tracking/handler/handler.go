// Package handler exposes the person watchlist over HTTP.
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
	"peoplefinder/internal/tracking/models"
	"peoplefinder/internal/transport/http/shared"
	dErrors "peoplefinder/pkg/domain-errors"
)

// Service defines the interface for watchlist operations.
type Service interface {
	Track(ctx context.Context, userID string, person session.Person) (*models.TrackedPerson, bool, error)
	Untrack(ctx context.Context, userID, personKey string) error
	List(ctx context.Context, userID string) ([]models.TrackedPerson, error)
	IsTracking(ctx context.Context, userID, personKey string) (bool, error)
}

// Handler handles tracking endpoints.
type Handler struct {
	logger       *slog.Logger
	tracking     Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a new tracking Handler.
func New(tracking Service, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		tracking:     tracking,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

// Register registers the tracking routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(trackingRouter chi.Router) {
		trackingRouter.Use(middleware.Recovery(h.logger))
		trackingRouter.Use(middleware.RequestID)
		trackingRouter.Use(middleware.Logger(h.logger))
		trackingRouter.Use(middleware.Timeout(10 * time.Second))
		trackingRouter.Use(middleware.ContentTypeJSON)
		trackingRouter.Use(middleware.Latency(h.metrics))
		trackingRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

		trackingRouter.Post("/tracking", h.handleTrack)
		trackingRouter.Get("/tracking", h.handleList)
		trackingRouter.Get("/tracking/status/{personKey}", h.handleStatus)
		trackingRouter.Delete("/tracking/{personKey}", h.handleUntrack)
	})
}

type trackRequest struct {
	PersonData session.Person `json:"personData"`
}

func (h *Handler) handleTrack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	entry, created, err := h.tracking.Track(ctx, userID, req.PersonData)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if !created {
		shared.WriteJSON(w, http.StatusOK, entry)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entries, err := h.tracking.List(ctx, middleware.GetUserID(ctx))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tracking, err := h.tracking.IsTracking(ctx, middleware.GetUserID(ctx), chi.URLParam(r, "personKey"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]bool{"isTracking": tracking})
}

func (h *Handler) handleUntrack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.tracking.Untrack(ctx, middleware.GetUserID(ctx), chi.URLParam(r, "personKey")); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
