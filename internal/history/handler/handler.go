// Package handler exposes search history over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"peoplefinder/internal/history/models"
	"peoplefinder/internal/platform/metrics"
	"peoplefinder/internal/platform/middleware"
	"peoplefinder/internal/session"
	"peoplefinder/internal/transport/http/shared"
	dErrors "peoplefinder/pkg/domain-errors"
)

// Service defines the interface for history operations.
type Service interface {
	Record(ctx context.Context, userID string, rec session.Record) (*models.Entry, error)
	Recent(ctx context.Context, userID string, limit int) ([]models.Entry, error)
	Page(ctx context.Context, userID string, page int) (*models.Page, error)
	Get(ctx context.Context, userID string, id uuid.UUID) (*models.Entry, error)
	Delete(ctx context.Context, userID string, id uuid.UUID) error
	Statistics(ctx context.Context, userID string, from, to *time.Time) (*models.Statistics, error)
}

// Handler handles history and statistics endpoints.
type Handler struct {
	logger       *slog.Logger
	history      Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a new history Handler.
func New(history Service, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		history:      history,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

// Register registers the history routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(historyRouter chi.Router) {
		historyRouter.Use(middleware.Recovery(h.logger))
		historyRouter.Use(middleware.RequestID)
		historyRouter.Use(middleware.Logger(h.logger))
		historyRouter.Use(middleware.Timeout(30 * time.Second))
		historyRouter.Use(middleware.ContentTypeJSON)
		historyRouter.Use(middleware.Latency(h.metrics))
		historyRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

		historyRouter.Post("/history", h.handleRecord)
		historyRouter.Get("/history", h.handlePage)
		historyRouter.Get("/history/recent", h.handleRecent)
		historyRouter.Get("/history/{id}", h.handleGet)
		historyRouter.Delete("/history/{id}", h.handleDelete)
		historyRouter.Get("/statistics", h.handleStatistics)
	})
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var rec session.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		h.logger.WarnContext(ctx, "invalid history record body",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	entry, err := h.history.Record(ctx, userID, rec)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to record history",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "page must be a positive integer"))
			return
		}
		page = n
	}

	result, err := h.history.Page(ctx, userID, page)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	entries, err := h.history.Recent(ctx, userID, limit)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid history entry id"))
		return
	}

	entry, err := h.history.Get(ctx, userID, id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid history entry id"))
		return
	}

	if err := h.history.Delete(ctx, userID, id); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	from, err := parseDateParam(r, "startDate")
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	to, err := parseDateParam(r, "endDate")
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	stats, err := h.history.Statistics(ctx, userID, from, to)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to aggregate statistics",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, stats)
}

// parseDateParam accepts RFC 3339 timestamps or bare dates.
func parseDateParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s", name)
}
