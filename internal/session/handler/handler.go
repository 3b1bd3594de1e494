// Package handler exposes the search session over HTTP. Every operation
// responds with the full settled session so clients render from one payload.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	historyModels "peoplefinder/internal/history/models"
	"peoplefinder/internal/platform/metrics"
	"peoplefinder/internal/platform/middleware"
	"peoplefinder/internal/session"
	"peoplefinder/internal/transport/http/shared"
	dErrors "peoplefinder/pkg/domain-errors"
)

// Controllers hands out the per-user session controller.
type Controllers interface {
	Controller(ctx context.Context, userID string) (*session.Controller, error)
}

// HistorySource loads a stored history entry for rerun.
type HistorySource interface {
	Get(ctx context.Context, userID string, id uuid.UUID) (*historyModels.Entry, error)
}

// Handler handles search-session endpoints.
type Handler struct {
	logger       *slog.Logger
	controllers  Controllers
	history      HistorySource
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a new session Handler.
func New(controllers Controllers, history HistorySource, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		controllers:  controllers,
		history:      history,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

// Register registers the session routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(sessionRouter chi.Router) {
		sessionRouter.Use(middleware.Recovery(h.logger))
		sessionRouter.Use(middleware.RequestID)
		sessionRouter.Use(middleware.Logger(h.logger))
		sessionRouter.Use(middleware.Timeout(30 * time.Second))
		sessionRouter.Use(middleware.ContentTypeJSON)
		sessionRouter.Use(middleware.Latency(h.metrics))
		sessionRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

		sessionRouter.Get("/session", h.handleGet)
		sessionRouter.Delete("/session", h.handleReset)
		sessionRouter.Post("/session/search", h.handleSearch)
		sessionRouter.Post("/session/page", h.handlePage)
		sessionRouter.Post("/session/sort", h.handleSort)
		sessionRouter.Post("/session/limit", h.handleLimit)
		sessionRouter.Post("/session/rerun", h.handleRerun)
		sessionRouter.Post("/session/clear-error", h.handleClearError)
	})
}

// stateResponse is the full session payload returned by every operation.
type stateResponse struct {
	State              session.State      `json:"state"`
	Query              session.Query      `json:"query"`
	Type               session.SearchType `json:"type,omitempty"`
	Sort               session.Sort       `json:"sort"`
	Page               int                `json:"page"`
	Limit              int                `json:"limit"`
	TotalResults       int                `json:"totalResults"`
	Persons            []session.Person   `json:"persons"`
	NewSearchPerformed bool               `json:"newSearchPerformed"`
	Error              *stateError        `json:"error,omitempty"`
}

type stateError struct {
	Message string                `json:"message"`
	Code    dErrors.Code          `json:"code"`
	Credits *session.CreditReport `json:"credits,omitempty"`
}

func buildState(ctrl *session.Controller) stateResponse {
	snap := ctrl.Snapshot()
	resp := stateResponse{
		State:              ctrl.State(),
		Query:              snap.Query,
		Type:               snap.Type,
		Sort:               snap.Sort,
		Page:               snap.Page,
		Limit:              snap.Limit,
		TotalResults:       snap.TotalResults,
		Persons:            snap.Persons,
		NewSearchPerformed: snap.NewSearchPerformed,
	}
	if resp.Persons == nil {
		resp.Persons = []session.Person{}
	}

	if err := ctrl.LastError(); err != nil {
		se := &stateError{
			Message: err.Error(),
			Code:    dErrors.CodeOf(err),
		}
		var de *dErrors.Error
		if errors.As(err, &de) {
			se.Message = de.Message
		}
		var denied *session.CreditsExceededError
		if errors.As(err, &denied) {
			report := denied.Report
			se.Credits = &report
		}
		resp.Error = se
	}
	return resp
}

// respond writes the session state; a settled error keeps the state payload
// but carries the error's HTTP status.
func (h *Handler) respond(w http.ResponseWriter, ctrl *session.Controller, opErr error) {
	status := http.StatusOK
	if opErr != nil {
		status = dErrors.ToHTTPStatus(dErrors.CodeOf(opErr))
	}
	shared.WriteJSON(w, status, buildState(ctrl))
}

func (h *Handler) controller(w http.ResponseWriter, r *http.Request) *session.Controller {
	ctx := r.Context()
	ctrl, err := h.controllers.Controller(ctx, middleware.GetUserID(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to obtain session controller",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return nil
	}
	return ctrl
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	if ctrl == nil {
		return
	}
	h.respond(w, ctrl, nil)
}

type searchRequest struct {
	Type    string           `json:"type"`
	Query   string           `json:"query,omitempty"`
	Address *session.Address `json:"address,omitempty"`
	Filters *session.Filter  `json:"filters,omitempty"`
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	if ctrl == nil {
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	query := session.TextQuery(req.Query)
	if req.Address != nil {
		query = session.AddressQuery(*req.Address)
	}

	err := ctrl.StartNewSearch(r.Context(), session.SearchType(req.Type), query, req.Filters)
	if errors.Is(err, session.ErrSearchInFlight) {
		shared.WriteError(w, err)
		return
	}
	h.respond(w, ctrl, err)
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	if ctrl == nil {
		return
	}

	var req struct {
		Page int `json:"page"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	err := ctrl.ChangePage(r.Context(), req.Page)
	if errors.Is(err, session.ErrSearchInFlight) {
		shared.WriteError(w, err)
		return
	}
	h.respond(w, ctrl, err)
}

func (h *Handler) handleSort(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	if ctrl == nil {
		return
	}

	var req struct {
		Field     string `json:"field"`
		Direction string `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	err := ctrl.ChangeSort(r.Context(), req.Field, req.Direction)
	if errors.Is(err, session.ErrSearchInFlight) {
		shared.WriteError(w, err)
		return
	}
	h.respond(w, ctrl, err)
}

func (h *Handler) handleLimit(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	if ctrl == nil {
		return
	}

	var req struct {
		Limit int `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	err := ctrl.ChangeLimit(r.Context(), req.Limit)
	if errors.Is(err, session.ErrSearchInFlight) {
		shared.WriteError(w, err)
		return
	}
	h.respond(w, ctrl, err)
}

func (h *Handler) handleRerun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctrl := h.controller(w, r)
	if ctrl == nil {
		return
	}

	var req struct {
		HistoryID string `json:"historyId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	id, err := uuid.Parse(req.HistoryID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid history entry id"))
		return
	}

	entry, err := h.history.Get(ctx, middleware.GetUserID(ctx), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	err = ctrl.RerunFromHistory(ctx, entry.Record)
	if errors.Is(err, session.ErrSearchInFlight) {
		shared.WriteError(w, err)
		return
	}
	h.respond(w, ctrl, err)
}

func (h *Handler) handleClearError(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	if ctrl == nil {
		return
	}
	ctrl.ClearError()
	h.respond(w, ctrl, nil)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	if ctrl == nil {
		return
	}

	err := ctrl.Reset(r.Context())
	if errors.Is(err, session.ErrSearchInFlight) {
		shared.WriteError(w, err)
		return
	}
	h.respond(w, ctrl, err)
}
