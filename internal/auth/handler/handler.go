// Package handler exposes login, logout, and profile endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"peoplefinder/internal/auth/models"
	"peoplefinder/internal/platform/metrics"
	"peoplefinder/internal/platform/middleware"
	"peoplefinder/internal/transport/http/shared"
	dErrors "peoplefinder/pkg/domain-errors"
)

// Service defines the interface for auth operations.
type Service interface {
	Login(ctx context.Context, req models.LoginRequest, userAgent, remoteAddr string) (*models.LoginResult, error)
	Logout(ctx context.Context, tokenID string) error
}

// Handler handles authentication endpoints.
type Handler struct {
	logger       *slog.Logger
	auth         Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a new auth Handler.
func New(auth Service, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		auth:         auth,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

// Register registers the auth routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(authRouter chi.Router) {
		authRouter.Use(middleware.Recovery(h.logger))
		authRouter.Use(middleware.RequestID)
		authRouter.Use(middleware.Logger(h.logger))
		authRouter.Use(middleware.Timeout(10 * time.Second))
		authRouter.Use(middleware.ContentTypeJSON)
		authRouter.Use(middleware.Latency(h.metrics))

		authRouter.Post("/login", h.handleLogin)

		authRouter.Group(func(pr chi.Router) {
			pr.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
			pr.Post("/logout", h.handleLogout)
			pr.Get("/profile", h.handleProfile)
		})
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	result, err := h.auth.Login(ctx, req, r.UserAgent(), r.RemoteAddr)
	if err != nil {
		h.logger.WarnContext(ctx, "login failed",
			"request_id", middleware.GetRequestID(ctx),
			"username", req.Username,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.auth.Logout(ctx, middleware.GetTokenID(ctx)); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shared.WriteJSON(w, http.StatusOK, map[string]string{
		"id":       middleware.GetUserID(ctx),
		"username": middleware.GetUsername(ctx),
	})
}
