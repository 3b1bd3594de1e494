// Package httptransport assembles the public HTTP surface. Feature handlers
// register themselves so this package never learns their routes.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"peoplefinder/internal/transport/http/shared"
)

// Registrar is implemented by every feature handler.
type Registrar interface {
	Register(r chi.Router)
}

// HealthChecker reports readiness of one backing dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

const healthTimeout = 2 * time.Second

// NewRouter mounts all feature handlers plus the operational endpoints.
func NewRouter(logger *slog.Logger, handlers []Registrar, health map[string]HealthChecker) http.Handler {
	r := chi.NewRouter()

	for _, h := range handlers {
		h.Register(r)
	}

	r.Get("/healthz", handleHealth(logger, health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func handleHealth(logger *slog.Logger, health map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok", Components: make(map[string]string, len(health))}
		status := http.StatusOK
		for name, checker := range health {
			if err := checker.Health(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed",
					"component", name,
					"error", err.Error(),
				)
				resp.Components[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Components[name] = "ok"
		}
		if len(resp.Components) == 0 {
			resp.Components = nil
		}
		shared.WriteJSON(w, status, resp)
	}
}
