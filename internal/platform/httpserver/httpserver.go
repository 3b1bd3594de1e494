// Package httpserver builds the peoplefinder HTTP server. Searches can hold
// a request open for an upstream round trip, so the write timeout must stay
// above the longest per-route handler timeout.
package httpserver

import (
	"net/http"

	"peoplefinder/internal/platform/config"
)

// New builds the server with transport limits from configuration.
func New(addr string, cfg config.HTTPConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
