// Package shared holds response helpers used by every feature handler so the
// JSON error envelope stays uniform across the API surface.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "peoplefinder/pkg/domain-errors"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string       `json:"error"`
	Code  dErrors.Code `json:"code"`
}

// WriteError translates a coded domain error into the HTTP envelope. Errors
// without a code surface as 500 with a generic message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)

	msg := "internal server error"
	var de *dErrors.Error
	if errors.As(err, &de) {
		msg = de.Message
	}

	WriteJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
