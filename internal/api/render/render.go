// Package render writes JSON responses for the HTTP handlers.
package render

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Vasu1712/chatwise-backend/internal/apperr"
)

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error maps err to a status code and writes {"error": ...}. Internal
// errors are logged and their detail is not sent to the client.
func Error(w http.ResponseWriter, logger zerolog.Logger, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Msg("request failed")
		msg = "internal error"
	}
	JSON(w, status, map[string]string{"error": msg, "kind": apperr.KindOf(err)})
}

// Decode reads a JSON request body into v.
func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}
