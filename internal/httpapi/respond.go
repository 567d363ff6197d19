// Package httpapi exposes the event queue over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jnst/trading-event-queue/internal/model"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Meta    any    `json:"meta,omitempty"`
}

const (
	msgValidationFailed  = "Validation failed."
	msgNotAuthenticated  = "Authentication credentials were not provided."
	msgAuthFailed        = "Authentication failed."
	msgPermissionDenied  = "Permission denied."
	msgThrottled         = "Request was throttled."
	msgGeneric           = "An error occurred."
	msgEventNotFound     = "Event not found."
	msgEventNotDelivered = "Event not found or not in delivered status."
	msgNoResponse        = "No response available for this event."
	msgMalformedBody     = "Malformed request body."
)

func respond(w http.ResponseWriter, status int, body Envelope) {
	body.Success = status >= 200 && status < 300

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondMessage(w http.ResponseWriter, status int, message string) {
	respond(w, status, Envelope{Message: message})
}

// respondError maps err onto the error taxonomy. Unclassified errors are logged and
// reported without detail.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var verr *model.ValidationError

	switch {
	case errors.As(err, &verr):
		respond(w, http.StatusBadRequest, Envelope{
			Message: msgValidationFailed,
			Data:    map[string]any{"errors": verr.Fields},
		})
	case errors.Is(err, model.ErrValidationFailed):
		respondMessage(w, http.StatusBadRequest, msgValidationFailed)
	case errors.Is(err, model.ErrUnauthenticated):
		respondMessage(w, http.StatusUnauthorized, msgNotAuthenticated)
	case errors.Is(err, model.ErrPermissionDenied):
		respondMessage(w, http.StatusForbidden, msgPermissionDenied)
	case errors.Is(err, model.ErrThrottled):
		respondMessage(w, http.StatusTooManyRequests, msgThrottled)
	case errors.Is(err, model.ErrEventNotDelivered):
		respondMessage(w, http.StatusNotFound, msgEventNotDelivered)
	case errors.Is(err, model.ErrNoResponse):
		respondMessage(w, http.StatusNotFound, msgNoResponse)
	case errors.Is(err, model.ErrNotFound):
		respondMessage(w, http.StatusNotFound, msgEventNotFound)
	default:
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		respondMessage(w, http.StatusInternalServerError, msgGeneric)
	}
}
