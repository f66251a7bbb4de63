package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/desertthunder/tracksig/internal/shared"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrMissingArgument),
		errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrUnknownMetric),
		errors.Is(err, shared.ErrUnknownMode),
		errors.Is(err, shared.ErrUnknownFeature),
		errors.Is(err, shared.ErrDimensionMismatch):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrTrackNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrNoSignature):
		return http.StatusConflict
	case errors.Is(err, shared.ErrAuthExhausted),
		errors.Is(err, shared.ErrEgressBlocked),
		errors.Is(err, shared.ErrUnknownUpstream),
		errors.Is(err, shared.ErrAuthFailed),
		errors.Is(err, shared.ErrAPIRequest):
		return http.StatusBadGateway
	case errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes body with the given status. The body is marshaled first so an encoding failure still
// produces a well-formed error response.
func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	data, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		data, _ = json.Marshal(map[string]any{"status": statusError, "error": "failed to encode response: " + err.Error()})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}

// writeSuccess writes {"status":"success", ...fields}.
func writeSuccess(w http.ResponseWriter, fields map[string]any) {
	body := map[string]any{"status": statusSuccess}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

// writeError writes {"status":"error","error":...} with the status mapped from err.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]any{"status": statusError, "error": err.Error()})
}
