package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/flora-core/internal/command"
	"github.com/nerrad567/flora-core/internal/device"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes {"ok":false,"error":message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{OK: false, Error: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, message)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, device.ErrInvalidInput), errors.Is(err, device.ErrUnknownDevice):
		return http.StatusBadRequest
	case errors.Is(err, command.ErrActuationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
