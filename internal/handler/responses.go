// Package handler provides the HTTP surface of Tribuna Storage.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/tribuna-digital/tribuna-storage/internal/domain"
	"github.com/tribuna-digital/tribuna-storage/internal/service"
)

// errorResponse is the uniform error body for the JSON API.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		// Encoding failures after WriteHeader are unrecoverable; the types
		// written here marshal unconditionally.
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// mapServiceError translates service errors to HTTP responses. Internal
// error details stay in logs, never in response bodies.
func mapServiceError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrObjectNotFound), errors.Is(err, domain.ErrInvalidPath):
		writeError(w, http.StatusNotFound, "object not found, it may have been moved or deleted")
	case errors.Is(err, domain.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "access denied")
	case errors.Is(err, domain.ErrInvalidCategory):
		writeError(w, http.StatusBadRequest, "invalid upload category")
	case errors.Is(err, domain.ErrSigningFailed):
		writeError(w, http.StatusInternalServerError, "failed to prepare upload")
	case errors.Is(err, service.ErrMissingOwner), errors.Is(err, service.ErrInvalidVisibility):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrScanInProgress):
		writeError(w, http.StatusConflict, "a diagnostic run is already in progress")
	default:
		logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
