package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"fisse/internal/core"
	"fisse/internal/log"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, errorResponse{Error: message})
}

// writeServiceError maps engine errors onto status codes. Anything not
// recognized is logged and reported as a 500 without its details.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed", "error", err)
		writeError(w, r, status, "internal error")
		return
	}
	writeError(w, r, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidPeriod),
		errors.Is(err, core.ErrInvalidCadence),
		errors.Is(err, core.ErrInvalidSide),
		errors.Is(err, core.ErrInvalidAnchorDay),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrNameTooLong),
		errors.Is(err, core.ErrMissingDate),
		errors.Is(err, core.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrTemplateNotFound),
		errors.Is(err, core.ErrItemNotFound),
		errors.Is(err, core.ErrExtraNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidTransition),
		errors.Is(err, core.ErrNotLinked):
		return http.StatusConflict
	case errors.Is(err, core.ErrRemoteUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
