package api

import (
	"errors"
	"net/http"

	"relctl/internal/release"
)

// apiError is the JSON error envelope.
type apiError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// errorStatus maps a domain error to an HTTP status and envelope.
func errorStatus(err error) (int, apiError) {
	var invalid *release.InvalidSpecError
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest, apiError{
			Code:    "invalid_spec",
			Message: release.ErrInvalidSpec.Error(),
			Details: map[string]any{"problems": invalid.Problems},
		}
	case errors.Is(err, release.ErrReleaseInProgress):
		return http.StatusConflict, apiError{Code: "release_in_progress", Message: err.Error()}
	case errors.Is(err, release.ErrNotFound):
		return http.StatusNotFound, apiError{Code: "not_found", Message: err.Error()}
	}
	return http.StatusInternalServerError, apiError{Code: "internal", Message: err.Error()}
}
