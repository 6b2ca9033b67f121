package api

import (
	"net/http"

	"github.com/Runbook-Agent/change-intelligence/internal/models"
)

// ErrorResponse is the JSON error payload
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// statusForKind maps the core error taxonomy onto HTTP status codes
func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.ErrKindValidation:
		return http.StatusBadRequest
	case models.ErrKindNotFound:
		return http.StatusNotFound
	case models.ErrKindConflict:
		return http.StatusConflict
	case models.ErrKindUnavailable:
		return http.StatusServiceUnavailable
	case models.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case models.ErrKindNotImplemented:
		return http.StatusNotImplemented
	case models.ErrKindInvariant:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// errorResponseFor converts any error into a status code plus JSON payload
func errorResponseFor(err error) (int, ErrorResponse) {
	if coreErr, ok := models.AsError(err); ok {
		return statusForKind(coreErr.Kind), ErrorResponse{
			Error:   string(coreErr.Kind),
			Message: coreErr.Message,
			Hint:    coreErr.Hint,
		}
	}
	return http.StatusInternalServerError, ErrorResponse{
		Error:   string(models.ErrKindInvariant),
		Message: err.Error(),
	}
}
