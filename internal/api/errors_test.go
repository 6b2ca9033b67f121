package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Runbook-Agent/change-intelligence/internal/models"
)

func TestStatusForKind(t *testing.T) {
	cases := map[models.ErrorKind]int{
		models.ErrKindValidation:     http.StatusBadRequest,
		models.ErrKindNotFound:       http.StatusNotFound,
		models.ErrKindConflict:       http.StatusConflict,
		models.ErrKindUnavailable:    http.StatusServiceUnavailable,
		models.ErrKindTimeout:        http.StatusGatewayTimeout,
		models.ErrKindNotImplemented: http.StatusNotImplemented,
		models.ErrKindInvariant:      http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, statusForKind(kind), "kind %s", kind)
	}
	assert.Equal(t, http.StatusInternalServerError, statusForKind(models.ErrorKind("mystery")))
}

func TestErrorResponseForCoreError(t *testing.T) {
	status, resp := errorResponseFor(
		models.NewNotFoundError("event abc not found").WithHint("check the id"))

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", resp.Error)
	assert.Equal(t, "event abc not found", resp.Message)
	assert.Equal(t, "check the id", resp.Hint)
}

func TestErrorResponseForPlainError(t *testing.T) {
	status, resp := errorResponseFor(errors.New("something odd"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, string(models.ErrKindInvariant), resp.Error)
	assert.Equal(t, "something odd", resp.Message)
}
