package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"tzscheduler/internal/apperr"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", apperr.Validation("users", "required"), http.StatusBadRequest},
		{"invalid range", apperr.ErrInvalidRange, http.StatusBadRequest},
		{"expired", apperr.ErrAlreadyExpired, http.StatusBadRequest},
		{"not found", apperr.NotFound("event %s not found", "x"), http.StatusNotFound},
		{"unauthenticated", apperr.Unauthenticated("no token"), http.StatusUnauthorized},
		{"forbidden", apperr.Forbidden("denied"), http.StatusForbidden},
		{"conflict", apperr.Conflict("stale"), http.StatusConflict},
		{"wrapped", fmt.Errorf("update: %w", apperr.NotFound("gone")), http.StatusNotFound},
		{"internal", errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperr.HTTPStatus(tt.err))
		})
	}
}

func TestValidationMessage(t *testing.T) {
	one := apperr.Validation("eventTimezone", "unknown timezone %q", "Mars/Base")
	assert.Equal(t, `validation failed: unknown timezone "Mars/Base"`, one.Error())
	assert.Equal(t, []any{"eventTimezone"}, one.Details[0].Path)

	many := &apperr.ValidationError{Details: []apperr.Detail{{Message: "a"}, {Message: "b"}}}
	assert.Equal(t, "validation failed: 2 problems", many.Error())
	assert.True(t, apperr.IsInternal(errors.New("boom")))
	assert.False(t, apperr.IsInternal(many))
}
