package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidation(t *testing.T) {
	err := Validation("entityName is not provided")
	assert.Equal(t, "VALIDATION", err.Code)
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "entityName is not provided")
}

func TestForbidden(t *testing.T) {
	err := Forbidden("no readable index for the caller")
	assert.Equal(t, "FORBIDDEN", err.Code)
	assert.Equal(t, http.StatusForbidden, err.Status)
	assert.True(t, errors.Is(err, ErrForbidden))
}

func TestDependency_PreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Dependency("elasticsearch query", cause)

	assert.Equal(t, "DEPENDENCY_FAILURE", err.Code)
	assert.Equal(t, http.StatusBadGateway, err.Status)
	assert.True(t, errors.Is(err, ErrDependency))
	assert.True(t, errors.Is(err, cause))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error", Validation("bad"), http.StatusBadRequest},
		{"wrapped forbidden", fmt.Errorf("query: %w", ErrForbidden), http.StatusForbidden},
		{"wrapped not found", fmt.Errorf("record: %w", ErrNotFound), http.StatusNotFound},
		{"wrapped dependency", fmt.Errorf("store: %w", ErrDependency), http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	err := NotFound("record", "abc")
	assert.Equal(t, ErrNotFound, errors.Unwrap(err))

	wrapped := Wrap(err, "fetch record")
	var appErr *AppError
	assert.True(t, errors.As(wrapped, &appErr))
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}
