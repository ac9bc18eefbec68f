package errors_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	apperrors "github.com/koopa0/shortlink/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestAppError_Is(t *testing.T) {
	notFound := apperrors.New(apperrors.ErrCodeNotFound, "link not found")
	wrapped := fmt.Errorf("resolve: %w", notFound)

	assert.True(t, errors.Is(wrapped, apperrors.New(apperrors.ErrCodeNotFound, "other message")))
	assert.False(t, errors.Is(wrapped, apperrors.New(apperrors.ErrCodeInvalidInput, "link not found")))
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := apperrors.Wrap(cause, apperrors.ErrCodeUnavailable, "store unavailable")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[SERVICE_UNAVAILABLE] store unavailable: connection refused", err.Error())
}

func TestAppError_WithDetailsCopies(t *testing.T) {
	base := apperrors.New(apperrors.ErrCodeInvalidInput, "invalid url")
	detailed := base.WithDetails("scheme must be http or https")

	assert.Empty(t, base.Details)
	assert.Equal(t, "scheme must be http or https", detailed.Details)
	assert.ErrorIs(t, detailed, base)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid input", apperrors.New(apperrors.ErrCodeInvalidInput, "x"), http.StatusBadRequest},
		{"not found", apperrors.New(apperrors.ErrCodeNotFound, "x"), http.StatusNotFound},
		{"rate limited", apperrors.New(apperrors.ErrCodeRateLimited, "x"), http.StatusTooManyRequests},
		{"unavailable", apperrors.New(apperrors.ErrCodeUnavailable, "x"), http.StatusServiceUnavailable},
		{"exhausted", apperrors.New(apperrors.ErrCodeCreationExhausted, "x"), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("ctx: %w", apperrors.New(apperrors.ErrCodeNotFound, "x")), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, apperrors.HTTPStatus(tt.err))
		})
	}
}
