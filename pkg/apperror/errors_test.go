package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New("ACT_001", "action a1 not found", http.StatusNotFound),
			expected: "[ACT_001] action a1 not found",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap("NET_001", "Backend unreachable", http.StatusBadGateway, fmt.Errorf("connection refused")),
			expected: "[NET_001] Backend unreachable: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := ErrNetwork(inner)

	assert.True(t, errors.Is(appErr, inner))
	assert.Nil(t, New("ACT_001", "test", http.StatusNotFound).Unwrap())
}

func TestActionErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"ActionNotFound", ErrActionNotFound("a1"), CodeActionNotFound, 404},
		{"ActionExpired", ErrActionExpired("a1"), CodeActionExpired, 410},
		{"AlreadyDeciding", ErrAlreadyDeciding("a1"), CodeAlreadyDeciding, 409},
		{"DuplicateDecided", ErrDuplicateDecided("a1"), CodeDuplicateDecided, 409},
		{"NoDeviceToken", ErrNoDeviceToken(), CodeNoDeviceToken, 503},
		{"InvalidToken", ErrInvalidToken(), CodeInvalidToken, 401},
		{"RateLimit", ErrRateLimitExceeded(), CodeRateLimited, 429},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestErrAPI_CarriesBackendStatus(t *testing.T) {
	err := ErrAPI(500, "https://x/reject")

	assert.Equal(t, CodeAPI, err.Code)
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus)
	assert.Equal(t, 500, StatusOf(err))
	assert.Equal(t, 500, StatusOf(fmt.Errorf("decide: %w", err)))
	assert.Equal(t, 0, StatusOf(errors.New("plain")))
}

func TestHasCode(t *testing.T) {
	wrapped := fmt.Errorf("decide a1: %w", ErrActionExpired("a1"))

	assert.True(t, HasCode(wrapped, CodeActionExpired))
	assert.False(t, HasCode(wrapped, CodeActionNotFound))
	assert.False(t, HasCode(errors.New("plain"), CodeActionExpired))
	assert.False(t, HasCode(nil, CodeActionExpired))
}

func TestSystemErrors(t *testing.T) {
	inner := fmt.Errorf("redis: connection closed")

	storageErr := ErrStorage(inner)
	assert.Equal(t, CodeInternal, storageErr.Code)
	assert.Equal(t, 500, storageErr.HTTPStatus)
	assert.True(t, errors.Is(storageErr, inner))

	valErr := ErrValidation(inner)
	assert.Equal(t, CodeValidation, valErr.Code)
	assert.Equal(t, 422, valErr.HTTPStatus)
}
