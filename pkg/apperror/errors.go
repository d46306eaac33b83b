package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes. Families: VAL (payload validation), API/NET (backend calls),
// ACT (action lifecycle), DEV/AUTH (device identity), RATE, SYS.
const (
	CodeValidation       = "VAL_001"
	CodeAPI              = "API_001"
	CodeNetwork          = "NET_001"
	CodeActionNotFound   = "ACT_001"
	CodeActionExpired    = "ACT_002"
	CodeAlreadyDeciding  = "ACT_003"
	CodeDuplicateDecided = "ACT_004"
	CodeNoDeviceToken    = "DEV_001"
	CodeInvalidToken     = "AUTH_001"
	CodeRateLimited      = "RATE_001"
	CodeInternal         = "SYS_001"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// HasCode reports whether err (or anything it wraps) is an AppError with code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// ---- Backend calls (API / NET) ----

// APIError is the cause carried by an API_001 error: the backend answered
// with a non-2xx status.
type APIError struct {
	Status int
	URL    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned HTTP %d for %s", e.Status, e.URL)
}

// ErrAPI reports a non-2xx backend response. The HTTP status seen on the
// local API is 502; the backend status stays available through StatusOf.
func ErrAPI(status int, url string) *AppError {
	return Wrap(CodeAPI, fmt.Sprintf("API error: %d", status), http.StatusBadGateway, &APIError{Status: status, URL: url})
}

// StatusOf returns the backend HTTP status carried by an API_001 error, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// ErrNetwork reports a transport failure or timeout talking to the backend.
func ErrNetwork(err error) *AppError {
	return Wrap(CodeNetwork, "Backend unreachable", http.StatusBadGateway, err)
}

// ---- Validation (VAL) ----

// ErrValidation wraps a payload validation failure.
func ErrValidation(err error) *AppError {
	return Wrap(CodeValidation, "Invalid payload", http.StatusUnprocessableEntity, err)
}

// Validation returns a VAL_001 error with a plain message.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

// ---- Action lifecycle (ACT) ----

func ErrActionNotFound(id string) *AppError {
	return New(CodeActionNotFound, fmt.Sprintf("action %s not found", id), http.StatusNotFound)
}

func ErrActionExpired(id string) *AppError {
	return New(CodeActionExpired, fmt.Sprintf("action %s has expired", id), http.StatusGone)
}

func ErrAlreadyDeciding(id string) *AppError {
	return New(CodeAlreadyDeciding, fmt.Sprintf("action %s is already being decided", id), http.StatusConflict)
}

func ErrDuplicateDecided(id string) *AppError {
	return New(CodeDuplicateDecided, fmt.Sprintf("action %s was already decided", id), http.StatusConflict)
}

// ---- Device identity (DEV / AUTH) ----

func ErrNoDeviceToken() *AppError {
	return New(CodeNoDeviceToken, "Device token not initialised", http.StatusServiceUnavailable)
}

func ErrInvalidToken() *AppError {
	return New(CodeInvalidToken, "Invalid device token", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimited, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}

func ErrStorage(err error) *AppError {
	return Wrap(CodeInternal, "Storage failure", http.StatusInternalServerError, err)
}
