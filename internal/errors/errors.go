// Package errors provides custom error types for the cryptosim API.
// All service-layer errors should use AppError to ensure consistent,
// secure error responses that never leak internal details to clients.
package errors

import "net/http"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// Authentication & authorization errors.
var (
	ErrUnauthorized       = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrInvalidCredentials = &AppError{Code: "INVALID_CREDENTIALS", Message: "Invalid email or password", StatusCode: http.StatusUnauthorized}
	ErrForbidden          = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// User errors.
var (
	ErrUserNotFound   = &AppError{Code: "USER_NOT_FOUND", Message: "User not found", StatusCode: http.StatusNotFound}
	ErrDuplicateEmail = &AppError{Code: "DUPLICATE_EMAIL", Message: "A user with this email already exists", StatusCode: http.StatusConflict}
)

// Ledger errors. ErrContextNotFound is repaired internally on most paths by
// lazy-initializing a default account; it surfaces only where creating one
// would be wrong, such as reading a context the caller does not own.
var (
	ErrInsufficientBalance  = &AppError{Code: "INSUFFICIENT_BALANCE", Message: "Insufficient USDT balance for this trade", StatusCode: http.StatusBadRequest}
	ErrInsufficientHoldings = &AppError{Code: "INSUFFICIENT_HOLDINGS", Message: "Sell quantity exceeds held amount", StatusCode: http.StatusBadRequest}
	ErrContextNotFound      = &AppError{Code: "CONTEXT_NOT_FOUND", Message: "Trading context not found", StatusCode: http.StatusNotFound}
	ErrStoreConflict        = &AppError{Code: "STORE_CONFLICT", Message: "Concurrent write detected, please retry", StatusCode: http.StatusConflict}
	ErrTransactionNotFound  = &AppError{Code: "TRANSACTION_NOT_FOUND", Message: "Transaction not found", StatusCode: http.StatusNotFound}
)

// Market data errors.
var (
	ErrDataUnavailable = &AppError{Code: "DATA_UNAVAILABLE", Message: "Market data is currently unavailable", StatusCode: http.StatusServiceUnavailable}
	ErrRateLimited     = &AppError{Code: "RATE_LIMITED", Message: "Too many market data requests", StatusCode: http.StatusTooManyRequests}
)

// Collection errors.
var (
	ErrCollectionNotFound = &AppError{Code: "COLLECTION_NOT_FOUND", Message: "Collection not found", StatusCode: http.StatusNotFound}
	ErrAlreadyMember      = &AppError{Code: "ALREADY_MEMBER", Message: "User is already a member of this collection", StatusCode: http.StatusConflict}
	ErrNotMember          = &AppError{Code: "NOT_MEMBER", Message: "User is not a member of this collection", StatusCode: http.StatusForbidden}
	ErrInvalidInviteCode  = &AppError{Code: "INVALID_INVITE_CODE", Message: "Invalid invite code", StatusCode: http.StatusBadRequest}
)
