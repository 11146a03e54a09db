// Package apperror provides structured error handling for the valuation service.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes grouped by concern
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"
	CodeTimeout  = "TIMEOUT_ERROR"

	// Validation errors (400)
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidInput = "INVALID_INPUT"

	// Valuation failures (422, 502)
	CodeSnapshotMissing     = "STOCK_SNAPSHOT_MISSING"
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	CodeRateUnresolved      = "EXCHANGE_RATE_UNRESOLVED"
	CodeDataQuality         = "DATA_QUALITY"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"
)

// AppError is the standard error type for the service.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (currencies, SKU keys, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewSnapshotMissing is returned when the on-hand stock snapshot cannot be
// fetched. There is no well-defined valuation without it, so the whole run
// fails with this error.
func NewSnapshotMissing(companyID string, cause error) *AppError {
	return &AppError{
		Code:       CodeSnapshotMissing,
		Message:    "stock snapshot unavailable, valuation aborted",
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"company_id": companyID},
		Err:        cause,
	}
}

// NewProviderUnavailable wraps an upstream feed failure. Callers decide whether
// this degrades a single source or aborts the run.
func NewProviderUnavailable(provider string, cause error) *AppError {
	return &AppError{
		Code:       CodeProviderUnavailable,
		Message:    fmt.Sprintf("provider %s unavailable", provider),
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"provider": provider},
		Err:        cause,
	}
}

// NewRateUnresolved is returned when no exchange-rate observation exists at or
// before the requested date and the upstream fetch produced nothing either.
func NewRateUnresolved(currency string, date string) *AppError {
	return &AppError{
		Code:       CodeRateUnresolved,
		Message:    "no exchange rate observation at or before requested date",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"currency": currency, "date": date},
	}
}

// NewDataQuality surfaces a data inconsistency (e.g. size-key collisions)
// without auto-correcting it.
func NewDataQuality(message string) *AppError {
	return &AppError{
		Code:       CodeDataQuality,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeNotFound
	}
	return false
}

// IsSnapshotMissing checks if error is CodeSnapshotMissing
func IsSnapshotMissing(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeSnapshotMissing
	}
	return false
}
