// Package errors provides custom error types and error handling utilities
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents an application error with context
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Details    string `json:"details,omitempty"`
	Cause      error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common error codes
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeInvalidState        = "INVALID_STATE"
	ErrCodeInvalidTransition   = "INVALID_TRANSITION"
	ErrCodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	ErrCodeUsageExceeded       = "USAGE_EXCEEDED"
	ErrCodeImmutable           = "IMMUTABLE"
	ErrCodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// Pre-defined errors
var (
	ErrCouponNotFound = &AppError{
		Code:       ErrCodeNotFound,
		Message:    "Coupon not found",
		StatusCode: http.StatusNotFound,
	}

	ErrCouponInactive = &AppError{
		Code:       ErrCodeInvalidState,
		Message:    "Coupon is not active",
		StatusCode: http.StatusConflict,
	}

	ErrCouponExpired = &AppError{
		Code:       ErrCodeInvalidState,
		Message:    "Coupon is outside its validity window",
		StatusCode: http.StatusConflict,
	}

	ErrUsageExceeded = &AppError{
		Code:       ErrCodeUsageExceeded,
		Message:    "Coupon usage limit reached",
		StatusCode: http.StatusConflict,
	}

	ErrPlanNotFound = &AppError{
		Code:       ErrCodeNotFound,
		Message:    "Insurance plan not found",
		StatusCode: http.StatusNotFound,
	}

	ErrPlanExpired = &AppError{
		Code:       ErrCodeInvalidState,
		Message:    "Insurance plan has expired",
		StatusCode: http.StatusConflict,
	}

	ErrPlanInactive = &AppError{
		Code:       ErrCodeInvalidState,
		Message:    "Insurance plan is not active",
		StatusCode: http.StatusConflict,
	}

	ErrClaimNotFound = &AppError{
		Code:       ErrCodeNotFound,
		Message:    "Claim not found",
		StatusCode: http.StatusNotFound,
	}

	ErrClaimAlreadyDecided = &AppError{
		Code:       ErrCodeInvalidState,
		Message:    "Claim has already been decided",
		StatusCode: http.StatusConflict,
	}

	ErrInsufficientBalance = &AppError{
		Code:       ErrCodeInsufficientBalance,
		Message:    "Insufficient plan balance",
		StatusCode: http.StatusConflict,
	}

	ErrPaymentNotFound = &AppError{
		Code:       ErrCodeNotFound,
		Message:    "Payment not found",
		StatusCode: http.StatusNotFound,
	}

	ErrTransactionNotFound = &AppError{
		Code:       ErrCodeNotFound,
		Message:    "Transaction not found",
		StatusCode: http.StatusNotFound,
	}

	ErrInvalidTransition = &AppError{
		Code:       ErrCodeInvalidTransition,
		Message:    "Transaction status transition is not allowed",
		StatusCode: http.StatusConflict,
	}

	ErrInvoiceNotFound = &AppError{
		Code:       ErrCodeNotFound,
		Message:    "Invoice not found",
		StatusCode: http.StatusNotFound,
	}

	ErrInvoiceImmutable = &AppError{
		Code:       ErrCodeImmutable,
		Message:    "Invoice is paid and can no longer be modified",
		StatusCode: http.StatusConflict,
	}

	ErrUnsettledTransaction = &AppError{
		Code:       ErrCodeInvalidState,
		Message:    "Referenced transaction has not completed",
		StatusCode: http.StatusConflict,
	}

	ErrInternalError = &AppError{
		Code:       ErrCodeInternalError,
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// NewAppError creates a new application error
func NewAppError(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// NewAppErrorWithCause creates a new application error with a cause
func NewAppErrorWithCause(code, message string, statusCode int, cause error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Code:       ErrCodeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// NewInvalidStateError creates an error for an operation attempted in the wrong lifecycle stage
func NewInvalidStateError(message string) *AppError {
	return &AppError{
		Code:       ErrCodeInvalidState,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewConcurrencyError creates a concurrency conflict error
func NewConcurrencyError(message string) *AppError {
	return &AppError{
		Code:       ErrCodeConcurrencyConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err is an AppError carrying the given code
func IsCode(err error, code string) bool {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// GetStatusCode returns the HTTP status code for an error
func GetStatusCode(err error) int {
	if appErr, ok := IsAppError(err); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// ErrorResponse represents an error response structure
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details in the response
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ToErrorResponse converts an error to an error response
func ToErrorResponse(err error) ErrorResponse {
	if appErr, ok := IsAppError(err); ok {
		return ErrorResponse{
			Error: ErrorDetail{
				Code:    appErr.Code,
				Message: appErr.Message,
				Details: appErr.Details,
			},
		}
	}

	return ErrorResponse{
		Error: ErrorDetail{
			Code:    ErrCodeInternalError,
			Message: "Internal server error",
		},
	}
}
