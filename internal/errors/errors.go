// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies a failure
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation_error"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeError      ErrorType = "processing_error"
	ErrorTypeNetwork    ErrorType = "network_error"
	ErrorTypeMalformed  ErrorType = "malformed_response"
	ErrorTypeUpstream   ErrorType = "upstream_error"
	ErrorTypeTimeout    ErrorType = "timeout"
)

// AppError is the application error carried across package boundaries
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string
	// StatusCode is the backend HTTP status for upstream errors, 0 otherwise
	StatusCode int
}

// Error implements error
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewNotFoundError creates a not-found error
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewProcessingError creates a processing error
func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

// NewNetworkError creates an error for a request that never got a response
func NewNetworkError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNetwork, message, originalError)
}

// NewMalformedError creates an error for a response with an unusable shape
func NewMalformedError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeMalformed, message, originalError)
}

// NewUpstreamError creates an error for a non-2xx backend status
func NewUpstreamError(statusCode int, message string, originalError error) *AppError {
	err := NewAppError(ErrorTypeUpstream, message, originalError)
	err.StatusCode = statusCode
	return err
}

// TypeOf returns the type of the first AppError in the chain, or ErrorTypeError
func TypeOf(err error) ErrorType {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type
	}
	return ErrorTypeError
}

// IsValidationError reports whether err is a validation error
func IsValidationError(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeValidation
}

// IsNotFoundError reports whether err is a not-found error
func IsNotFoundError(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeNotFound
}

// IsNetworkError reports whether err is a network error
func IsNetworkError(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeNetwork
}

// IsMalformedError reports whether err is a malformed response error
func IsMalformedError(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeMalformed
}

// IsUpstreamError reports whether err is a backend status error
func IsUpstreamError(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeUpstream
}

// generateErrorCode maps an error type to its public code
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	case ErrorTypeNetwork:
		return "NETWORK_ERROR"
	case ErrorTypeMalformed:
		return "MALFORMED_RESPONSE"
	case ErrorTypeUpstream:
		return "UPSTREAM_ERROR"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError adds context to err while keeping its type
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		return &AppError{
			Type:       appError.Type,
			Message:    fmt.Sprintf("%s: %s", message, appError.Message),
			Err:        appError,
			Code:       appError.Code,
			StatusCode: appError.StatusCode,
		}
	}

	return NewAppError(errType, message, err)
}
