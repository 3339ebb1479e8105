// Package util provides shared utility types for the security gateway.
//
// # Error Conventions
//
// This project follows a standardized error pattern across all packages:
//
//   - Sentinel errors (errors.New) for well-known, stable conditions
//     that callers check with errors.Is(). Example: ErrRateLimited.
//   - Structured error types for context-rich errors that carry
//     additional fields (e.g., ValidationError). Each type implements
//     Error(), Unwrap() (if wrapping), and Is().
//   - fmt.Errorf with %w for ad-hoc wrapping that adds context to an
//     existing error without introducing a new type.
package util

import (
	"errors"
	"fmt"
)

// Common sentinel errors.
var (
	// ErrRateLimited indicates the request exceeded its rate limit.
	// Retryable after the reported retry-after interval.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrCSRFInvalid indicates a missing, mismatched or expired CSRF token.
	// Terminal for the request; the client must re-fetch a token.
	ErrCSRFInvalid = errors.New("invalid csrf token")

	// ErrThreatDetected indicates a threat signature matched the request.
	// Terminal; never retried automatically.
	ErrThreatDetected = errors.New("threat detected")

	// ErrNotFound indicates the requested record does not exist or is not
	// owned by the caller.
	ErrNotFound = errors.New("not found")

	// ErrInvalidAddress indicates an IP address failed validation.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrDuplicateEntry indicates a uniqueness constraint violation.
	ErrDuplicateEntry = errors.New("duplicate entry")

	// ErrSystem indicates an unexpected internal fault. The gateway fails
	// closed on this class of error.
	ErrSystem = errors.New("internal error")
)

// ValidationError represents a validation failure with per-field detail.
type ValidationError struct {
	Fields  map[string]string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s (fields: %v)", e.Message, e.Fields)
}

// Is checks if the error matches the target.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message, Fields: make(map[string]string)}
}

// AddField adds a field error.
func (e *ValidationError) AddField(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
}
