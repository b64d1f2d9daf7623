package mono

import (
	"errors"
	"fmt"
)

// ErrorCategory is the normalized failure taxonomy for Mono calls.
type ErrorCategory string

const (
	// ErrorTimeout indicates Mono took too long to respond
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadData indicates Mono returned a body we could not decode
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorAuthentication indicates the secret key was refused
	ErrorAuthentication ErrorCategory = "authentication"

	// ErrorProviderOutage indicates Mono is unavailable (5xx or transport failure)
	ErrorProviderOutage ErrorCategory = "provider_outage"

	// ErrorNotFound indicates the reference is unknown to Mono
	ErrorNotFound ErrorCategory = "not_found"

	// ErrorRateLimited indicates too many requests
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorRejected indicates Mono understood the request and refused it
	// (status "failed" or a 4xx with a message)
	ErrorRejected ErrorCategory = "rejected"

	// ErrorInternal indicates an unexpected local error
	ErrorInternal ErrorCategory = "internal"
)

// ProviderError wraps Mono failures with a normalized category. Message is the
// provider's own message when it sent one.
type ProviderError struct {
	Category   ErrorCategory
	StatusCode int
	Message    string
	Underlying error
	Retryable  bool
}

func (e *ProviderError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("mono [%s]: %s: %v", e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("mono [%s]: %s", e.Category, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Underlying
}

// NewProviderError creates a normalized provider error. Retryable is advisory;
// this service never retries provider calls itself.
func NewProviderError(category ErrorCategory, statusCode int, message string, underlying error) *ProviderError {
	retryable := category == ErrorTimeout ||
		category == ErrorProviderOutage ||
		category == ErrorRateLimited

	return &ProviderError{
		Category:   category,
		StatusCode: statusCode,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryable,
	}
}

// GetCategory extracts the error category from an error.
func GetCategory(err error) ErrorCategory {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ErrorInternal
}
