package evidence

import (
	"fmt"
	"strings"
)

// ErrorType classifies provider failures.
type ErrorType string

const (
	ErrorTypeTimeout         ErrorType = "timeout"
	ErrorTypeRateLimit       ErrorType = "rate_limit"
	ErrorTypeAuth            ErrorType = "auth"
	ErrorTypeInvalidResponse ErrorType = "invalid_response"
	ErrorTypeUnavailable     ErrorType = "unavailable"
	ErrorTypeUnknown         ErrorType = "unknown"
)

// Error is a structured evidence-provider error with classification.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
	Model      string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	parts = append(parts, e.Message)
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface so the retry
// package can check retryability without importing evidence.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a structured provider error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// classifyMessage maps a raw provider error string to a typed error.
// Transport-level and throttling failures are retryable; auth and malformed
// responses are not.
func classifyMessage(msg string, cause error, model string) *Error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "context deadline exceeded"), strings.Contains(lower, "timeout"):
		return &Error{Type: ErrorTypeTimeout, Message: "provider call timed out", Retryable: true, Cause: cause, Model: model}
	case strings.Contains(lower, "429"), strings.Contains(lower, "rate limit"):
		return &Error{Type: ErrorTypeRateLimit, Message: "provider rate limit hit", Retryable: true, Cause: cause, Model: model}
	case strings.Contains(lower, "401"), strings.Contains(lower, "403"), strings.Contains(lower, "api key"):
		return &Error{Type: ErrorTypeAuth, Message: "provider rejected credentials", Retryable: false, Cause: cause, Model: model}
	case strings.Contains(lower, "connection refused"), strings.Contains(lower, "503"), strings.Contains(lower, "502"):
		return &Error{Type: ErrorTypeUnavailable, Message: "provider unavailable", Retryable: true, Cause: cause, Model: model}
	default:
		return &Error{Type: ErrorTypeUnknown, Message: msg, Retryable: false, Cause: cause, Model: model}
	}
}
