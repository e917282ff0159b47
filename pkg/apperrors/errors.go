package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrNotPending      = errors.New("suggestion is not pending")
	ErrBudgetExhausted = errors.New("evidence call budget exhausted")
)

// ValidationError reports a construction-time constraint violation.
// Values that fail validation are rejected before anything is persisted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// DecodeError reports a malformed field encountered while hydrating a model
// from its flat record form.
type DecodeError struct {
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode field %s: %s", e.Field, e.Reason)
}

// NewDecodeError creates a DecodeError for the given field.
func NewDecodeError(field, reason string) *DecodeError {
	return &DecodeError{Field: field, Reason: reason}
}
