package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the engine.
var (
	// ErrNotFound reports that a raw file or chunk set does not exist.
	// Callers map it to a 404; it is not logged as an error.
	ErrNotFound = errors.New("not found")

	// ErrInvalidPrompt reports an empty or unusable query prompt.
	ErrInvalidPrompt = errors.New("invalid prompt")

	// ErrInvalidFilename reports a filename that cannot be used as a
	// source key.
	ErrInvalidFilename = errors.New("invalid filename")
)

// ValidationError wraps a sentinel with the offending field and value.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
