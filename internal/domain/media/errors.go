package media

import (
	"errors"
	"fmt"
)

var (
	// ErrItemNotFound is returned when the server does not know an item
	ErrItemNotFound = errors.New("item not found")

	// ErrSourceNotFound is returned when a requested media source is not part of an item
	ErrSourceNotFound = errors.New("media source not found")

	// ErrInvalidItem is returned when an item snapshot is missing required fields
	ErrInvalidItem = errors.New("invalid media item")

	// ErrNoTrickplay is returned when an item carries no trickplay metadata
	ErrNoTrickplay = errors.New("item has no trickplay metadata")
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap lets callers match any validation failure with ErrInvalidItem.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidItem
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
