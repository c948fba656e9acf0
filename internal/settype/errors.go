package settype

import (
	"errors"
	"fmt"
)

// Sentinel errors for studycache operations.
var (
	// ErrValidation is returned when a record has invalid fields.
	ErrValidation = errors.New("studycache: invalid set record")

	// ErrNotFound is returned when a set id is not in the registry.
	ErrNotFound = errors.New("studycache: set not found")

	// ErrInvalidConfig is returned when limits or options are inconsistent.
	ErrInvalidConfig = errors.New("studycache: invalid configuration")

	// ErrSnapshotCorrupt is returned when a persisted snapshot fails
	// digest verification or cannot be decoded.
	ErrSnapshotCorrupt = errors.New("studycache: snapshot corrupt")
)

// ValidationError describes which field of a record was rejected.
type ValidationError struct {
	Field string
	Value any
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("studycache: invalid set record: %s = %v", e.Field, e.Value)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
