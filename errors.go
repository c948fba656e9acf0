package studycache

import "github.com/meigma/studycache/internal/settype"

// Errors re-exported from settype.
var (
	// ErrValidation is returned when a set record has negative sizes or an empty id.
	ErrValidation = settype.ErrValidation

	// ErrNotFound is returned when a set id is not cached.
	ErrNotFound = settype.ErrNotFound

	// ErrInvalidConfig is returned when limits or options are inconsistent.
	ErrInvalidConfig = settype.ErrInvalidConfig

	// ErrSnapshotCorrupt is returned when a persisted snapshot cannot be trusted.
	ErrSnapshotCorrupt = settype.ErrSnapshotCorrupt
)

// ValidationError describes which field of a set record was rejected.
type ValidationError = settype.ValidationError
