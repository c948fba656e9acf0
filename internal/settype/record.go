// Package settype holds the types shared by the registry, the eviction
// policy and the public studycache package.
package settype

import "time"

// Record is the metadata of one locally cached study set.
//
// Bytes and Items are signed so that invalid input can be rejected
// instead of wrapping around; a Record stored in a registry always has
// both fields >= 0.
type Record struct {
	ID    string
	Title string

	// Bytes is the size of the set on local storage.
	Bytes int64
	// Items is the number of cards or questions in the set.
	Items int64

	// Pinned marks a set the user never wants evicted automatically.
	Pinned bool
	// Archived marks a set that is backed up long term and is never
	// evicted locally. Independent of Pinned.
	Archived bool

	LastOpenedAt time.Time
	LastStudied  time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Protected reports whether the record is exempt from automatic eviction.
func (r Record) Protected() bool {
	return r.Pinned || r.Archived
}

// Validate checks the fields the registry aggregates depend on.
func (r Record) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Value: r.ID}
	}
	if r.Bytes < 0 {
		return &ValidationError{Field: "bytes", Value: r.Bytes}
	}
	if r.Items < 0 {
		return &ValidationError{Field: "items", Value: r.Items}
	}
	return nil
}

// LessRecent reports whether a was used less recently than b.
//
// Records are ordered by LastOpenedAt, then LastStudied, then CreatedAt,
// all ascending. ID is the final tiebreaker so the order is total.
func LessRecent(a, b Record) bool {
	if !a.LastOpenedAt.Equal(b.LastOpenedAt) {
		return a.LastOpenedAt.Before(b.LastOpenedAt)
	}
	if !a.LastStudied.Equal(b.LastStudied) {
		return a.LastStudied.Before(b.LastStudied)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
