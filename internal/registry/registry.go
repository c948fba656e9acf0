// Package registry indexes the locally cached set records and keeps
// running totals of their bytes, items and count.
//
// Totals are maintained by delta on every mutation and never recomputed
// by scanning. A Registry is not safe for concurrent use; its owner
// serializes access.
package registry

import (
	"iter"
	"maps"

	"github.com/meigma/studycache/internal/settype"
)

// Totals are the running aggregates of a registry.
type Totals struct {
	Bytes int64
	Items int64
	Sets  int
}

// Registry is the in-memory index of cached set records.
type Registry struct {
	records map[string]settype.Record
	bytes   int64
	items   int64
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{records: make(map[string]settype.Record)}
}

// Upsert inserts rec or replaces the record with the same ID, adjusting
// totals by the difference. It returns the replaced record, if any.
func (r *Registry) Upsert(rec settype.Record) (settype.Record, bool) {
	old, existed := r.records[rec.ID]
	if existed {
		r.bytes -= old.Bytes
		r.items -= old.Items
	}
	r.records[rec.ID] = rec
	r.bytes += rec.Bytes
	r.items += rec.Items
	return old, existed
}

// Remove deletes the record with id and subtracts it from the totals.
func (r *Registry) Remove(id string) (settype.Record, bool) {
	old, ok := r.records[id]
	if !ok {
		return settype.Record{}, false
	}
	delete(r.records, id)
	r.bytes -= old.Bytes
	r.items -= old.Items
	return old, true
}

// Get returns the record with id.
func (r *Registry) Get(id string) (settype.Record, bool) {
	rec, ok := r.records[id]
	return rec, ok
}

// All iterates over every record in unspecified order.
// The registry must not be mutated during iteration.
func (r *Registry) All() iter.Seq[settype.Record] {
	return maps.Values(r.records)
}

// Len returns the number of records.
func (r *Registry) Len() int {
	return len(r.records)
}

// Totals returns the running aggregates.
func (r *Registry) Totals() Totals {
	return Totals{Bytes: r.bytes, Items: r.items, Sets: len(r.records)}
}

// Clear removes every record and resets the totals to zero.
func (r *Registry) Clear() {
	clear(r.records)
	r.bytes = 0
	r.items = 0
}
