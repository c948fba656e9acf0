package studycache

import (
	"context"

	"github.com/meigma/studycache/internal/eviction"
	"github.com/meigma/studycache/internal/settype"
)

// SetRecord is the metadata of one locally cached study set.
type SetRecord = settype.Record

// StorageStats is a point-in-time view of cache usage.
type StorageStats struct {
	TotalBytes uint64
	TotalSets  uint64
	TotalItems uint64

	// BudgetMB is the effective budget, recomputed from a fresh
	// free-space reading.
	BudgetMB uint32
	// Usage is TotalBytes as a fraction of the budget. It exceeds 1 when
	// pinned or archived sets alone are larger than the budget.
	Usage float64

	FreeSpaceGB float64
	// FreeSpaceKnown is false when free space could not be read.
	FreeSpaceKnown bool

	// Warning reports whether Usage has reached the warning watermark.
	Warning bool
}

// EvictionReport describes what a write evicted to stay within limits.
type EvictionReport struct {
	// Evicted holds the removed sets, least recently used first.
	Evicted []SetRecord
	// Batches is the number of eviction batches run.
	Batches int
	// BudgetMB is the budget the write was checked against.
	BudgetMB uint32

	// OverBudget, OverSetLimit and OverItemLimit report limits still
	// breached after every evictable set was considered.
	OverBudget    bool
	OverSetLimit  bool
	OverItemLimit bool
}

// OverLimit reports whether any limit is still breached.
func (r EvictionReport) OverLimit() bool {
	return r.OverBudget || r.OverSetLimit || r.OverItemLimit
}

func reportFrom(res eviction.Result) EvictionReport {
	return EvictionReport{
		Evicted:       res.Evicted,
		Batches:       res.Batches,
		BudgetMB:      res.BudgetMB,
		OverBudget:    res.Remaining.Bytes,
		OverSetLimit:  res.Remaining.Sets,
		OverItemLimit: res.Remaining.Items,
	}
}

// Store persists snapshots of the cached set metadata.
//
// The in-memory state is authoritative during a session: Load is called
// once at startup and Save after every successful write.
// Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the last saved snapshot, or an empty slice if none exists.
	Load(ctx context.Context) ([]SetRecord, error)

	// Save replaces the stored snapshot.
	Save(ctx context.Context, sets []SetRecord) error
}
