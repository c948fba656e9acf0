// Package eviction selects and removes least-recently-used set records
// until the registry is back within its limits.
//
// Pinned and archived records are never candidates. Candidates are
// ordered by LastOpenedAt, then LastStudied, then CreatedAt, oldest first,
// and removed in bounded batches. Running out of candidates while a limit
// is still breached is a normal outcome, not an error.
package eviction

import (
	"log/slog"
	"slices"
	"time"

	"github.com/meigma/studycache/internal/registry"
	"github.com/meigma/studycache/internal/settype"
	"github.com/meigma/studycache/policy"
)

// Breach records which limits a registry exceeds.
type Breach struct {
	Bytes bool
	Sets  bool
	Items bool
}

// Any reports whether any limit is breached.
func (b Breach) Any() bool {
	return b.Bytes || b.Sets || b.Items
}

// Result describes one eviction pass.
type Result struct {
	// Evicted holds the removed records in eviction order.
	Evicted []settype.Record
	// Batches is the number of batches run.
	Batches int
	// BudgetMB is the budget the pass enforced.
	BudgetMB uint32
	// Remaining is the breach state after the pass.
	Remaining Breach
}

// Evictor enforces a set of limits against a registry.
type Evictor struct {
	limits policy.Limits
	logger *slog.Logger
}

// Option configures an Evictor.
type Option func(*Evictor)

// WithLogger sets the logger used for batch and overage reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evictor) {
		e.logger = logger
	}
}

// New returns an Evictor for limits.
func New(limits policy.Limits, opts ...Option) *Evictor {
	e := &Evictor{
		limits: limits,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Check returns the limits that totals breach under budgetMB.
func (e *Evictor) Check(t registry.Totals, budgetMB uint32) Breach {
	return Breach{
		Bytes: e.limits.OverBudget(t.Bytes, budgetMB),
		Sets:  e.limits.OverSetLimit(t.Sets),
		Items: e.limits.OverItemLimit(t.Items),
	}
}

// Candidates returns every unprotected record except keep, least recently
// used first.
func Candidates(reg *registry.Registry, keep string) []settype.Record {
	out := make([]settype.Record, 0, reg.Len())
	for rec := range reg.All() {
		if rec.Protected() || rec.ID == keep {
			continue
		}
		out = append(out, rec)
	}
	sortLRU(out)
	return out
}

// Enforce evicts candidates from reg until no limit is breached under
// budgetMB or no candidates remain. The record with ID keep is never
// evicted; pass "" to consider every unprotected record.
//
// Candidates are removed one batch at a time. Within a batch the pass
// stops as soon as all limits are satisfied.
func (e *Evictor) Enforce(reg *registry.Registry, budgetMB uint32, keep string) Result {
	res := Result{BudgetMB: budgetMB}
	res.Remaining = e.Check(reg.Totals(), budgetMB)
	if !res.Remaining.Any() {
		return res
	}

	candidates := Candidates(reg, keep)
	for start := 0; start < len(candidates) && res.Remaining.Any(); start += e.limits.EvictBatch {
		end := min(start+e.limits.EvictBatch, len(candidates))
		removed := e.evictBatch(reg, candidates[start:end], budgetMB, &res)
		res.Batches++
		totals := reg.Totals()
		e.logger.Debug("eviction batch",
			slog.Int("batch", res.Batches),
			slog.Int("removed", removed),
			slog.Int64("bytes", totals.Bytes),
			slog.Int("sets", totals.Sets),
			slog.Int64("items", totals.Items),
			slog.Uint64("budget_mb", uint64(budgetMB)))
	}

	if res.Remaining.Any() {
		totals := reg.Totals()
		e.logger.Warn("cache over limits with no evictable sets left",
			slog.Int64("bytes", totals.Bytes),
			slog.Int("sets", totals.Sets),
			slog.Int64("items", totals.Items),
			slog.Uint64("budget_mb", uint64(budgetMB)),
			slog.Bool("over_bytes", res.Remaining.Bytes),
			slog.Bool("over_sets", res.Remaining.Sets),
			slog.Bool("over_items", res.Remaining.Items))
	}
	return res
}

func (e *Evictor) evictBatch(reg *registry.Registry, batch []settype.Record, budgetMB uint32, res *Result) int {
	removed := 0
	for _, cand := range batch {
		rec, ok := reg.Remove(cand.ID)
		if !ok {
			continue
		}
		res.Evicted = append(res.Evicted, rec)
		removed++
		res.Remaining = e.Check(reg.Totals(), budgetMB)
		if !res.Remaining.Any() {
			break
		}
	}
	return removed
}

// Stale returns the unprotected records not opened within StaleAfter of
// now, least recently used first.
func (e *Evictor) Stale(reg *registry.Registry, now time.Time) []settype.Record {
	var out []settype.Record
	for rec := range reg.All() {
		if rec.Protected() || !e.limits.IsStale(rec.LastOpenedAt, now) {
			continue
		}
		out = append(out, rec)
	}
	sortLRU(out)
	return out
}

// ExpireStale removes every record Stale would return.
func (e *Evictor) ExpireStale(reg *registry.Registry, now time.Time) []settype.Record {
	stale := e.Stale(reg, now)
	for _, rec := range stale {
		reg.Remove(rec.ID)
	}
	if len(stale) > 0 {
		e.logger.Debug("expired stale sets", slog.Int("removed", len(stale)))
	}
	return stale
}

func sortLRU(recs []settype.Record) {
	slices.SortFunc(recs, func(a, b settype.Record) int {
		switch {
		case settype.LessRecent(a, b):
			return -1
		case settype.LessRecent(b, a):
			return 1
		}
		return 0
	})
}
