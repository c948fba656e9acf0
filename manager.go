package studycache

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/meigma/studycache/budget"
	"github.com/meigma/studycache/internal/eviction"
	"github.com/meigma/studycache/internal/registry"
	"github.com/meigma/studycache/internal/settype"
	"github.com/meigma/studycache/policy"
)

// Manager owns the metadata of every locally cached set and keeps the
// cache within its limits.
//
// Construct one Manager per cache and share it by reference.
type Manager struct {
	mu  sync.RWMutex
	reg *registry.Registry

	limits    policy.Limits
	freeSpace budget.FreeSpaceReader
	store     Store
	now       func() time.Time
	logger    *slog.Logger

	budget  *budget.Calculator
	evictor *eviction.Evictor
}

// New creates an empty Manager. Call Load to restore a saved snapshot.
func New(opts ...Option) (*Manager, error) {
	m := &Manager{
		reg:    registry.New(),
		limits: policy.Default(),
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(m)
	}
	if err := m.limits.Validate(); err != nil {
		return nil, err
	}
	if m.now == nil {
		return nil, fmt.Errorf("%w: clock is nil", ErrInvalidConfig)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}

	m.budget = budget.NewCalculator(m.limits, m.freeSpace, budget.WithLogger(m.logger))
	m.evictor = eviction.New(m.limits, eviction.WithLogger(m.logger))
	return m, nil
}

// Limits returns the limits the manager enforces.
func (m *Manager) Limits() policy.Limits {
	return m.limits
}

// Load replaces the in-memory state with the store's snapshot.
//
// Records that fail validation are skipped. Loading never evicts; the
// next write enforces the limits.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	sets, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.reg.Clear()
	for _, rec := range sets {
		if err := rec.Validate(); err != nil {
			m.logger.WarnContext(ctx, "skipping invalid set in snapshot",
				slog.String("set_id", rec.ID),
				slog.Any("error", err))
			continue
		}
		m.reg.Upsert(rec)
	}
	totals := m.reg.Totals()
	m.logger.InfoContext(ctx, "snapshot loaded",
		slog.Int("sets", totals.Sets),
		slog.Int64("bytes", totals.Bytes),
		slog.Int64("items", totals.Items))
	return nil
}

// AddOrUpdateSet inserts rec, or replaces the cached set with the same ID,
// then evicts other sets as needed to restore the limits.
//
// The write stamps LastOpenedAt and UpdatedAt with the current time.
// CreatedAt is kept from the replaced record when rec leaves it zero, and
// defaults to the current time for new sets. The written set is never
// evicted by its own write.
//
// Records with an empty ID or negative Bytes or Items are rejected with a
// *ValidationError before any state changes.
func (m *Manager) AddOrUpdateSet(ctx context.Context, rec SetRecord) (EvictionReport, error) {
	if err := rec.Validate(); err != nil {
		return EvictionReport{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if rec.CreatedAt.IsZero() {
		if old, ok := m.reg.Get(rec.ID); ok {
			rec.CreatedAt = old.CreatedAt
		} else {
			rec.CreatedAt = now
		}
	}
	rec.LastOpenedAt = now
	rec.UpdatedAt = now
	m.reg.Upsert(rec)

	reading := m.budget.Current(ctx)
	res := m.evictor.Enforce(m.reg, reading.BudgetMB, rec.ID)
	if len(res.Evicted) > 0 {
		m.logger.InfoContext(ctx, "evicted sets",
			slog.String("trigger", rec.ID),
			slog.Int("count", len(res.Evicted)),
			slog.String("ids", joinIDs(res.Evicted)),
			slog.Uint64("budget_mb", uint64(reading.BudgetMB)))
	}

	m.persist(ctx)
	return reportFrom(res), nil
}

// TogglePin flips the pin of the set with id and returns the new value.
//
// Pinning never evicts. Unpinning makes the set a candidate again from
// the next write onward.
func (m *Manager) TogglePin(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.reg.Get(id)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	rec.Pinned = !rec.Pinned
	rec.UpdatedAt = m.now()
	m.reg.Upsert(rec)

	m.persist(ctx)
	return rec.Pinned, nil
}

// ArchiveSet marks the set with id as archived, exempting it from
// eviction. Archiving an archived set is a no-op.
func (m *Manager) ArchiveSet(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.reg.Get(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if rec.Archived {
		return nil
	}
	rec.Archived = true
	rec.UpdatedAt = m.now()
	m.reg.Upsert(rec)

	m.persist(ctx)
	return nil
}

// ClearAll removes every cached set. It is idempotent.
func (m *Manager) ClearAll(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reg.Clear()
	m.persist(ctx)
}

// Stats returns the current totals together with a freshly computed
// effective budget.
func (m *Manager) Stats(ctx context.Context) StorageStats {
	m.mu.RLock()
	totals := m.reg.Totals()
	m.mu.RUnlock()

	reading := m.budget.Current(ctx)
	usage := policy.Usage(totals.Bytes, reading.BudgetMB)
	return StorageStats{
		TotalBytes:     uint64(totals.Bytes), //nolint:gosec // registry totals are never negative
		TotalSets:      uint64(totals.Sets),  //nolint:gosec // length is never negative
		TotalItems:     uint64(totals.Items), //nolint:gosec // registry totals are never negative
		BudgetMB:       reading.BudgetMB,
		Usage:          usage,
		FreeSpaceGB:    reading.FreeSpaceGB,
		FreeSpaceKnown: reading.Known,
		Warning:        m.limits.IsWarning(usage),
	}
}

// IsStorageWarning reports whether usage has reached the warning watermark.
func (m *Manager) IsStorageWarning(ctx context.Context) bool {
	return m.Stats(ctx).Warning
}

// Get returns the cached set with id.
func (m *Manager) Get(id string) (SetRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reg.Get(id)
}

// Sets returns a copy of every cached set, ordered by ID.
func (m *Manager) Sets() []SetRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// StaleSets returns the unpinned, unarchived sets not opened within the
// stale window, least recently used first.
func (m *Manager) StaleSets() []SetRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.evictor.Stale(m.reg, m.now())
}

// ExpireStale removes every set StaleSets would return and returns them.
// It runs only when called; nothing schedules it.
func (m *Manager) ExpireStale(ctx context.Context) []SetRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := m.evictor.ExpireStale(m.reg, m.now())
	if len(removed) > 0 {
		m.logger.InfoContext(ctx, "expired stale sets",
			slog.Int("count", len(removed)),
			slog.String("ids", joinIDs(removed)))
		m.persist(ctx)
	}
	return removed
}

func (m *Manager) snapshotLocked() []SetRecord {
	out := make([]SetRecord, 0, m.reg.Len())
	for rec := range m.reg.All() {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b settype.Record) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// persist saves a snapshot. Failures are logged; the in-memory state
// stays authoritative.
func (m *Manager) persist(ctx context.Context) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, m.snapshotLocked()); err != nil {
		m.logger.WarnContext(ctx, "snapshot save failed", slog.Any("error", err))
	}
}

func joinIDs(recs []SetRecord) string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return strings.Join(ids, ",")
}
