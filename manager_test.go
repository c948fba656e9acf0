package studycache

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/studycache/budget"
	"github.com/meigma/studycache/internal/testutil"
	"github.com/meigma/studycache/policy"
)

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, opts ...Option) (*Manager, *testutil.Clock) {
	t.Helper()

	clock := testutil.NewClock(start)
	m, err := New(append([]Option{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	return m, clock
}

// addSet writes a set of mb megabytes one minute after the previous write.
func addSet(t *testing.T, m *Manager, clock *testutil.Clock, id string, mb float64) EvictionReport {
	t.Helper()

	clock.Advance(time.Minute)
	report, err := m.AddOrUpdateSet(context.Background(), SetRecord{
		ID:    id,
		Title: "Set " + id,
		Bytes: int64(mb * float64(policy.MB)),
		Items: 20,
	})
	require.NoError(t, err)
	return report
}

func setIDs(recs []SetRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

// requireConsistent checks the reported totals against the cached sets.
func requireConsistent(t *testing.T, m *Manager) {
	t.Helper()

	var bytes, items uint64
	sets := m.Sets()
	for _, s := range sets {
		bytes += uint64(s.Bytes) //nolint:gosec // test data is non-negative
		items += uint64(s.Items) //nolint:gosec // test data is non-negative
	}
	stats := m.Stats(context.Background())
	require.Equal(t, bytes, stats.TotalBytes)
	require.Equal(t, items, stats.TotalItems)
	require.Equal(t, uint64(len(sets)), stats.TotalSets)
}

func TestNewRejectsInvalidLimits(t *testing.T) {
	t.Parallel()

	l := policy.Default()
	l.EvictBatch = 0
	_, err := New(WithLimits(l))
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(WithClock(nil))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestAddEvictsOldestUntilWithinBudget(t *testing.T) {
	t.Parallel()

	m, clock := newTestManager(t)
	var reports []EvictionReport
	for i := range 30 {
		reports = append(reports, addSet(t, m, clock, fmt.Sprintf("s%02d", i), 10))
	}

	for i := range 25 {
		assert.Empty(t, reports[i].Evicted, "write %d", i)
	}
	assert.Equal(t, []string{"s00"}, setIDs(reports[25].Evicted))
	assert.Equal(t, 1, reports[25].Batches)
	assert.False(t, reports[25].OverLimit())
	assert.Equal(t, []string{"s04"}, setIDs(reports[29].Evicted))

	stats := m.Stats(context.Background())
	assert.Equal(t, uint64(250*policy.MB), stats.TotalBytes)
	assert.Equal(t, uint64(25), stats.TotalSets)
	_, ok := m.Get("s05")
	assert.True(t, ok)
	_, ok = m.Get("s04")
	assert.False(t, ok)
	requireConsistent(t, m)
}

func TestPinnedSetSurvivesEviction(t *testing.T) {
	t.Parallel()

	m, clock := newTestManager(t)
	ctx := context.Background()

	addSet(t, m, clock, "pinned", 100)
	pinned, err := m.TogglePin(ctx, "pinned")
	require.NoError(t, err)
	require.True(t, pinned)

	for i := range 50 {
		addSet(t, m, clock, fmt.Sprintf("u%02d", i), 15)
	}

	_, ok := m.Get("pinned")
	assert.True(t, ok)
	stats := m.Stats(ctx)
	assert.LessOrEqual(t, stats.TotalBytes, uint64(250*policy.MB))
	assert.Equal(t, uint64(11), stats.TotalSets)
	requireConsistent(t, m)
}

func TestProtectedOverageIsTolerated(t *testing.T) {
	t.Parallel()

	m, clock := newTestManager(t)
	ctx := context.Background()

	addSet(t, m, clock, "huge", 300)
	_, err := m.TogglePin(ctx, "huge")
	require.NoError(t, err)

	addSet(t, m, clock, "a", 15)
	report := addSet(t, m, clock, "b", 15)

	assert.Equal(t, []string{"a"}, setIDs(report.Evicted))
	assert.True(t, report.OverBudget)
	assert.True(t, report.OverLimit())
	assert.Equal(t, []string{"b", "huge"}, setIDs(m.Sets()))

	stats := m.Stats(ctx)
	assert.Greater(t, stats.Usage, 1.0)
	assert.True(t, stats.Warning)
}

func TestWrittenSetIsNeverSelfEvicted(t *testing.T) {
	t.Parallel()

	m, clock := newTestManager(t)
	addSet(t, m, clock, "old", 10)
	report := addSet(t, m, clock, "giant", 400)

	assert.Equal(t, []string{"old"}, setIDs(report.Evicted))
	assert.True(t, report.OverBudget)
	_, ok := m.Get("giant")
	assert.True(t, ok)
}

func TestArchivedSetSurvivesEviction(t *testing.T) {
	t.Parallel()

	m, clock := newTestManager(t)
	ctx := context.Background()

	addSet(t, m, clock, "archived", 50)
	require.NoError(t, m.ArchiveSet(ctx, "archived"))
	for i := range 30 {
		addSet(t, m, clock, fmt.Sprintf("u%02d", i), 20)
	}

	rec, ok := m.Get("archived")
	require.True(t, ok)
	assert.True(t, rec.Archived)
	assert.False(t, rec.Pinned)
	assert.LessOrEqual(t, m.Stats(ctx).TotalBytes, uint64(250*policy.MB))
}

func TestPinnedAndArchivedAreIndependent(t *testing.T) {
	t.Parallel()

	m, clock := newTestManager(t)
	ctx := context.Background()

	addSet(t, m, clock, "both", 10)
	require.NoError(t, m.ArchiveSet(ctx, "both"))
	pinned, err := m.TogglePin(ctx, "both")
	require.NoError(t, err)
	require.True(t, pinned)

	rec, _ := m.Get("both")
	assert.True(t, rec.Pinned)
	assert.True(t, rec.Archived)

	pinned, err = m.TogglePin(ctx, "both")
	require.NoError(t, err)
	assert.False(t, pinned)
	rec, _ = m.Get("both")
	assert.True(t, rec.Archived)
}

func TestStorageWarningWatermark(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		mb   float64
		want bool
	}{
		{"exactly 80 percent", 200, true},
		{"just under 80 percent", 199.9, false},
		{"empty-ish", 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, clock := newTestManager(t)
			addSet(t, m, clock, "s", tt.mb)
			assert.Equal(t, tt.want, m.IsStorageWarning(context.Background()))
		})
	}
}

func TestLowFreeSpaceShrinksBudget(t *testing.T) {
	t.Parallel()

	free := testutil.NewFreeSpace(0.5)
	m, clock := newTestManager(t, WithFreeSpaceReader(free))
	ctx := context.Background()

	stats := m.Stats(ctx)
	assert.Equal(t, uint32(150), stats.BudgetMB)
	assert.True(t, stats.FreeSpaceKnown)
	assert.InDelta(t, 0.5, stats.FreeSpaceGB, 0)

	var evicted int
	for i := range 20 {
		evicted += len(addSet(t, m, clock, fmt.Sprintf("s%02d", i), 10).Evicted)
	}
	assert.Equal(t, 5, evicted)
	assert.Equal(t, uint64(150*policy.MB), m.Stats(ctx).TotalBytes)

	free.Set(8)
	stats = m.Stats(ctx)
	assert.Equal(t, uint32(250), stats.BudgetMB)
	assert.InDelta(t, 0.6, stats.Usage, 1e-9)
}

func TestFreeSpaceFailureUsesDefaultBudget(t *testing.T) {
	t.Parallel()

	free := testutil.NewFreeSpace(0.1)
	free.Fail(errors.New("statfs failed"))
	m, clock := newTestManager(t, WithFreeSpaceReader(free))

	for i := range 20 {
		addSet(t, m, clock, fmt.Sprintf("s%02d", i), 10)
	}

	stats := m.Stats(context.Background())
	assert.Equal(t, uint32(250), stats.BudgetMB)
	assert.False(t, stats.FreeSpaceKnown)
	assert.Equal(t, uint64(20), stats.TotalSets)
}

func TestCanceledStatsDoesNotLoosenWriteBudget(t *testing.T) {
	t.Parallel()

	var gated atomic.Bool
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	reader := budget.FreeSpaceFunc(func(ctx context.Context) (float64, error) {
		if gated.Load() {
			select {
			case started <- struct{}{}:
			default:
			}
			select {
			case <-release:
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
		return 0.5, nil
	})
	m, clock := newTestManager(t, WithFreeSpaceReader(reader))
	for i := range 15 {
		addSet(t, m, clock, fmt.Sprintf("s%02d", i), 10)
	}
	require.Equal(t, uint64(150*policy.MB), m.Stats(context.Background()).TotalBytes)

	gated.Store(true)
	statsCtx, cancel := context.WithCancel(context.Background())
	statsDone := make(chan StorageStats, 1)
	go func() { statsDone <- m.Stats(statsCtx) }()
	<-started

	writeDone := make(chan EvictionReport, 1)
	go func() {
		clock.Advance(time.Minute)
		report, err := m.AddOrUpdateSet(context.Background(), SetRecord{ID: "new", Bytes: 10 * policy.MB})
		assert.NoError(t, err)
		writeDone <- report
	}()

	cancel()
	assert.False(t, (<-statsDone).FreeSpaceKnown)
	close(release)

	report := <-writeDone
	assert.Equal(t, uint32(150), report.BudgetMB)
	require.Len(t, report.Evicted, 1)
	assert.Equal(t, "s00", report.Evicted[0].ID)
	assert.LessOrEqual(t, m.Stats(context.Background()).TotalBytes, uint64(150*policy.MB))
}

func TestStatsReadsFreeSpaceEachCall(t *testing.T) {
	t.Parallel()

	free := testutil.NewFreeSpace(4)
	m, _ := newTestManager(t, WithFreeSpaceReader(free))

	m.Stats(context.Background())
	m.Stats(context.Background())
	assert.Equal(t, 2, free.Reads())
}

func TestAddRejectsInvalidRecord(t *testing.T) {
	t.Parallel()

	store := testutil.NewMemoryStore()
	m, _ := newTestManager(t, WithStore(store))
	ctx := context.Background()

	tests := []struct {
		name  string
		rec   SetRecord
		field string
	}{
		{"negative bytes", SetRecord{ID: "x", Bytes: -1}, "bytes"},
		{"negative items", SetRecord{ID: "x", Items: -5}, "items"},
		{"empty id", SetRecord{Bytes: 1}, "id"},
	}
	for _, tt := range tests {
		_, err := m.AddOrUpdateSet(ctx, tt.rec)
		require.ErrorIs(t, err, ErrValidation, tt.name)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, tt.name)
		assert.Equal(t, tt.field, verr.Field, tt.name)
	}

	assert.Empty(t, m.Sets())
	assert.Zero(t, store.Saves())
}

func TestUnknownSetIsNotFound(t *testing.T) {
	t.Parallel()

	store := testutil.NewMemoryStore()
	m, _ := newTestManager(t, WithStore(store))
	ctx := context.Background()

	_, err := m.TogglePin(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, m.ArchiveSet(ctx, "missing"), ErrNotFound)
	assert.Zero(t, store.Saves())
}

func TestTogglePinTwiceRestores(t *testing.T) {
	t.Parallel()

	m, clock := newTestManager(t)
	ctx := context.Background()
	addSet(t, m, clock, "s", 1)

	first, err := m.TogglePin(ctx, "s")
	require.NoError(t, err)
	second, err := m.TogglePin(ctx, "s")
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	rec, _ := m.Get("s")
	assert.False(t, rec.Pinned)
}

func TestUnpinDoesNotEvictUntilNextWrite(t *testing.T) {
	t.Parallel()

	m, clock := newTestManager(t)
	ctx := context.Background()

	addSet(t, m, clock, "big", 240)
	_, err := m.TogglePin(ctx, "big")
	require.NoError(t, err)
	report := addSet(t, m, clock, "small", 20)
	require.Empty(t, report.Evicted)
	require.True(t, report.OverBudget)

	_, err = m.TogglePin(ctx, "big")
	require.NoError(t, err)
	_, ok := m.Get("big")
	require.True(t, ok, "unpin must not evict synchronously")

	report = addSet(t, m, clock, "next", 20)
	assert.Equal(t, []string{"big"}, setIDs(report.Evicted))
}

func TestClearAllIsIdempotent(t *testing.T) {
	t.Parallel()

	m, clock := newTestManager(t)
	ctx := context.Background()
	addSet(t, m, clock, "a", 5)
	_, err := m.TogglePin(ctx, "a")
	require.NoError(t, err)
	addSet(t, m, clock, "b", 5)

	m.ClearAll(ctx)
	first := m.Stats(ctx)
	m.ClearAll(ctx)
	second := m.Stats(ctx)

	assert.Equal(t, first, second)
	assert.Zero(t, second.TotalBytes)
	assert.Zero(t, second.TotalSets)
	assert.Zero(t, second.TotalItems)
	assert.Empty(t, m.Sets())
}

func TestUpdateStampsTimesAndKeepsCreatedAt(t *testing.T) {
	t.Parallel()

	m, clock := newTestManager(t)
	ctx := context.Background()

	addSet(t, m, clock, "s", 10)
	created := clock.Now()
	addSet(t, m, clock, "other", 1)

	clock.Advance(time.Hour)
	_, err := m.AddOrUpdateSet(ctx, SetRecord{ID: "s", Bytes: 30 * policy.MB, Items: 7})
	require.NoError(t, err)

	rec, ok := m.Get("s")
	require.True(t, ok)
	assert.Equal(t, created, rec.CreatedAt)
	assert.Equal(t, clock.Now(), rec.LastOpenedAt)
	assert.Equal(t, clock.Now(), rec.UpdatedAt)
	assert.Equal(t, int64(30*policy.MB), rec.Bytes)
	requireConsistent(t, m)
}

func TestReopeningMakesSetMostRecent(t *testing.T) {
	t.Parallel()

	m, clock := newTestManager(t)
	for i := range 25 {
		addSet(t, m, clock, fmt.Sprintf("s%02d", i), 10)
	}
	addSet(t, m, clock, "s00", 10)

	report := addSet(t, m, clock, "new", 10)
	assert.Equal(t, []string{"s01"}, setIDs(report.Evicted))
	_, ok := m.Get("s00")
	assert.True(t, ok)
}

func TestStaleSetsAndExpire(t *testing.T) {
	t.Parallel()

	store := testutil.NewMemoryStore()
	m, clock := newTestManager(t, WithStore(store))
	ctx := context.Background()

	addSet(t, m, clock, "old", 1)
	addSet(t, m, clock, "old-pinned", 1)
	_, err := m.TogglePin(ctx, "old-pinned")
	require.NoError(t, err)
	clock.Advance(100 * 24 * time.Hour)
	addSet(t, m, clock, "recent", 1)

	assert.Empty(t, m.StaleSets())
	clock.Advance(30 * 24 * time.Hour)
	assert.Equal(t, []string{"old"}, setIDs(m.StaleSets()))

	saves := store.Saves()
	removed := m.ExpireStale(ctx)
	assert.Equal(t, []string{"old"}, setIDs(removed))
	assert.Equal(t, []string{"old-pinned", "recent"}, setIDs(m.Sets()))
	assert.Equal(t, saves+1, store.Saves())

	assert.Empty(t, m.ExpireStale(ctx))
	assert.Equal(t, saves+1, store.Saves())
}

func TestWritesAreSaved(t *testing.T) {
	t.Parallel()

	store := testutil.NewMemoryStore()
	m, clock := newTestManager(t, WithStore(store))
	ctx := context.Background()

	addSet(t, m, clock, "a", 1)
	addSet(t, m, clock, "b", 2)
	_, err := m.TogglePin(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, m.ArchiveSet(ctx, "b"))

	assert.Equal(t, 4, store.Saves())
	assert.Equal(t, m.Sets(), store.Snapshot())

	m.ClearAll(ctx)
	assert.Empty(t, store.Snapshot())
}

func TestSaveFailureDoesNotFailWrite(t *testing.T) {
	t.Parallel()

	store := testutil.NewMemoryStore()
	store.Break()
	m, clock := newTestManager(t, WithStore(store))

	addSet(t, m, clock, "a", 1)
	_, ok := m.Get("a")
	assert.True(t, ok)
}

func TestLoadRestoresSnapshot(t *testing.T) {
	t.Parallel()

	saved := []SetRecord{
		{ID: "a", Bytes: 10 * policy.MB, Items: 3, Pinned: true, LastOpenedAt: start},
		{ID: "b", Bytes: 20 * policy.MB, Items: 4, Archived: true, LastOpenedAt: start},
		{ID: "bad", Bytes: -1},
	}
	store := testutil.NewMemoryStore(saved...)
	m, _ := newTestManager(t, WithStore(store))
	ctx := context.Background()

	require.NoError(t, m.Load(ctx))
	assert.Equal(t, saved[:2], m.Sets())
	stats := m.Stats(ctx)
	assert.Equal(t, uint64(30*policy.MB), stats.TotalBytes)
	assert.Equal(t, uint64(7), stats.TotalItems)
	assert.Zero(t, store.Saves())
}

func TestLoadFailure(t *testing.T) {
	t.Parallel()

	store := testutil.NewMemoryStore()
	store.Break()
	m, _ := newTestManager(t, WithStore(store))

	require.ErrorIs(t, m.Load(context.Background()), testutil.ErrStoreDown)
}

func TestLoadWithoutStore(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	require.NoError(t, m.Load(context.Background()))
}

// TestRandomOperationsHoldInvariants drives the manager with a random
// operation mix and checks the aggregate, exemption and budget properties
// after every step.
func TestRandomOperationsHoldInvariants(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7)) //nolint:gosec // deterministic test input
	free := testutil.NewFreeSpace(4)
	m, clock := newTestManager(t, WithFreeSpaceReader(free))
	ctx := context.Background()
	budgetBytes := func() uint64 {
		return uint64(m.Stats(ctx).BudgetMB) * policy.MB
	}

	protected := map[string]bool{}
	for step := range 1500 {
		id := fmt.Sprintf("set-%d", rng.Intn(220))
		switch op := rng.Intn(20); {
		case op < 14:
			if rng.Intn(10) == 0 {
				free.Set(rng.Float64() * 2)
			}
			clock.Advance(time.Duration(rng.Intn(3600)+1) * time.Second)
			_, err := m.AddOrUpdateSet(ctx, SetRecord{
				ID:    id,
				Bytes: rng.Int63n(12 * policy.MB),
				Items: rng.Int63n(1500),
			})
			require.NoError(t, err)

			stats := m.Stats(ctx)
			if stats.TotalBytes > budgetBytes() || stats.TotalSets > 150 || stats.TotalItems > 100_000 {
				for _, s := range m.Sets() {
					require.True(t, s.Protected() || s.ID == id,
						"step %d: unprotected %s left while over limits", step, s.ID)
				}
			}
		case op < 17:
			if _, ok := m.Get(id); ok {
				_, err := m.TogglePin(ctx, id)
				require.NoError(t, err)
			}
		case op < 19:
			if _, ok := m.Get(id); ok {
				require.NoError(t, m.ArchiveSet(ctx, id))
			}
		default:
			if rng.Intn(30) == 0 {
				m.ClearAll(ctx)
				clear(protected)
			}
		}

		for pid := range protected {
			_, ok := m.Get(pid)
			require.True(t, ok, "step %d: protected set %s disappeared", step, pid)
		}
		for _, s := range m.Sets() {
			if s.Protected() {
				protected[s.ID] = true
			} else {
				delete(protected, s.ID)
			}
		}
		requireConsistent(t, m)
	}
}

func TestConcurrentWritesKeepTotalsConsistent(t *testing.T) {
	t.Parallel()

	m, err := New()
	require.NoError(t, err)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				id := fmt.Sprintf("w%d-%d", w, i%40)
				_, addErr := m.AddOrUpdateSet(ctx, SetRecord{ID: id, Bytes: int64(i%7+1) * policy.MB, Items: 10})
				assert.NoError(t, addErr)
				if i%10 == 0 {
					_, _ = m.TogglePin(ctx, id)
				}
				m.Stats(ctx)
			}
		}()
	}
	wg.Wait()

	requireConsistent(t, m)
	assert.LessOrEqual(t, m.Stats(ctx).TotalSets, uint64(workers*40))
}
