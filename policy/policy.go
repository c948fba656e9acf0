// Package policy defines the storage limits of the local study-set cache
// and the pure predicates used to test them.
//
// Every predicate is a pure function of its arguments and the Limits
// value it is called on. Thresholds are inclusive or exclusive exactly as
// named: a budget is breached when usage is strictly greater than it, a
// set is stale when its age is strictly greater than StaleAfter, and the
// storage warning fires when usage is greater than or equal to WarnAtUsage.
package policy

import (
	"fmt"
	"time"

	"github.com/docker/go-units"

	"github.com/meigma/studycache/internal/settype"
)

// Default limits.
const (
	StorageBudgetMB = 250
	LowModeBudgetMB = 150
	LowFreeSpaceGB  = 1.0
	MaxLocalSets    = 150
	MaxLocalItems   = 100_000
	StaleDays       = 120
	EvictBatch      = 50
	WarnAtUsage     = 0.80
)

// MB is the number of bytes in one budget megabyte.
const MB = units.MiB

// Limits holds the thresholds the cache is kept within.
type Limits struct {
	// BudgetMB is the byte budget when free disk space is ample.
	BudgetMB uint32
	// LowModeBudgetMB is the byte budget when free disk space is low.
	LowModeBudgetMB uint32
	// LowFreeSpaceGB is the free space below which LowModeBudgetMB applies.
	LowFreeSpaceGB float64

	MaxSets  int
	MaxItems int64

	// StaleAfter is the age of last access after which a set is stale.
	StaleAfter time.Duration
	// EvictBatch is the number of candidates considered per eviction step.
	EvictBatch int
	// WarnAtUsage is the usage fraction at which the storage warning fires.
	WarnAtUsage float64
}

// Default returns the production limits.
func Default() Limits {
	return Limits{
		BudgetMB:        StorageBudgetMB,
		LowModeBudgetMB: LowModeBudgetMB,
		LowFreeSpaceGB:  LowFreeSpaceGB,
		MaxSets:         MaxLocalSets,
		MaxItems:        MaxLocalItems,
		StaleAfter:      StaleDays * 24 * time.Hour,
		EvictBatch:      EvictBatch,
		WarnAtUsage:     WarnAtUsage,
	}
}

// Validate reports limits that cannot be enforced.
func (l Limits) Validate() error {
	switch {
	case l.BudgetMB == 0:
		return fmt.Errorf("%w: budget must be > 0", settype.ErrInvalidConfig)
	case l.LowModeBudgetMB == 0:
		return fmt.Errorf("%w: low mode budget must be > 0", settype.ErrInvalidConfig)
	case l.LowModeBudgetMB > l.BudgetMB:
		return fmt.Errorf("%w: low mode budget %d MB exceeds budget %d MB",
			settype.ErrInvalidConfig, l.LowModeBudgetMB, l.BudgetMB)
	case l.LowFreeSpaceGB < 0:
		return fmt.Errorf("%w: low free space threshold must be >= 0", settype.ErrInvalidConfig)
	case l.MaxSets <= 0:
		return fmt.Errorf("%w: max sets must be > 0", settype.ErrInvalidConfig)
	case l.MaxItems <= 0:
		return fmt.Errorf("%w: max items must be > 0", settype.ErrInvalidConfig)
	case l.StaleAfter <= 0:
		return fmt.Errorf("%w: stale window must be > 0", settype.ErrInvalidConfig)
	case l.EvictBatch <= 0:
		return fmt.Errorf("%w: eviction batch must be > 0", settype.ErrInvalidConfig)
	case l.WarnAtUsage <= 0 || l.WarnAtUsage > 1:
		return fmt.Errorf("%w: warning watermark must be in (0, 1]", settype.ErrInvalidConfig)
	}
	return nil
}

// BudgetBytes converts a budget in megabytes to bytes.
func BudgetBytes(budgetMB uint32) int64 {
	return int64(budgetMB) * MB
}

// OverBudget reports whether bytes exceeds budgetMB.
func (l Limits) OverBudget(bytes int64, budgetMB uint32) bool {
	return bytes > BudgetBytes(budgetMB)
}

// OverSetLimit reports whether count exceeds MaxSets.
func (l Limits) OverSetLimit(count int) bool {
	return count > l.MaxSets
}

// OverItemLimit reports whether count exceeds MaxItems.
func (l Limits) OverItemLimit(count int64) bool {
	return count > l.MaxItems
}

// IsStale reports whether a set last opened at lastOpened is older than
// StaleAfter at now.
func (l Limits) IsStale(lastOpened, now time.Time) bool {
	return now.Sub(lastOpened) > l.StaleAfter
}

// IsWarning reports whether usage has reached the warning watermark.
func (l Limits) IsWarning(usage float64) bool {
	return usage >= l.WarnAtUsage
}

// Usage returns bytes as a fraction of budgetMB.
func Usage(bytes int64, budgetMB uint32) float64 {
	if budgetMB == 0 || bytes <= 0 {
		return 0
	}
	return float64(bytes) / float64(BudgetBytes(budgetMB))
}
