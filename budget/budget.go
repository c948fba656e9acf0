// Package budget derives the effective cache budget from free disk space.
//
// The cache shrinks its ceiling automatically when the device runs low on
// space: below [policy.Limits.LowFreeSpaceGB] the low-mode budget applies.
// A free-space reading that cannot be taken is treated as ample, so the
// normal budget applies.
package budget

import (
	"context"
	"log/slog"
	"math"

	"golang.org/x/sync/singleflight"

	"github.com/meigma/studycache/policy"
)

// FreeSpaceReader reports the free space available to the cache in GiB.
type FreeSpaceReader interface {
	FreeSpaceGB(ctx context.Context) (float64, error)
}

// FreeSpaceFunc adapts a function to FreeSpaceReader.
type FreeSpaceFunc func(ctx context.Context) (float64, error)

// FreeSpaceGB implements FreeSpaceReader.
func (f FreeSpaceFunc) FreeSpaceGB(ctx context.Context) (float64, error) {
	return f(ctx)
}

// EffectiveMB returns the budget that applies at freeGB of free space.
func EffectiveMB(l policy.Limits, freeGB float64) uint32 {
	if freeGB < l.LowFreeSpaceGB {
		return l.LowModeBudgetMB
	}
	return l.BudgetMB
}

// Reading is one evaluation of the effective budget.
type Reading struct {
	BudgetMB    uint32
	FreeSpaceGB float64
	// Known is false when the free-space reader failed or is not configured.
	Known bool
}

// Calculator evaluates the effective budget against a FreeSpaceReader.
//
// Concurrent calls share a single free-space probe.
// A Calculator is safe for concurrent use.
type Calculator struct {
	limits policy.Limits
	reader FreeSpaceReader
	logger *slog.Logger
	probe  singleflight.Group
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithLogger sets the logger used to report failed free-space reads.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Calculator) {
		c.logger = logger
	}
}

// NewCalculator returns a Calculator. A nil reader means free space is
// always unknown and the normal budget applies.
func NewCalculator(limits policy.Limits, reader FreeSpaceReader, opts ...Option) *Calculator {
	c := &Calculator{
		limits: limits,
		reader: reader,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c
}

// Limits returns the limits the calculator was built with.
func (c *Calculator) Limits() policy.Limits {
	return c.limits
}

// Current takes a fresh free-space reading and returns the budget that
// applies. It never fails; an unavailable reading falls back to the
// normal budget.
func (c *Calculator) Current(ctx context.Context) Reading {
	free, ok := c.freeSpace(ctx)
	if !ok {
		return Reading{BudgetMB: c.limits.BudgetMB}
	}
	return Reading{
		BudgetMB:    EffectiveMB(c.limits, free),
		FreeSpaceGB: free,
		Known:       true,
	}
}

func (c *Calculator) freeSpace(ctx context.Context) (float64, bool) {
	if c.reader == nil {
		return 0, false
	}
	// The flight runs detached from the caller that started it; each
	// caller waits only on its own ctx.
	ch := c.probe.DoChan("free", func() (any, error) {
		return c.reader.FreeSpaceGB(context.WithoutCancel(ctx))
	})
	var (
		v   any
		err error
	)
	select {
	case res := <-ch:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		c.logger.WarnContext(ctx, "free space unavailable, using default budget",
			slog.Any("error", err),
			slog.Uint64("budget_mb", uint64(c.limits.BudgetMB)))
		return 0, false
	}
	free, _ := v.(float64) //nolint:errcheck // type assertion always succeeds when err is nil
	if math.IsNaN(free) || free < 0 {
		c.logger.WarnContext(ctx, "free space reading out of range, using default budget",
			slog.Float64("free_gb", free))
		return 0, false
	}
	return free, true
}
