package studycache

import (
	"log/slog"
	"time"

	"github.com/meigma/studycache/budget"
	"github.com/meigma/studycache/policy"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLimits overrides the default limits.
func WithLimits(l policy.Limits) Option {
	return func(m *Manager) {
		m.limits = l
	}
}

// WithFreeSpaceReader sets the source of free-disk-space readings used to
// pick the effective budget. Without one, the normal budget always applies.
func WithFreeSpaceReader(r budget.FreeSpaceReader) Option {
	return func(m *Manager) {
		m.freeSpace = r
	}
}

// WithStore sets the snapshot store used by Load and saved after every write.
func WithStore(s Store) Option {
	return func(m *Manager) {
		m.store = s
	}
}

// WithClock overrides the time source used to stamp writes and judge
// staleness. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger sets a custom logger for the manager and its eviction passes.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}
