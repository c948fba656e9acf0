// Package testutil provides fakes shared by studycache tests.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/meigma/studycache/internal/settype"
)

// FreeSpace is a settable free-space reader.
type FreeSpace struct {
	mu  sync.Mutex
	gb  float64
	err error
	n   int
}

// NewFreeSpace returns a reader reporting gb of free space.
func NewFreeSpace(gb float64) *FreeSpace {
	return &FreeSpace{gb: gb}
}

// Set changes the reported free space and clears any error.
func (f *FreeSpace) Set(gb float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gb = gb
	f.err = nil
}

// Fail makes subsequent reads return err.
func (f *FreeSpace) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Reads returns how many times FreeSpaceGB was called.
func (f *FreeSpace) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

// FreeSpaceGB implements budget.FreeSpaceReader.
func (f *FreeSpace) FreeSpaceGB(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	if f.err != nil {
		return 0, f.err
	}
	return f.gb, nil
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock stopped at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Tick advances the clock by d and returns the new time.
func (c *Clock) Tick(d time.Duration) time.Time {
	c.Advance(d)
	return c.Now()
}

// ErrStoreDown is returned by a MemoryStore after Break.
var ErrStoreDown = errors.New("testutil: store unavailable")

// MemoryStore is an in-memory snapshot store.
type MemoryStore struct {
	mu     sync.Mutex
	sets   []settype.Record
	saves  int
	broken bool
}

// NewMemoryStore returns a store preloaded with sets.
func NewMemoryStore(sets ...settype.Record) *MemoryStore {
	return &MemoryStore{sets: append([]settype.Record(nil), sets...)}
}

// Break makes every subsequent call fail with ErrStoreDown.
func (s *MemoryStore) Break() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broken = true
}

// Saves returns how many snapshots were saved successfully.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Snapshot returns a copy of the last saved sets.
func (s *MemoryStore) Snapshot() []settype.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]settype.Record(nil), s.sets...)
}

// Load implements studycache.Store.
func (s *MemoryStore) Load(context.Context) ([]settype.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return nil, ErrStoreDown
	}
	return append([]settype.Record(nil), s.sets...), nil
}

// Save implements studycache.Store.
func (s *MemoryStore) Save(_ context.Context, sets []settype.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return ErrStoreDown
	}
	s.sets = append([]settype.Record(nil), sets...)
	s.saves++
	return nil
}
