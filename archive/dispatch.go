package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/meigma/studycache"
)

const (
	defaultWorkers       = 2
	defaultQueueSize     = 64
	defaultInflightBytes = 64 << 20
)

// DispatchStats counts dispatcher outcomes.
type DispatchStats struct {
	Uploaded int64
	Failed   int64
	Dropped  int64
}

// Dispatcher uploads archived sets in the background.
//
// Enqueue never blocks. Upload failures are logged and counted; they are
// never reported back to the caller that archived the set.
type Dispatcher struct {
	publisher Publisher
	source    ContentSource
	logger    *slog.Logger

	workers       int
	queueSize     int
	inflightBytes int64

	queue    chan studycache.SetRecord
	inflight *semaphore.Weighted
	group    *errgroup.Group
	ctx      context.Context

	mu     sync.RWMutex
	closed bool

	uploaded atomic.Int64
	failed   atomic.Int64
	dropped  atomic.Int64
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithWorkers sets the number of concurrent uploads.
func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueSize sets how many sets may wait for a worker before Enqueue
// starts dropping.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// WithInflightBytes caps the set content held in memory by all workers.
// A single set larger than the cap is uploaded alone.
func WithInflightBytes(n int64) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.inflightBytes = n
		}
	}
}

// WithDispatcherLogger sets a custom logger for the dispatcher.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher starts workers that upload through pub, reading content
// from src. Canceling ctx stops uploads that have not started; Close must
// still be called to release the workers.
func NewDispatcher(ctx context.Context, pub Publisher, src ContentSource, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		publisher:     pub,
		source:        src,
		logger:        slog.New(slog.DiscardHandler),
		workers:       defaultWorkers,
		queueSize:     defaultQueueSize,
		inflightBytes: defaultInflightBytes,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.queue = make(chan studycache.SetRecord, d.queueSize)
	d.inflight = semaphore.NewWeighted(d.inflightBytes)
	d.group, d.ctx = errgroup.WithContext(ctx)
	for range d.workers {
		d.group.Go(d.run)
	}
	return d
}

// Enqueue schedules rec for upload. It reports false when the dispatcher
// is closed or its queue is full.
func (d *Dispatcher) Enqueue(rec studycache.SetRecord) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.dropped.Add(1)
		d.logger.Warn("archive upload dropped: dispatcher closed", slog.String("set_id", rec.ID))
		return false
	}
	select {
	case d.queue <- rec:
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("archive upload dropped: queue full",
			slog.String("set_id", rec.ID),
			slog.Int("queue_size", d.queueSize))
		return false
	}
}

// Close stops accepting sets and waits for queued uploads to finish.
// Sets still queued after the context is canceled are dropped.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	return d.group.Wait()
}

// Stats returns the dispatcher counters.
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Uploaded: d.uploaded.Load(),
		Failed:   d.failed.Load(),
		Dropped:  d.dropped.Load(),
	}
}

func (d *Dispatcher) run() error {
	for rec := range d.queue {
		if err := d.ctx.Err(); err != nil {
			d.dropped.Add(1)
			d.logger.Warn("archive upload dropped: canceled", slog.String("set_id", rec.ID))
			continue
		}
		d.upload(rec)
	}
	return nil
}

func (d *Dispatcher) upload(rec studycache.SetRecord) {
	// Sized sources are weighed by what is on disk; others by the record.
	size := rec.Bytes
	sized, isSized := d.source.(SizedSource)
	if isSized {
		n, err := sized.SetSize(d.ctx, rec.ID)
		if err != nil {
			d.failed.Add(1)
			d.logger.Error("archive upload failed",
				slog.String("set_id", rec.ID),
				slog.String("stage", "stat"),
				slog.Any("error", err))
			return
		}
		size = n
	}

	weight := min(max(size, 1), d.inflightBytes)
	if err := d.inflight.Acquire(d.ctx, weight); err != nil {
		d.dropped.Add(1)
		d.logger.Warn("archive upload dropped: canceled", slog.String("set_id", rec.ID))
		return
	}
	defer d.inflight.Release(weight)

	content, err := d.source.ReadSet(d.ctx, rec.ID)
	if err == nil && isSized && int64(len(content)) > size {
		err = fmt.Errorf("set %q: read %d bytes, reserved %d: %w", rec.ID, len(content), size, ErrContentTooLarge)
	}
	if err != nil {
		d.failed.Add(1)
		d.logger.Error("archive upload failed",
			slog.String("set_id", rec.ID),
			slog.String("stage", "read"),
			slog.Any("error", err))
		return
	}
	desc, err := d.publisher.Upload(d.ctx, rec, content)
	if err != nil {
		d.failed.Add(1)
		d.logger.Error("archive upload failed",
			slog.String("set_id", rec.ID),
			slog.String("stage", "push"),
			slog.Any("error", err))
		return
	}
	d.uploaded.Add(1)
	d.logger.Debug("archive upload done",
		slog.String("set_id", rec.ID),
		slog.String("digest", desc.Digest.String()))
}
