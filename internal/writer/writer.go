// Package writer moves probe results, snapshots, and disconnect events from
// the hot path into durable storage. Producers never block: the queue is
// bounded and sheds its oldest entry under pressure.
package writer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pingit-io/pingit/internal/domain"
	"github.com/pingit-io/pingit/internal/repo"
)

type Config struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
	ShutdownGrace time.Duration
}

func (c *Config) applyDefaults() {
	if c.QueueSize < 1 {
		c.QueueSize = 1024
	}
	if c.BatchSize < 1 {
		c.BatchSize = 64
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 10 * time.Second
	}
	if c.RetryAttempts < 1 {
		c.RetryAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 5 * time.Second
	}
}

// item is one queued write. Exactly one field is set.
type item struct {
	result *domain.ProbeResult
	snap   *domain.StatsSnapshot
	event  *domain.DisconnectEvent
}

type Writer struct {
	cfg   Config
	log   *zap.Logger
	store repo.Store
	queue chan item

	pendingResults []domain.ProbeResult
	pendingSnaps   []domain.StatsSnapshot
	pendingEvents  []domain.DisconnectEvent
}

func New(store repo.Store, cfg Config, log *zap.Logger) *Writer {
	cfg.applyDefaults()
	return &Writer{
		cfg:   cfg,
		log:   log,
		store: store,
		queue: make(chan item, cfg.QueueSize),
	}
}

func (w *Writer) EnqueueResult(r domain.ProbeResult) { w.enqueue(item{result: &r}) }

func (w *Writer) EnqueueSnapshot(s domain.StatsSnapshot) { w.enqueue(item{snap: &s}) }

func (w *Writer) EnqueueDisconnect(e domain.DisconnectEvent) { w.enqueue(item{event: &e}) }

// enqueue never blocks. When the queue is full the oldest pending item is
// dropped to make room for the new one.
func (w *Writer) enqueue(it item) {
	select {
	case w.queue <- it:
		return
	default:
	}
	select {
	case old := <-w.queue:
		w.log.Warn("writer_queue_full_dropping_oldest", zap.String("dropped", kindOf(old)))
	default:
	}
	select {
	case w.queue <- it:
	default:
		w.log.Warn("writer_queue_full_dropping_item", zap.String("dropped", kindOf(it)))
	}
}

func kindOf(it item) string {
	switch {
	case it.result != nil:
		return "result"
	case it.snap != nil:
		return "snapshot"
	default:
		return "disconnect"
	}
}

// Run consumes the queue until ctx is cancelled, flushing on the configured
// cadence or when a batch fills. On shutdown it drains whatever is queued
// within the grace period, flushes once more, and discards the rest.
func (w *Writer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return
		case it := <-w.queue:
			w.buffer(it)
			if w.pendingCount() >= w.cfg.BatchSize {
				w.flush(context.Background())
			}
		case <-ticker.C:
			w.flush(context.Background())
		}
	}
}

func (w *Writer) shutdown() {
	deadline := time.NewTimer(w.cfg.ShutdownGrace)
	defer deadline.Stop()

	for {
		select {
		case it := <-w.queue:
			w.buffer(it)
		case <-deadline.C:
			w.log.Warn("writer_shutdown_grace_expired", zap.Int("discarded", len(w.queue)))
			w.finalFlush()
			return
		default:
			w.finalFlush()
			return
		}
	}
}

func (w *Writer) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.ShutdownGrace)
	defer cancel()
	w.flush(ctx)
}

func (w *Writer) buffer(it item) {
	switch {
	case it.result != nil:
		w.pendingResults = append(w.pendingResults, *it.result)
	case it.snap != nil:
		w.pendingSnaps = append(w.pendingSnaps, *it.snap)
	case it.event != nil:
		w.pendingEvents = append(w.pendingEvents, *it.event)
	}
}

func (w *Writer) pendingCount() int {
	return len(w.pendingResults) + len(w.pendingSnaps) + len(w.pendingEvents)
}

// flush writes each pending batch, retrying with backoff. A batch that
// still fails after the last attempt is logged and dropped; the error never
// reaches the probing path.
func (w *Writer) flush(ctx context.Context) {
	if len(w.pendingResults) > 0 {
		if err := w.withRetry(ctx, "results", func() error {
			return w.store.AppendResults(ctx, w.pendingResults)
		}); err == nil {
			w.pendingResults = w.pendingResults[:0]
		} else {
			w.log.Error("writer_dropping_results", zap.Int("count", len(w.pendingResults)), zap.Error(err))
			w.pendingResults = w.pendingResults[:0]
		}
	}
	if len(w.pendingSnaps) > 0 {
		if err := w.withRetry(ctx, "snapshots", func() error {
			return w.store.AppendSnapshots(ctx, w.pendingSnaps)
		}); err == nil {
			w.pendingSnaps = w.pendingSnaps[:0]
		} else {
			w.log.Error("writer_dropping_snapshots", zap.Int("count", len(w.pendingSnaps)), zap.Error(err))
			w.pendingSnaps = w.pendingSnaps[:0]
		}
	}
	if len(w.pendingEvents) > 0 {
		if err := w.withRetry(ctx, "disconnects", func() error {
			return w.store.UpsertDisconnects(ctx, w.pendingEvents)
		}); err == nil {
			w.pendingEvents = w.pendingEvents[:0]
		} else {
			w.log.Error("writer_dropping_disconnects", zap.Int("count", len(w.pendingEvents)), zap.Error(err))
			w.pendingEvents = w.pendingEvents[:0]
		}
	}
}

func (w *Writer) withRetry(ctx context.Context, what string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= w.cfg.RetryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt < w.cfg.RetryAttempts {
			w.log.Warn("writer_retry",
				zap.String("batch", what),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return err
			case <-time.After(w.cfg.RetryBackoff * time.Duration(attempt)):
			}
		}
	}
	return err
}
