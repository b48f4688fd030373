// Package engine wires the configured targets to their probers,
// aggregators, the metrics store, and the persistence writer, and owns
// their lifecycle.
package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pingit-io/pingit/internal/domain"
	"github.com/pingit-io/pingit/internal/metrics"
	"github.com/pingit-io/pingit/internal/probe"
	"github.com/pingit-io/pingit/internal/repo"
	"github.com/pingit-io/pingit/internal/scheduler"
	"github.com/pingit-io/pingit/internal/stats"
	"github.com/pingit-io/pingit/internal/writer"
)

type Options struct {
	Targets       []domain.Target
	ReportEvery   uint64
	DeliveryGrace time.Duration
	Overrun       scheduler.OverrunPolicy
	Privileged    bool
	Writer        writer.Config
}

// Engine is one process generation: an immutable target snapshot plus the
// goroutines probing it. A config change means building a fresh Engine.
type Engine struct {
	log     *zap.Logger
	targets []domain.Target
	metrics *metrics.Store
	writer  *writer.Writer
	aggs    map[string]*stats.Aggregator
	probers []*scheduler.Prober

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(store repo.Store, opts Options, log *zap.Logger) *Engine {
	ms := metrics.NewStore(opts.Targets)
	w := writer.New(store, opts.Writer, log)

	icmp := probe.NewICMPPinger(opts.Privileged)
	tcp := probe.NewTCPPinger()

	aggs := make(map[string]*stats.Aggregator, len(opts.Targets))
	probers := make([]*scheduler.Prober, 0, len(opts.Targets))
	for _, t := range opts.Targets {
		agg := stats.NewAggregator(t, log, ms, w, opts.ReportEvery, 16)
		aggs[t.Name] = agg

		pr := scheduler.NewProber(t, probe.ForTarget(t, icmp, tcp), agg, log)
		if opts.DeliveryGrace > 0 {
			pr.DeliveryGrace = opts.DeliveryGrace
		}
		if opts.Overrun != "" {
			pr.Overrun = opts.Overrun
		}
		probers = append(probers, pr)
	}

	return &Engine{
		log:     log,
		targets: opts.Targets,
		metrics: ms,
		writer:  w,
		aggs:    aggs,
		probers: probers,
	}
}

// Start launches the writer, one aggregator per target, and one prober per
// target. It returns immediately.
func (e *Engine) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	e.cancel = cancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.writer.Run(ctx)
	}()

	for _, agg := range e.aggs {
		a := agg
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			a.Run(ctx)
		}()
	}

	for _, pr := range e.probers {
		p := pr
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			p.Run(ctx)
		}()
	}

	e.log.Info("engine_started", zap.Int("targets", len(e.targets)))
}

// Stop signals every goroutine and waits for probers to finish their
// in-flight probe, aggregators to drain, and the writer to flush.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.log.Info("engine_stopped")
}

// Targets returns the immutable target snapshot.
func (e *Engine) Targets() []domain.Target {
	out := make([]domain.Target, len(e.targets))
	copy(out, e.targets)
	return out
}

// Stats returns the current running statistics for every target, sorted by
// target name.
func (e *Engine) Stats() []domain.TargetStats {
	out := make([]domain.TargetStats, 0, len(e.aggs))
	for _, a := range e.aggs {
		out = append(out, a.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetName < out[j].TargetName })
	return out
}

// Metrics exposes the drain-on-scrape store for the HTTP surface.
func (e *Engine) Metrics() *metrics.Store { return e.metrics }
