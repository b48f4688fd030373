// Package scheduler runs one probing loop per target. Loops are fully
// independent: no shared lock, no shared ticker.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pingit-io/pingit/internal/domain"
	"github.com/pingit-io/pingit/internal/probe"
)

// OverrunPolicy decides what happens when a probe runs longer than the
// target's interval.
type OverrunPolicy string

const (
	// OverrunRefire starts the next cycle immediately after completion.
	OverrunRefire OverrunPolicy = "refire"
	// OverrunSkip waits for the next aligned interval boundary.
	OverrunSkip OverrunPolicy = "skip"
)

// Consumer accepts one result per cycle, waiting at most grace.
type Consumer interface {
	Offer(res domain.ProbeResult, grace time.Duration) bool
}

// Prober probes one target on its configured interval and hands each result
// downstream. A slow consumer costs at most DeliveryGrace per cycle and
// never affects other targets.
type Prober struct {
	Target        domain.Target
	Pinger        probe.Pinger
	Consumer      Consumer
	Logger        *zap.Logger
	DeliveryGrace time.Duration
	Overrun       OverrunPolicy
}

func NewProber(t domain.Target, p probe.Pinger, c Consumer, logger *zap.Logger) *Prober {
	return &Prober{
		Target:        t,
		Pinger:        p,
		Consumer:      c,
		Logger:        logger,
		DeliveryGrace: time.Second,
		Overrun:       OverrunRefire,
	}
}

// Run loops until ctx is cancelled. An in-flight probe is bounded by the
// target's own timeout, not by ctx, so shutdown waits at most one timeout.
func (p *Prober) Run(ctx context.Context) {
	p.Logger.Info("prober_started",
		zap.String("target", p.Target.Name),
		zap.String("host", p.Target.Host),
		zap.Duration("interval", p.Target.Interval),
	)

	for {
		if ctx.Err() != nil {
			break
		}
		cycleStart := time.Now()
		p.cycle()

		wait := p.nextWait(time.Since(cycleStart))
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
			case <-t.C:
			}
		}
	}

	p.Logger.Info("prober_stopped", zap.String("target", p.Target.Name))
}

// cycle performs exactly one probe and delivers exactly one result.
func (p *Prober) cycle() {
	probeCtx, cancel := context.WithTimeout(context.Background(), p.Target.Timeout)
	out := p.Pinger.Ping(probeCtx, p.Target.Host, p.Target.Timeout)
	cancel()

	res := domain.ProbeResult{
		TargetName: p.Target.Name,
		Host:       p.Target.Host,
		Timestamp:  time.Now().UTC(),
		Success:    out.Success,
		RTTMS:      out.RTTMS,
		ErrKind:    out.ErrKind,
	}

	if !p.Consumer.Offer(res, p.DeliveryGrace) {
		p.Logger.Warn("prober_result_dropped",
			zap.String("target", p.Target.Name),
			zap.Duration("grace", p.DeliveryGrace),
		)
	}

	p.Logger.Debug("prober_cycle",
		zap.String("target", p.Target.Name),
		zap.Bool("success", out.Success),
		zap.Float64("rtt_ms", out.RTTMS),
		zap.String("error_kind", string(out.ErrKind)),
	)
}

// nextWait schedules the next cycle interval after the previous cycle
// START. An overrunning probe either re-fires immediately or skips to the
// next interval boundary, per policy.
func (p *Prober) nextWait(elapsed time.Duration) time.Duration {
	interval := p.Target.Interval
	if elapsed < interval {
		return interval - elapsed
	}
	if p.Overrun == OverrunSkip {
		return interval - (elapsed % interval)
	}
	return 0
}
