package stats

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pingit-io/pingit/internal/domain"
)

// Recorder receives per-result metric updates. Implemented by the
// drain-on-scrape metrics store.
type Recorder interface {
	ObservePing(targetName, host string, rttMS float64)
	ObserveDisconnect(targetName, host string)
}

// Sink receives records destined for durable storage. Implementations must
// never block the caller.
type Sink interface {
	EnqueueResult(domain.ProbeResult)
	EnqueueSnapshot(domain.StatsSnapshot)
	EnqueueDisconnect(domain.DisconnectEvent)
}

// Aggregator owns one target's running statistics and disconnect state.
// Results are consumed in arrival order by a single goroutine; nothing else
// mutates the target's state.
type Aggregator struct {
	target      domain.Target
	logger      *zap.Logger
	metrics     Recorder
	sink        Sink
	reportEvery uint64

	in chan domain.ProbeResult

	mu    sync.RWMutex
	stats domain.TargetStats
	open  *domain.DisconnectEvent

	// reporting-window RTT accumulators, reset each snapshot
	winMin, winMax, winSum float64
	winSamples             uint64
}

func NewAggregator(t domain.Target, logger *zap.Logger, m Recorder, s Sink, reportEvery uint64, queueDepth int) *Aggregator {
	if reportEvery == 0 {
		reportEvery = 10
	}
	if queueDepth < 1 {
		queueDepth = 16
	}
	return &Aggregator{
		target:      t,
		logger:      logger,
		metrics:     m,
		sink:        s,
		reportEvery: reportEvery,
		in:          make(chan domain.ProbeResult, queueDepth),
		stats: domain.TargetStats{
			TargetName: t.Name,
			Host:       t.Host,
			State:      domain.StateUnknown,
		},
	}
}

// Offer hands one result to the aggregator, waiting at most grace when the
// queue is full. It reports whether the result was accepted.
func (a *Aggregator) Offer(res domain.ProbeResult, grace time.Duration) bool {
	select {
	case a.in <- res:
		return true
	default:
	}
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case a.in <- res:
		return true
	case <-t.C:
		return false
	}
}

// Run consumes results until ctx is cancelled, then drains whatever is
// already queued so no accepted result is lost.
func (a *Aggregator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case res := <-a.in:
					a.apply(res)
				default:
					return
				}
			}
		case res := <-a.in:
			a.apply(res)
		}
	}
}

// Stats returns a copy of the current running statistics.
func (a *Aggregator) Stats() domain.TargetStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

// OpenEvent returns a copy of the currently open disconnect event, if any.
func (a *Aggregator) OpenEvent() (domain.DisconnectEvent, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.open == nil {
		return domain.DisconnectEvent{}, false
	}
	return *a.open, true
}

func (a *Aggregator) apply(res domain.ProbeResult) {
	a.sink.EnqueueResult(res)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.PingCount++
	a.stats.WindowPings++
	if res.Success {
		a.stats.Successes++
		a.stats.WindowSuccesses++
		a.observeRTT(res.RTTMS)
		a.metrics.ObservePing(a.target.Name, a.target.Host, res.RTTMS)
	} else {
		a.stats.Failures++
		a.stats.WindowFailures++
	}

	next, tr := Next(a.stats.State, res.Success)
	a.stats.State = next

	switch tr {
	case TransitionWentDown:
		a.open = &domain.DisconnectEvent{
			TargetName: a.target.Name,
			Host:       a.target.Host,
			StartTime:  res.Timestamp,
			Failures:   1,
		}
		a.metrics.ObserveDisconnect(a.target.Name, a.target.Host)
		a.sink.EnqueueDisconnect(*a.open)
		a.logger.Warn("target_down",
			zap.String("target", a.target.Name),
			zap.String("host", a.target.Host),
			zap.String("error_kind", string(res.ErrKind)),
		)
	case TransitionStillDown:
		if a.open != nil {
			a.open.Failures++
			a.sink.EnqueueDisconnect(*a.open)
		}
	case TransitionRecovered:
		if a.open != nil {
			end := res.Timestamp
			a.open.EndTime = &end
			a.sink.EnqueueDisconnect(*a.open)
			a.logger.Info("target_recovered",
				zap.String("target", a.target.Name),
				zap.String("host", a.target.Host),
				zap.Uint64("failed_pings", a.open.Failures),
				zap.Duration("outage", end.Sub(a.open.StartTime)),
			)
			a.open = nil
		}
	}

	if a.stats.WindowPings >= a.reportEvery {
		a.sink.EnqueueSnapshot(a.snapshotLocked(res.Timestamp))
		a.resetWindowLocked()
	}
}

// observeRTT folds one successful sample into the lifetime running mean and
// the current reporting window.
func (a *Aggregator) observeRTT(rtt float64) {
	n := a.stats.Successes // already incremented for this sample
	if n == 1 {
		a.stats.MinRTT = rtt
		a.stats.MaxRTT = rtt
		a.stats.AvgRTT = rtt
	} else {
		if rtt < a.stats.MinRTT {
			a.stats.MinRTT = rtt
		}
		if rtt > a.stats.MaxRTT {
			a.stats.MaxRTT = rtt
		}
		a.stats.AvgRTT += (rtt - a.stats.AvgRTT) / float64(n)
	}

	a.winSamples++
	a.winSum += rtt
	if a.winSamples == 1 || rtt < a.winMin {
		a.winMin = rtt
	}
	if a.winSamples == 1 || rtt > a.winMax {
		a.winMax = rtt
	}
}

func (a *Aggregator) snapshotLocked(ts time.Time) domain.StatsSnapshot {
	snap := domain.StatsSnapshot{
		TargetName: a.target.Name,
		Host:       a.target.Host,
		Timestamp:  ts,
		TotalPings: a.stats.WindowPings,
		Successes:  a.stats.WindowSuccesses,
		Failures:   a.stats.WindowFailures,
		LastState:  a.stats.State,
	}
	if snap.TotalPings > 0 {
		snap.SuccessRate = float64(snap.Successes) / float64(snap.TotalPings) * 100
	}
	if a.winSamples > 0 {
		min, max := a.winMin, a.winMax
		avg := a.winSum / float64(a.winSamples)
		snap.MinRTT = &min
		snap.MaxRTT = &max
		snap.AvgRTT = &avg
	}
	return snap
}

func (a *Aggregator) resetWindowLocked() {
	a.stats.WindowPings = 0
	a.stats.WindowSuccesses = 0
	a.stats.WindowFailures = 0
	a.winMin, a.winMax, a.winSum = 0, 0, 0
	a.winSamples = 0
}
