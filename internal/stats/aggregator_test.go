package stats

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pingit-io/pingit/internal/domain"
)

// --- fakes ---

type fakeRecorder struct {
	mu          sync.Mutex
	pings       int
	disconnects int
}

func (f *fakeRecorder) ObservePing(targetName, host string, rttMS float64) {
	f.mu.Lock()
	f.pings++
	f.mu.Unlock()
}

func (f *fakeRecorder) ObserveDisconnect(targetName, host string) {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
}

type fakeSink struct {
	mu      sync.Mutex
	results []domain.ProbeResult
	snaps   []domain.StatsSnapshot
	events  []domain.DisconnectEvent
}

func (f *fakeSink) EnqueueResult(r domain.ProbeResult) {
	f.mu.Lock()
	f.results = append(f.results, r)
	f.mu.Unlock()
}

func (f *fakeSink) EnqueueSnapshot(s domain.StatsSnapshot) {
	f.mu.Lock()
	f.snaps = append(f.snaps, s)
	f.mu.Unlock()
}

func (f *fakeSink) EnqueueDisconnect(e domain.DisconnectEvent) {
	f.mu.Lock()
	f.events = append(f.events, e)
	f.mu.Unlock()
}

// --- helpers ---

func testTarget() domain.Target {
	return domain.Target{
		Name:     "gw",
		Host:     "192.0.2.1",
		Interval: time.Second,
		Timeout:  time.Second,
	}
}

func result(ts time.Time, success bool, rtt float64) domain.ProbeResult {
	r := domain.ProbeResult{
		TargetName: "gw",
		Host:       "192.0.2.1",
		Timestamp:  ts,
		Success:    success,
	}
	if success {
		r.RTTMS = rtt
	} else {
		r.ErrKind = domain.ErrKindTimeout
	}
	return r
}

// --- tests ---

func TestAggregator_DisconnectLifecycle(t *testing.T) {
	rec := &fakeRecorder{}
	sink := &fakeSink{}
	agg := NewAggregator(testTarget(), zap.NewNop(), rec, sink, 100, 16)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seq := []bool{true, true, false, false, false, true}
	for i, ok := range seq {
		agg.apply(result(base.Add(time.Duration(i)*time.Second), ok, 10))
	}

	st := agg.Stats()
	if st.PingCount != 6 || st.Successes != 3 || st.Failures != 3 {
		t.Fatalf("counts: got %d/%d/%d", st.PingCount, st.Successes, st.Failures)
	}
	if st.Successes+st.Failures != st.PingCount {
		t.Fatalf("count invariant broken")
	}
	if st.State != domain.StateUp {
		t.Fatalf("expected final state up, got %v", st.State)
	}
	if _, open := agg.OpenEvent(); open {
		t.Fatalf("expected no open event after recovery")
	}

	// one event lifecycle: opened at first fail, one upsert per failure,
	// closed at final success
	if len(sink.events) != 4 {
		t.Fatalf("expected 4 upserts for one event, got %d", len(sink.events))
	}
	final := sink.events[len(sink.events)-1]
	if !final.StartTime.Equal(base.Add(2 * time.Second)) {
		t.Fatalf("event start: got %v", final.StartTime)
	}
	if final.Failures != 3 {
		t.Fatalf("consecutive failures: got %d, want 3", final.Failures)
	}
	if final.EndTime == nil || !final.EndTime.Equal(base.Add(5*time.Second)) {
		t.Fatalf("event end: got %v", final.EndTime)
	}
	for _, e := range sink.events[:3] {
		if e.EndTime != nil {
			t.Fatalf("event closed early: %+v", e)
		}
		if !e.StartTime.Equal(final.StartTime) {
			t.Fatalf("expected a single event, saw start %v", e.StartTime)
		}
	}

	if rec.disconnects != 1 {
		t.Fatalf("disconnect metric: got %d, want 1", rec.disconnects)
	}
	if rec.pings != 3 {
		t.Fatalf("gauge updates: got %d, want 3", rec.pings)
	}
}

func TestAggregator_FirstResultFailureEntersDownWithoutEvent(t *testing.T) {
	rec := &fakeRecorder{}
	sink := &fakeSink{}
	agg := NewAggregator(testTarget(), zap.NewNop(), rec, sink, 100, 16)

	agg.apply(result(time.Now().UTC(), false, 0))

	st := agg.Stats()
	if st.State != domain.StateDown {
		t.Fatalf("expected down, got %v", st.State)
	}
	if len(sink.events) != 0 {
		t.Fatalf("expected no disconnect event on first-ever failure")
	}
	if rec.disconnects != 0 {
		t.Fatalf("expected no disconnect metric on first-ever failure")
	}
}

func TestAggregator_RunningRTTStats(t *testing.T) {
	rec := &fakeRecorder{}
	sink := &fakeSink{}
	agg := NewAggregator(testTarget(), zap.NewNop(), rec, sink, 100, 16)

	base := time.Now().UTC()
	rtts := []float64{20, 10, 30, 15}
	for i, rtt := range rtts {
		agg.apply(result(base.Add(time.Duration(i)*time.Second), true, rtt))
	}
	// one failure must not disturb RTT stats
	agg.apply(result(base.Add(5*time.Second), false, 0))

	st := agg.Stats()
	if st.MinRTT != 10 || st.MaxRTT != 30 {
		t.Fatalf("min/max: got %v/%v", st.MinRTT, st.MaxRTT)
	}
	want := (20.0 + 10 + 30 + 15) / 4
	if diff := st.AvgRTT - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("avg: got %v, want %v", st.AvgRTT, want)
	}
	if st.MinRTT > st.AvgRTT || st.AvgRTT > st.MaxRTT {
		t.Fatalf("ordering invariant broken: %v <= %v <= %v", st.MinRTT, st.AvgRTT, st.MaxRTT)
	}
}

func TestAggregator_SnapshotOnReportingCadence(t *testing.T) {
	rec := &fakeRecorder{}
	sink := &fakeSink{}
	agg := NewAggregator(testTarget(), zap.NewNop(), rec, sink, 3, 16)

	base := time.Now().UTC()
	for i := 0; i < 7; i++ {
		agg.apply(result(base.Add(time.Duration(i)*time.Second), i != 1, 5))
	}

	if len(sink.snaps) != 2 {
		t.Fatalf("expected 2 snapshots after 7 results at cadence 3, got %d", len(sink.snaps))
	}
	first := sink.snaps[0]
	if first.TotalPings != 3 || first.Successes != 2 || first.Failures != 1 {
		t.Fatalf("window counts: %d/%d/%d", first.TotalPings, first.Successes, first.Failures)
	}
	second := sink.snaps[1]
	if second.TotalPings != 3 || second.Failures != 0 {
		t.Fatalf("window did not reset: %d/%d", second.TotalPings, second.Failures)
	}

	// lifetime counters keep counting across windows
	st := agg.Stats()
	if st.PingCount != 7 {
		t.Fatalf("lifetime count: got %d, want 7", st.PingCount)
	}
}

func TestAggregator_RunProcessesInArrivalOrder(t *testing.T) {
	rec := &fakeRecorder{}
	sink := &fakeSink{}
	agg := NewAggregator(testTarget(), zap.NewNop(), rec, sink, 100, 16)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx)
		close(done)
	}()

	base := time.Now().UTC()
	for i := 0; i < 10; i++ {
		if !agg.Offer(result(base.Add(time.Duration(i)*time.Millisecond), true, float64(i)), time.Second) {
			t.Fatalf("offer %d rejected", i)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("aggregator did not stop")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.results) != 10 {
		t.Fatalf("expected 10 results after drain, got %d", len(sink.results))
	}
	for i, r := range sink.results {
		if r.RTTMS != float64(i) {
			t.Fatalf("result %d out of order: rtt %v", i, r.RTTMS)
		}
	}
}

func TestAggregator_OfferTimesOutWhenQueueFull(t *testing.T) {
	rec := &fakeRecorder{}
	sink := &fakeSink{}
	agg := NewAggregator(testTarget(), zap.NewNop(), rec, sink, 100, 1)

	// no consumer running; second offer must give up after the grace period
	if !agg.Offer(result(time.Now().UTC(), true, 1), 10*time.Millisecond) {
		t.Fatalf("first offer should fit the queue")
	}
	start := time.Now()
	if agg.Offer(result(time.Now().UTC(), true, 2), 10*time.Millisecond) {
		t.Fatalf("second offer should have been rejected")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("offer blocked far beyond its grace period")
	}
}
