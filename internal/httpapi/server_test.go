package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pingit-io/pingit/internal/domain"
	"github.com/pingit-io/pingit/internal/metrics"
	"github.com/pingit-io/pingit/internal/repo/memory"
)

// --- fakes ---

type fakeSource struct {
	targets []domain.Target
	stats   []domain.TargetStats
}

func (f *fakeSource) Targets() []domain.Target    { return f.targets }
func (f *fakeSource) Stats() []domain.TargetStats { return f.stats }

func newTestServer(t *testing.T) (*Server, *metrics.Store, *memory.Store) {
	t.Helper()
	targets := []domain.Target{{Name: "gw", Host: "192.0.2.1"}}
	ms := metrics.NewStore(targets)
	store := memory.New()
	src := &fakeSource{
		targets: targets,
		stats: []domain.TargetStats{{
			TargetName: "gw", Host: "192.0.2.1",
			PingCount: 10, Successes: 9, Failures: 1,
			MinRTT: 1, AvgRTT: 2, MaxRTT: 3,
			State: domain.StateUp,
		}},
	}
	return NewServer(zap.NewNop(), src, ms, store), ms, store
}

// --- tests ---

func TestServer_Healthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["targets"] != float64(1) {
		t.Fatalf("body: %v", body)
	}
}

func TestServer_MetricsScrapeDrains(t *testing.T) {
	s, ms, _ := newTestServer(t)
	ms.ObservePing("gw", "192.0.2.1", 4.5)
	ms.ObserveDisconnect("gw", "192.0.2.1")

	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type: %s", ct)
	}
	out := rr.Body.String()
	if !strings.Contains(out, `pingit_ping_time_ms{target_name="gw",host="192.0.2.1"} 4.5`) {
		t.Fatalf("missing gauge:\n%s", out)
	}
	if !strings.Contains(out, `pingit_disconnect_events_total{target_name="gw",host="192.0.2.1"} 1`) {
		t.Fatalf("missing counter:\n%s", out)
	}

	// second scrape with no activity in between comes back empty
	rr2 := httptest.NewRecorder()
	s.Router().ServeHTTP(rr2, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if strings.Contains(rr2.Body.String(), "target_name=") {
		t.Fatalf("drain not idempotent:\n%s", rr2.Body.String())
	}
}

func TestServer_TargetsReturnsLiveStats(t *testing.T) {
	s, _, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/targets", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: %d", rr.Code)
	}
	var stats []domain.TargetStats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(stats) != 1 || stats[0].TargetName != "gw" || stats[0].PingCount != 10 {
		t.Fatalf("stats: %+v", stats)
	}
}

func TestServer_HistoryQuery(t *testing.T) {
	s, _, store := newTestServer(t)
	now := time.Now().UTC()
	err := store.AppendResults(context.Background(), []domain.ProbeResult{
		{TargetName: "gw", Host: "192.0.2.1", Timestamp: now.Add(-48 * time.Hour), Success: true, RTTMS: 1},
		{TargetName: "gw", Host: "192.0.2.1", Timestamp: now.Add(-time.Hour), Success: true, RTTMS: 2},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/history?target=gw&since=2h", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: %d", rr.Code)
	}
	var rows []domain.ProbeResult
	if err := json.Unmarshal(rr.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0].RTTMS != 2 {
		t.Fatalf("lookback filter failed: %+v", rows)
	}
}

func TestServer_BadSinceParam(t *testing.T) {
	s, _, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/disconnects?since=yesterday", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: %d, want 400", rr.Code)
	}
}

func TestServer_RateLimitAppliesToAPIOnly(t *testing.T) {
	s, _, _ := newTestServer(t)
	s.RateLimit = 2
	router := s.Router()

	limited := false
	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/targets", nil)
		req.RemoteAddr = "198.51.100.7:1234"
		router.ServeHTTP(rr, req)
		if rr.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Fatalf("expected rate limiting on /api")
	}

	// scrapes are never rate limited
	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		req.RemoteAddr = "198.51.100.7:1234"
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("scrape %d: status %d", i, rr.Code)
		}
	}
}
