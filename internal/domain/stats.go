package domain

import "time"

// TargetStats is the running view of one target's health. Lifetime counters
// satisfy SuccessCount+FailureCount == PingCount; the Window* counters reset
// every reporting cycle and back the persisted snapshot rows.
type TargetStats struct {
	TargetName string  `json:"target_name"`
	Host       string  `json:"host"`
	PingCount  uint64  `json:"ping_count"`
	Successes  uint64  `json:"success_count"`
	Failures   uint64  `json:"failure_count"`
	MinRTT     float64 `json:"min_rt"`
	MaxRTT     float64 `json:"max_rt"`
	AvgRTT     float64 `json:"avg_rt"`
	State      State   `json:"current_state"`

	WindowPings     uint64 `json:"-"`
	WindowSuccesses uint64 `json:"-"`
	WindowFailures  uint64 `json:"-"`
}

// SuccessRate is the lifetime success percentage, 0 when nothing was pinged.
func (s *TargetStats) SuccessRate() float64 {
	if s.PingCount == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.PingCount) * 100
}

// StatsSnapshot is one persisted aggregate row, cut on the reporting cadence.
type StatsSnapshot struct {
	TargetName  string    `json:"target_name"`
	Host        string    `json:"host"`
	Timestamp   time.Time `json:"timestamp"`
	TotalPings  uint64    `json:"total_pings"`
	Successes   uint64    `json:"successful_pings"`
	Failures    uint64    `json:"failed_pings"`
	SuccessRate float64   `json:"success_rate"`
	MinRTT      *float64  `json:"min_response_time"`
	MaxRTT      *float64  `json:"max_response_time"`
	AvgRTT      *float64  `json:"avg_response_time"`
	LastState   State     `json:"last_status"`
}

// DisconnectEvent is one continuous unreachable interval. EndTime is nil
// while the event is open; at most one open event exists per target.
type DisconnectEvent struct {
	TargetName string     `json:"target_name"`
	Host       string     `json:"host"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time"`
	Failures   uint64     `json:"disconnect_count"`
}

// Open reports whether the event has not yet been closed by a recovery.
func (e *DisconnectEvent) Open() bool { return e.EndTime == nil }
