package domain

import "time"

// Target is one configured ping destination. Immutable after load; a config
// change is a fresh registry snapshot, never an in-place edit.
type Target struct {
	Name     string        `json:"name" yaml:"name"`
	Host     string        `json:"host" yaml:"host"`
	Interval time.Duration `json:"interval" yaml:"interval"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
	Probe    string        `json:"probe,omitempty" yaml:"probe"` // "icmp" (default) or "tcp"
}

// ErrorKind classifies a failed probe.
type ErrorKind string

const (
	ErrKindTimeout          ErrorKind = "timeout"
	ErrKindUnreachable      ErrorKind = "unreachable"
	ErrKindResolutionFailed ErrorKind = "host_resolution_failed"
)

// ProbeResult is the outcome of a single probe cycle. RTTMS is only
// meaningful when Success is true; ErrKind only when it is false.
type ProbeResult struct {
	TargetName string    `json:"target_name"`
	Host       string    `json:"host"`
	Timestamp  time.Time `json:"timestamp"`
	Success    bool      `json:"success"`
	RTTMS      float64   `json:"response_time_ms,omitempty"`
	ErrKind    ErrorKind `json:"error_kind,omitempty"`
}

// State is the health of a target as seen by its aggregator.
type State int

const (
	StateUnknown State = iota
	StateUp
	StateDown
)

func (s State) String() string {
	switch s {
	case StateUp:
		return "up"
	case StateDown:
		return "down"
	default:
		return "unknown"
	}
}
