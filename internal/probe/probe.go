package probe

import (
	"context"
	"time"

	"github.com/pingit-io/pingit/internal/domain"
)

// Outcome is the unified result of a single probe attempt.
type Outcome struct {
	Success bool
	RTTMS   float64
	ErrKind domain.ErrorKind
	Message string
}

// Pinger performs one reachability check against a host. Implementations
// must honor the timeout and must never retry within a single call.
type Pinger interface {
	Ping(ctx context.Context, host string, timeout time.Duration) Outcome
}

// ForTarget picks the pinger matching the target's probe mode.
func ForTarget(t domain.Target, icmp, tcp Pinger) Pinger {
	if t.Probe == "tcp" {
		return tcp
	}
	return icmp
}
