package probe

import (
	"context"
	"time"

	"github.com/go-ping/ping"

	"github.com/pingit-io/pingit/internal/domain"
)

// ICMPPinger sends a single ICMP echo per call. Privileged mode uses raw
// sockets; unprivileged uses UDP datagrams (needs net.ipv4.ping_group_range
// on Linux).
type ICMPPinger struct {
	Privileged bool
}

func NewICMPPinger(privileged bool) *ICMPPinger {
	return &ICMPPinger{Privileged: privileged}
}

func (p *ICMPPinger) Ping(ctx context.Context, host string, timeout time.Duration) Outcome {
	pr, err := ping.NewPinger(host)
	if err != nil {
		return Outcome{ErrKind: domain.ErrKindResolutionFailed, Message: err.Error()}
	}
	pr.Count = 1
	pr.Timeout = timeout
	pr.SetPrivileged(p.Privileged)

	// ping.Run has no context form; stop the run if the caller gives up.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			pr.Stop()
		case <-stop:
		}
	}()

	if err := pr.Run(); err != nil {
		return Outcome{ErrKind: domain.ErrKindUnreachable, Message: err.Error()}
	}

	st := pr.Statistics()
	if st.PacketsRecv == 0 {
		return Outcome{ErrKind: domain.ErrKindTimeout, Message: "no reply within timeout"}
	}
	return Outcome{
		Success: true,
		RTTMS:   float64(st.AvgRtt) / float64(time.Millisecond),
	}
}
