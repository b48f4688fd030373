package probe

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/pingit-io/pingit/internal/domain"
)

// TCPPinger measures the time to open (and immediately close) a TCP
// connection. Useful where raw ICMP sockets are unavailable.
type TCPPinger struct {
	// Port used when the host carries none. Defaults to "80".
	Port string
}

func NewTCPPinger() *TCPPinger {
	return &TCPPinger{Port: "80"}
}

func (p *TCPPinger) Ping(ctx context.Context, host string, timeout time.Duration) Outcome {
	address := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		port := p.Port
		if port == "" {
			port = "80"
		}
		address = net.JoinHostPort(host, port)
	}

	d := net.Dialer{Timeout: timeout}
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return Outcome{ErrKind: Classify(err), Message: err.Error()}
	}
	rtt := time.Since(start)
	_ = conn.Close()

	return Outcome{Success: true, RTTMS: float64(rtt) / float64(time.Millisecond)}
}

// Classify maps a network error onto the probe error taxonomy.
func Classify(err error) domain.ErrorKind {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return domain.ErrKindResolutionFailed
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ErrKindTimeout
	}
	return domain.ErrKindUnreachable
}
