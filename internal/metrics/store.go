// Package metrics holds the in-memory samples behind the pull endpoint.
// Values accumulate between scrapes and are cleared atomically when read,
// so each scrape reports only activity since the previous one.
package metrics

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/pingit-io/pingit/internal/domain"
)

// Sample is one drained gauge value.
type Sample struct {
	TargetName string
	Host       string
	Value      float64
}

// CounterSample is one drained counter value.
type CounterSample struct {
	TargetName string
	Host       string
	Count      uint64
}

// Snapshot is everything one drain produced.
type Snapshot struct {
	PingTimes   []Sample
	Disconnects []CounterSample
}

type entry struct {
	mu          sync.Mutex
	host        string
	pingTime    float64
	hasPing     bool
	disconnects uint64
}

// Store keeps one entry per target. The target set is fixed at
// construction, so writers for different targets never share a lock.
type Store struct {
	entries map[string]*entry
	order   []string
}

func NewStore(targets []domain.Target) *Store {
	s := &Store{entries: make(map[string]*entry, len(targets))}
	for _, t := range targets {
		if _, ok := s.entries[t.Name]; ok {
			continue
		}
		s.entries[t.Name] = &entry{host: t.Host}
		s.order = append(s.order, t.Name)
	}
	sort.Strings(s.order)
	return s
}

// ObservePing records the latest successful round-trip time. Last value wins.
func (s *Store) ObservePing(targetName, host string, rttMS float64) {
	e, ok := s.entries[targetName]
	if !ok {
		return
	}
	e.mu.Lock()
	e.host = host
	e.pingTime = rttMS
	e.hasPing = true
	e.mu.Unlock()
}

// ObserveDisconnect counts one disconnect event opened since the last drain.
func (s *Store) ObserveDisconnect(targetName, host string) {
	e, ok := s.entries[targetName]
	if !ok {
		return
	}
	e.mu.Lock()
	e.host = host
	e.disconnects++
	e.mu.Unlock()
}

// Drain takes the current values and resets every entry. The take-and-clear
// per target happens under that target's lock, so a concurrent writer either
// lands in this drain or the next one, never in neither.
func (s *Store) Drain() Snapshot {
	var snap Snapshot
	for _, name := range s.order {
		e := s.entries[name]
		e.mu.Lock()
		if e.hasPing {
			snap.PingTimes = append(snap.PingTimes, Sample{TargetName: name, Host: e.host, Value: e.pingTime})
			e.hasPing = false
			e.pingTime = 0
		}
		if e.disconnects > 0 {
			snap.Disconnects = append(snap.Disconnects, CounterSample{TargetName: name, Host: e.host, Count: e.disconnects})
			e.disconnects = 0
		}
		e.mu.Unlock()
	}
	return snap
}

// WriteText drains the store and renders the result in the Prometheus text
// exposition format.
func (s *Store) WriteText(w io.Writer) error {
	snap := s.Drain()

	if _, err := fmt.Fprint(w,
		"# HELP pingit_ping_time_ms Ping response time in milliseconds\n",
		"# TYPE pingit_ping_time_ms gauge\n"); err != nil {
		return err
	}
	for _, g := range snap.PingTimes {
		if _, err := fmt.Fprintf(w, "pingit_ping_time_ms{target_name=%q,host=%q} %g\n",
			g.TargetName, g.Host, g.Value); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprint(w,
		"# HELP pingit_disconnect_events_total Disconnect events since previous scrape\n",
		"# TYPE pingit_disconnect_events_total counter\n"); err != nil {
		return err
	}
	for _, c := range snap.Disconnects {
		if _, err := fmt.Fprintf(w, "pingit_disconnect_events_total{target_name=%q,host=%q} %d\n",
			c.TargetName, c.Host, c.Count); err != nil {
			return err
		}
	}
	return nil
}
