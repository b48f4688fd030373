// Package memory is an in-memory storage adapter, used in tests and when
// no database is configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pingit-io/pingit/internal/domain"
	"github.com/pingit-io/pingit/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type eventKey struct {
	target string
	start  time.Time
}

type Store struct {
	mu        sync.RWMutex
	results   []domain.ProbeResult
	snapshots []domain.StatsSnapshot
	events    map[eventKey]domain.DisconnectEvent
	order     []eventKey
}

func New() *Store {
	return &Store{
		results: make([]domain.ProbeResult, 0, 128),
		events:  make(map[eventKey]domain.DisconnectEvent),
	}
}

func (m *Store) AppendResults(ctx context.Context, rs []domain.ProbeResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, rs...)
	return nil
}

func (m *Store) ResultsSince(ctx context.Context, targetName string, since time.Time) ([]domain.ProbeResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.ProbeResult
	for _, r := range m.results {
		if targetName != "" && r.TargetName != targetName {
			continue
		}
		if !since.IsZero() && r.Timestamp.Before(since) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *Store) AppendSnapshots(ctx context.Context, ss []domain.StatsSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, ss...)
	return nil
}

func (m *Store) SnapshotsSince(ctx context.Context, targetName string, since time.Time) ([]domain.StatsSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.StatsSnapshot
	for _, s := range m.snapshots {
		if targetName != "" && s.TargetName != targetName {
			continue
		}
		if !since.IsZero() && s.Timestamp.Before(since) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *Store) UpsertDisconnects(ctx context.Context, es []domain.DisconnectEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range es {
		k := eventKey{target: e.TargetName, start: e.StartTime}
		if _, ok := m.events[k]; !ok {
			m.order = append(m.order, k)
		}
		m.events[k] = e
	}
	return nil
}

func (m *Store) DisconnectsSince(ctx context.Context, targetName string, since time.Time) ([]domain.DisconnectEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.DisconnectEvent
	for _, k := range m.order {
		e := m.events[k]
		if targetName != "" && e.TargetName != targetName {
			continue
		}
		if !since.IsZero() && e.StartTime.Before(since) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *Store) Close() error { return nil }
