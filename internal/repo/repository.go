package repo

import (
	"context"
	"time"

	"github.com/pingit-io/pingit/internal/domain"
)

// Ports (interfaces) — swap in any storage adapter.

// ResultStore is the append-only ping history.
type ResultStore interface {
	AppendResults(ctx context.Context, rs []domain.ProbeResult) error
	ResultsSince(ctx context.Context, targetName string, since time.Time) ([]domain.ProbeResult, error)
}

// StatsStore holds periodic aggregate snapshot rows.
type StatsStore interface {
	AppendSnapshots(ctx context.Context, ss []domain.StatsSnapshot) error
	SnapshotsSince(ctx context.Context, targetName string, since time.Time) ([]domain.StatsSnapshot, error)
}

// DisconnectStore upserts disconnect events keyed by (target_name,
// start_time); an open event row is rewritten as failures accumulate and
// once more when it closes.
type DisconnectStore interface {
	UpsertDisconnects(ctx context.Context, es []domain.DisconnectEvent) error
	DisconnectsSince(ctx context.Context, targetName string, since time.Time) ([]domain.DisconnectEvent, error)
}

// Store is a full storage backend.
type Store interface {
	ResultStore
	StatsStore
	DisconnectStore
	Close() error
}
