// Package postgres is the storage adapter for shared deployments where the
// dashboard runs on a different machine than the prober.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/pingit-io/pingit/internal/domain"
	"github.com/pingit-io/pingit/internal/repo"
)

var _ repo.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS ping_history (
	id BIGSERIAL PRIMARY KEY,
	target_name TEXT NOT NULL,
	host TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	success BOOLEAN NOT NULL,
	response_time_ms DOUBLE PRECISION,
	error_kind TEXT
);
CREATE INDEX IF NOT EXISTS idx_ping_history_target_timestamp
	ON ping_history (target_name, timestamp);

CREATE TABLE IF NOT EXISTS ping_statistics (
	id BIGSERIAL PRIMARY KEY,
	target_name TEXT NOT NULL,
	host TEXT NOT NULL,
	total_pings BIGINT NOT NULL,
	successful_pings BIGINT NOT NULL,
	failed_pings BIGINT NOT NULL,
	success_rate DOUBLE PRECISION NOT NULL,
	avg_response_time DOUBLE PRECISION,
	min_response_time DOUBLE PRECISION,
	max_response_time DOUBLE PRECISION,
	last_status INT,
	timestamp TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ping_statistics_target_timestamp
	ON ping_statistics (target_name, timestamp);

CREATE TABLE IF NOT EXISTS disconnect_events (
	target_name TEXT NOT NULL,
	host TEXT NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ,
	disconnect_count BIGINT NOT NULL,
	PRIMARY KEY (target_name, start_time)
);
`

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	log.Info("postgres_connected")
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// ---- ResultStore ----

func (s *Store) AppendResults(ctx context.Context, rs []domain.ProbeResult) error {
	if len(rs) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, r := range rs {
		var rtt *float64
		if r.Success {
			v := r.RTTMS
			rtt = &v
		}
		var kind *string
		if r.ErrKind != "" {
			k := string(r.ErrKind)
			kind = &k
		}
		b.Queue(
			`INSERT INTO ping_history
			   (target_name, host, timestamp, success, response_time_ms, error_kind)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			r.TargetName, r.Host, r.Timestamp, r.Success, rtt, kind,
		)
	}
	if err := s.pool.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("insert results: %w", err)
	}
	return nil
}

func (s *Store) ResultsSince(ctx context.Context, targetName string, since time.Time) ([]domain.ProbeResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT target_name, host, timestamp, success, response_time_ms, error_kind
		   FROM ping_history
		  WHERE ($1 = '' OR target_name = $1) AND timestamp >= $2
		  ORDER BY timestamp ASC`,
		targetName, since)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []domain.ProbeResult
	for rows.Next() {
		var (
			r    domain.ProbeResult
			rtt  *float64
			kind *string
		)
		if err := rows.Scan(&r.TargetName, &r.Host, &r.Timestamp, &r.Success, &rtt, &kind); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if rtt != nil {
			r.RTTMS = *rtt
		}
		if kind != nil {
			r.ErrKind = domain.ErrorKind(*kind)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---- StatsStore ----

func (s *Store) AppendSnapshots(ctx context.Context, ss []domain.StatsSnapshot) error {
	if len(ss) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, sn := range ss {
		b.Queue(
			`INSERT INTO ping_statistics
			   (target_name, host, total_pings, successful_pings, failed_pings,
			    success_rate, avg_response_time, min_response_time, max_response_time,
			    last_status, timestamp)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			sn.TargetName, sn.Host, sn.TotalPings, sn.Successes, sn.Failures,
			sn.SuccessRate, sn.AvgRTT, sn.MinRTT, sn.MaxRTT,
			int(sn.LastState), sn.Timestamp,
		)
	}
	if err := s.pool.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("insert snapshots: %w", err)
	}
	return nil
}

func (s *Store) SnapshotsSince(ctx context.Context, targetName string, since time.Time) ([]domain.StatsSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT target_name, host, total_pings, successful_pings, failed_pings,
		        success_rate, avg_response_time, min_response_time, max_response_time,
		        last_status, timestamp
		   FROM ping_statistics
		  WHERE ($1 = '' OR target_name = $1) AND timestamp >= $2
		  ORDER BY timestamp ASC`,
		targetName, since)
	if err != nil {
		return nil, fmt.Errorf("query statistics: %w", err)
	}
	defer rows.Close()

	var out []domain.StatsSnapshot
	for rows.Next() {
		var (
			sn    domain.StatsSnapshot
			state int
		)
		if err := rows.Scan(&sn.TargetName, &sn.Host, &sn.TotalPings, &sn.Successes,
			&sn.Failures, &sn.SuccessRate, &sn.AvgRTT, &sn.MinRTT, &sn.MaxRTT,
			&state, &sn.Timestamp); err != nil {
			return nil, fmt.Errorf("scan statistics: %w", err)
		}
		sn.LastState = domain.State(state)
		out = append(out, sn)
	}
	return out, rows.Err()
}

// ---- DisconnectStore ----

func (s *Store) UpsertDisconnects(ctx context.Context, es []domain.DisconnectEvent) error {
	if len(es) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, e := range es {
		b.Queue(
			`INSERT INTO disconnect_events
			   (target_name, host, start_time, end_time, disconnect_count)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (target_name, start_time) DO UPDATE SET
			   end_time = EXCLUDED.end_time,
			   disconnect_count = EXCLUDED.disconnect_count`,
			e.TargetName, e.Host, e.StartTime, e.EndTime, e.Failures,
		)
	}
	if err := s.pool.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("upsert disconnects: %w", err)
	}
	return nil
}

func (s *Store) DisconnectsSince(ctx context.Context, targetName string, since time.Time) ([]domain.DisconnectEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT target_name, host, start_time, end_time, disconnect_count
		   FROM disconnect_events
		  WHERE ($1 = '' OR target_name = $1) AND start_time >= $2
		  ORDER BY start_time ASC`,
		targetName, since)
	if err != nil {
		return nil, fmt.Errorf("query disconnects: %w", err)
	}
	defer rows.Close()

	var out []domain.DisconnectEvent
	for rows.Next() {
		var e domain.DisconnectEvent
		if err := rows.Scan(&e.TargetName, &e.Host, &e.StartTime, &e.EndTime, &e.Failures); err != nil {
			return nil, fmt.Errorf("scan disconnect: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
