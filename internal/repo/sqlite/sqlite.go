// Package sqlite is the default storage adapter, backed by a single
// database file in WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/pingit-io/pingit/internal/domain"
	"github.com/pingit-io/pingit/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	db  *sql.DB
	log *zap.Logger
}

func New(path string, log *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: empty database path")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time keeps SQLITE_BUSY out of the retry path.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	log.Info("sqlite_opened", zap.String("path", path))
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.log.Warn("sqlite_checkpoint_error", zap.Error(err))
	}
	return s.db.Close()
}

// ---- ResultStore ----

func (s *Store) AppendResults(ctx context.Context, rs []domain.ProbeResult) error {
	if len(rs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO ping_history
		   (target_name, host, timestamp, success, response_time_ms, error_kind)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

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
		if _, err := stmt.ExecContext(ctx,
			r.TargetName, r.Host, r.Timestamp.UnixMilli(), r.Success, rtt, kind,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert result: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) ResultsSince(ctx context.Context, targetName string, since time.Time) ([]domain.ProbeResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT target_name, host, timestamp, success, response_time_ms, error_kind
		   FROM ping_history
		  WHERE (? = '' OR target_name = ?) AND timestamp >= ?
		  ORDER BY timestamp ASC`,
		targetName, targetName, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []domain.ProbeResult
	for rows.Next() {
		var (
			r    domain.ProbeResult
			ms   int64
			rtt  sql.NullFloat64
			kind sql.NullString
		)
		if err := rows.Scan(&r.TargetName, &r.Host, &ms, &r.Success, &rtt, &kind); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		r.Timestamp = time.UnixMilli(ms).UTC()
		if rtt.Valid {
			r.RTTMS = rtt.Float64
		}
		if kind.Valid {
			r.ErrKind = domain.ErrorKind(kind.String)
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO ping_statistics
		   (target_name, host, total_pings, successful_pings, failed_pings,
		    success_rate, avg_response_time, min_response_time, max_response_time,
		    last_status, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, sn := range ss {
		if _, err := stmt.ExecContext(ctx,
			sn.TargetName, sn.Host, sn.TotalPings, sn.Successes, sn.Failures,
			sn.SuccessRate, sn.AvgRTT, sn.MinRTT, sn.MaxRTT,
			int(sn.LastState), sn.Timestamp.UnixMilli(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert snapshot: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) SnapshotsSince(ctx context.Context, targetName string, since time.Time) ([]domain.StatsSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT target_name, host, total_pings, successful_pings, failed_pings,
		        success_rate, avg_response_time, min_response_time, max_response_time,
		        last_status, timestamp
		   FROM ping_statistics
		  WHERE (? = '' OR target_name = ?) AND timestamp >= ?
		  ORDER BY timestamp ASC`,
		targetName, targetName, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query statistics: %w", err)
	}
	defer rows.Close()

	var out []domain.StatsSnapshot
	for rows.Next() {
		var (
			sn            domain.StatsSnapshot
			avg, min, max sql.NullFloat64
			state         int
			ms            int64
		)
		if err := rows.Scan(&sn.TargetName, &sn.Host, &sn.TotalPings, &sn.Successes,
			&sn.Failures, &sn.SuccessRate, &avg, &min, &max, &state, &ms); err != nil {
			return nil, fmt.Errorf("scan statistics: %w", err)
		}
		sn.Timestamp = time.UnixMilli(ms).UTC()
		sn.LastState = domain.State(state)
		if avg.Valid {
			sn.AvgRTT = &avg.Float64
		}
		if min.Valid {
			sn.MinRTT = &min.Float64
		}
		if max.Valid {
			sn.MaxRTT = &max.Float64
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

// ---- DisconnectStore ----

func (s *Store) UpsertDisconnects(ctx context.Context, es []domain.DisconnectEvent) error {
	if len(es) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO disconnect_events
		   (target_name, host, start_time, end_time, disconnect_count)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(target_name, start_time) DO UPDATE SET
		   end_time = excluded.end_time,
		   disconnect_count = excluded.disconnect_count`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range es {
		var end *int64
		if e.EndTime != nil {
			v := e.EndTime.UnixMilli()
			end = &v
		}
		if _, err := stmt.ExecContext(ctx,
			e.TargetName, e.Host, e.StartTime.UnixMilli(), end, e.Failures,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert disconnect: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) DisconnectsSince(ctx context.Context, targetName string, since time.Time) ([]domain.DisconnectEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT target_name, host, start_time, end_time, disconnect_count
		   FROM disconnect_events
		  WHERE (? = '' OR target_name = ?) AND start_time >= ?
		  ORDER BY start_time ASC`,
		targetName, targetName, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query disconnects: %w", err)
	}
	defer rows.Close()

	var out []domain.DisconnectEvent
	for rows.Next() {
		var (
			e     domain.DisconnectEvent
			start int64
			end   sql.NullInt64
		)
		if err := rows.Scan(&e.TargetName, &e.Host, &start, &end, &e.Failures); err != nil {
			return nil, fmt.Errorf("scan disconnect: %w", err)
		}
		e.StartTime = time.UnixMilli(start).UTC()
		if end.Valid {
			t := time.UnixMilli(end.Int64).UTC()
			e.EndTime = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
