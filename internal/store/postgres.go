package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ridgeline-roofing/conversions-cli/internal/db"
	"github.com/ridgeline-roofing/conversions-cli/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	range_start TIMESTAMPTZ NOT NULL,
	range_end   TIMESTAMPTZ NOT NULL,
	status      TEXT NOT NULL,
	calls       INTEGER NOT NULL,
	leads       INTEGER NOT NULL,
	matched     INTEGER NOT NULL,
	unmatched   INTEGER NOT NULL,
	match_rate  DOUBLE PRECISION NOT NULL,
	uploads     JSONB NOT NULL DEFAULT '[]',
	duration_ms BIGINT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at DESC)`

// PostgresStore records runs in postgres, for installations that want run
// history in the shared reporting database rather than a local file.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return eris.Wrap(err, "store: migrate postgres")
	}
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run model.RunRecord) error {
	uploads, err := json.Marshal(run.Uploads)
	if err != nil {
		return eris.Wrap(err, "store: marshal uploads")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO runs (id, range_start, range_end, status, calls, leads, matched, unmatched, match_rate, uploads, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		run.ID,
		run.Range.Start.UTC(),
		run.Range.End.UTC(),
		string(run.Status),
		run.Calls,
		run.Leads,
		run.Matched,
		run.Unmatched,
		run.MatchRate,
		uploads,
		run.Duration.Milliseconds(),
		run.CreatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "store: insert run")
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, range_start, range_end, status, calls, leads, matched, unmatched, match_rate, uploads, duration_ms, created_at
		FROM runs ORDER BY created_at DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "store: query runs")
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		var (
			run        model.RunRecord
			status     string
			uploads    []byte
			durationMS int64
		)
		if err := rows.Scan(&run.ID, &run.Range.Start, &run.Range.End, &status, &run.Calls, &run.Leads,
			&run.Matched, &run.Unmatched, &run.MatchRate, &uploads, &durationMS, &run.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan run")
		}
		if err := json.Unmarshal(uploads, &run.Uploads); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal uploads")
		}
		run.Status = model.RunStatus(status)
		run.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate runs")
	}
	return runs, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
