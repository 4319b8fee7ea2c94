package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/ridgeline-roofing/conversions-cli/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	range_start TEXT NOT NULL,
	range_end   TEXT NOT NULL,
	status      TEXT NOT NULL,
	calls       INTEGER NOT NULL,
	leads       INTEGER NOT NULL,
	matched     INTEGER NOT NULL,
	unmatched   INTEGER NOT NULL,
	match_rate  REAL NOT NULL,
	uploads     TEXT NOT NULL DEFAULT '[]',
	duration_ms INTEGER NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at DESC);
`

// SQLiteStore records runs in a local sqlite database. It is the default
// backend: no server to run, and one file per installation is plenty for a
// daily batch job.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path. Pass ":memory:"
// for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "conversions.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "store: open sqlite")
	}
	// The driver is file-backed; a single writer avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return eris.Wrap(err, "store: migrate sqlite")
	}
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run model.RunRecord) error {
	uploads, err := json.Marshal(run.Uploads)
	if err != nil {
		return eris.Wrap(err, "store: marshal uploads")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, range_start, range_end, status, calls, leads, matched, unmatched, match_rate, uploads, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Range.Start.UTC().Format(time.RFC3339),
		run.Range.End.UTC().Format(time.RFC3339),
		string(run.Status),
		run.Calls,
		run.Leads,
		run.Matched,
		run.Unmatched,
		run.MatchRate,
		string(uploads),
		run.Duration.Milliseconds(),
		run.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return eris.Wrap(err, "store: insert run")
	}
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, range_start, range_end, status, calls, leads, matched, unmatched, match_rate, uploads, duration_ms, created_at
		FROM runs ORDER BY created_at DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "store: query runs")
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		var (
			run                          model.RunRecord
			rangeStart, rangeEnd, status string
			uploads, createdAt           string
			durationMS                   int64
		)
		if err := rows.Scan(&run.ID, &rangeStart, &rangeEnd, &status, &run.Calls, &run.Leads,
			&run.Matched, &run.Unmatched, &run.MatchRate, &uploads, &durationMS, &createdAt); err != nil {
			return nil, eris.Wrap(err, "store: scan run")
		}
		if run.Range.Start, err = time.Parse(time.RFC3339, rangeStart); err != nil {
			return nil, eris.Wrap(err, "store: parse range start")
		}
		if run.Range.End, err = time.Parse(time.RFC3339, rangeEnd); err != nil {
			return nil, eris.Wrap(err, "store: parse range end")
		}
		if run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, eris.Wrap(err, "store: parse created at")
		}
		if err := json.Unmarshal([]byte(uploads), &run.Uploads); err != nil {
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

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
