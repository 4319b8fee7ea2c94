package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresStoreMigrate(t *testing.T) {
	pool := newMockPool(t)
	pool.ExpectExec("CREATE TABLE IF NOT EXISTS runs").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	s := NewPostgresStore(pool)
	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgresStoreSaveRun(t *testing.T) {
	run := testRun("run-1", time.Date(2026, 2, 10, 2, 0, 0, 0, time.UTC))
	uploads, err := json.Marshal(run.Uploads)
	require.NoError(t, err)

	pool := newMockPool(t)
	pool.ExpectExec("INSERT INTO runs").
		WithArgs(
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
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s := NewPostgresStore(pool)
	require.NoError(t, s.SaveRun(context.Background(), run))
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgresStoreSaveRunError(t *testing.T) {
	pool := newMockPool(t)
	pool.ExpectExec("INSERT INTO runs").
		WillReturnError(assert.AnError)

	s := NewPostgresStore(pool)
	err := s.SaveRun(context.Background(), testRun("run-1", time.Now().UTC()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert run")
}

func TestPostgresStoreListRuns(t *testing.T) {
	want := testRun("run-1", time.Date(2026, 2, 10, 2, 0, 0, 0, time.UTC))
	uploads, err := json.Marshal(want.Uploads)
	require.NoError(t, err)

	pool := newMockPool(t)
	pool.ExpectQuery("SELECT (.+) FROM runs ORDER BY created_at DESC").
		WithArgs(2).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "range_start", "range_end", "status", "calls", "leads",
			"matched", "unmatched", "match_rate", "uploads", "duration_ms", "created_at",
		}).AddRow(
			want.ID, want.Range.Start, want.Range.End, string(want.Status), want.Calls, want.Leads,
			want.Matched, want.Unmatched, want.MatchRate, uploads, want.Duration.Milliseconds(), want.CreatedAt,
		))

	s := NewPostgresStore(pool)
	runs, err := s.ListRuns(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, want, runs[0])
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgresStoreListRunsDefaultLimit(t *testing.T) {
	pool := newMockPool(t)
	pool.ExpectQuery("SELECT (.+) FROM runs").
		WithArgs(DefaultListLimit).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "range_start", "range_end", "status", "calls", "leads",
			"matched", "unmatched", "match_rate", "uploads", "duration_ms", "created_at",
		}))

	s := NewPostgresStore(pool)
	runs, err := s.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, pool.ExpectationsWereMet())
}
