package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresLedger creates a PostgresLedger backed by pgxmock for unit testing.
func newMockPostgresLedger(t *testing.T) (*PostgresLedger, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresLedger{pool: mock}, mock
}

func TestPostgres_Start(t *testing.T) {
	l, mock := newMockPostgresLedger(t)

	mock.ExpectExec(`INSERT INTO ingest_runs`).
		WithArgs(pgxmock.AnyArg(), "fred", "running", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := l.Start(context.Background(), "fred")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Complete(t *testing.T) {
	l, mock := newMockPostgresLedger(t)

	mock.ExpectExec(`UPDATE ingest_runs SET status`).
		WithArgs("complete", pgxmock.AnyArg(), int64(9), int64(2), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := l.Complete(context.Background(), "run-1", Result{RowsUpserted: 9, RowsDropped: 2})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CompleteNotFound(t *testing.T) {
	l, mock := newMockPostgresLedger(t)

	mock.ExpectExec(`UPDATE ingest_runs SET status`).
		WithArgs("complete", pgxmock.AnyArg(), int64(0), int64(0), "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := l.Complete(context.Background(), "ghost", Result{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestPostgres_Fail(t *testing.T) {
	l, mock := newMockPostgresLedger(t)

	mock.ExpectExec(`UPDATE ingest_runs SET status`).
		WithArgs("failed", pgxmock.AnyArg(), "fetch: status 429", "run-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := l.Fail(context.Background(), "run-2", "fetch: status 429")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LastSuccess_Never(t *testing.T) {
	l, mock := newMockPostgresLedger(t)

	mock.ExpectQuery(`SELECT started_at FROM ingest_runs`).
		WithArgs("fred").
		WillReturnError(pgx.ErrNoRows)

	ts, err := l.LastSuccess(context.Background(), "fred")
	require.NoError(t, err)
	assert.Nil(t, ts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LastSuccess(t *testing.T) {
	l, mock := newMockPostgresLedger(t)
	want := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	mock.ExpectQuery(`SELECT started_at FROM ingest_runs`).
		WithArgs("fred").
		WillReturnRows(pgxmock.NewRows([]string{"started_at"}).AddRow(want))

	ts, err := l.LastSuccess(context.Background(), "fred")
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.Equal(t, want, *ts)
}

func TestPostgres_List(t *testing.T) {
	l, mock := newMockPostgresLedger(t)
	started := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	completed := started.Add(time.Minute)

	rows := pgxmock.NewRows([]string{
		"id", "source", "status", "started_at", "completed_at",
		"rows_upserted", "rows_dropped", "error",
	}).
		AddRow("run-1", "fred", "complete", started, &completed, int64(5), int64(0), "").
		AddRow("run-2", "fred", "failed", started, &completed, int64(0), int64(0), "boom")

	mock.ExpectQuery(`SELECT id, source, status, started_at`).
		WithArgs("fred").
		WillReturnRows(rows)

	runs, err := l.List(context.Background(), Filter{Source: "fred"})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, RunStatusComplete, runs[0].Status)
	assert.Equal(t, int64(5), runs[0].RowsUpserted)
	require.NotNil(t, runs[0].CompletedAt)
	assert.Equal(t, "boom", runs[1].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}
