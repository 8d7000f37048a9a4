package ledger

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool used by the ledger. pgxmock
// satisfies it, which keeps the postgres backend unit-testable without
// a live server.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresLedger implements Ledger using pgxpool.
type PostgresLedger struct {
	pool Pool
}

// NewPostgres creates a PostgresLedger with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresLedger, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: parse postgres config")
	}
	pgxCfg.MaxConns = 4
	pgxCfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "ledger: ping")
	}
	return &PostgresLedger{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS ingest_runs (
	id            TEXT PRIMARY KEY,
	source        TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	started_at    TIMESTAMPTZ NOT NULL,
	completed_at  TIMESTAMPTZ,
	rows_upserted BIGINT NOT NULL DEFAULT 0,
	rows_dropped  BIGINT NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_ingest_runs_source ON ingest_runs(source);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_status ON ingest_runs(status);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_started_at ON ingest_runs(started_at);
`

func (l *PostgresLedger) Migrate(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "ledger: migrate postgres")
}

func (l *PostgresLedger) Close() error {
	l.pool.Close()
	return nil
}

func (l *PostgresLedger) Start(ctx context.Context, source string) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := l.pool.Exec(ctx,
		`INSERT INTO ingest_runs (id, source, status, started_at) VALUES ($1, $2, $3, $4)`,
		id, source, string(RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: start run for %s", source)
	}

	return &Run{
		ID:        id,
		Source:    source,
		Status:    RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (l *PostgresLedger) Complete(ctx context.Context, runID string, result Result) error {
	tag, err := l.pool.Exec(ctx,
		`UPDATE ingest_runs SET status = $1, completed_at = $2, rows_upserted = $3, rows_dropped = $4 WHERE id = $5`,
		string(RunStatusComplete), time.Now().UTC(), result.RowsUpserted, result.RowsDropped, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "ledger: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("ledger: run %s not found", runID)
	}
	return nil
}

func (l *PostgresLedger) Fail(ctx context.Context, runID string, errMsg string) error {
	tag, err := l.pool.Exec(ctx,
		`UPDATE ingest_runs SET status = $1, completed_at = $2, error = $3 WHERE id = $4`,
		string(RunStatusFailed), time.Now().UTC(), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "ledger: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("ledger: run %s not found", runID)
	}
	return nil
}

func (l *PostgresLedger) LastSuccess(ctx context.Context, source string) (*time.Time, error) {
	var t time.Time
	err := l.pool.QueryRow(ctx,
		`SELECT started_at FROM ingest_runs
		 WHERE source = $1 AND status = 'complete'
		 ORDER BY started_at DESC LIMIT 1`,
		source,
	).Scan(&t)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "ledger: last success for %s", source)
	}
	return &t, nil
}

func (l *PostgresLedger) List(ctx context.Context, filter Filter) ([]Run, error) {
	query := `SELECT id, source, status, started_at, completed_at, rows_upserted, rows_dropped, error
		 FROM ingest_runs WHERE 1=1`
	args := []any{}
	if filter.Source != "" {
		args = append(args, filter.Source)
		query += ` AND source = $` + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY started_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var completedAt *time.Time
		if err := rows.Scan(&r.ID, &r.Source, &r.Status, &r.StartedAt, &completedAt,
			&r.RowsUpserted, &r.RowsDropped, &r.Error); err != nil {
			return nil, eris.Wrap(err, "ledger: scan run")
		}
		r.CompletedAt = completedAt
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "ledger: iterate runs")
}
