package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteLedger implements Ledger using modernc.org/sqlite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "ledger: exec %s", pragma)
		}
	}
	return &SQLiteLedger{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS ingest_runs (
	id            TEXT PRIMARY KEY,
	source        TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	started_at    DATETIME NOT NULL,
	completed_at  DATETIME,
	rows_upserted INTEGER NOT NULL DEFAULT 0,
	rows_dropped  INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_ingest_runs_source ON ingest_runs(source);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_status ON ingest_runs(status);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_started_at ON ingest_runs(started_at);
`

func (l *SQLiteLedger) Migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "ledger: migrate sqlite")
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func (l *SQLiteLedger) Start(ctx context.Context, source string) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, source, status, started_at) VALUES (?, ?, ?, ?)`,
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

func (l *SQLiteLedger) Complete(ctx context.Context, runID string, result Result) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE ingest_runs SET status = ?, completed_at = ?, rows_upserted = ?, rows_dropped = ? WHERE id = ?`,
		string(RunStatusComplete), time.Now().UTC(), result.RowsUpserted, result.RowsDropped, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "ledger: complete run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (l *SQLiteLedger) Fail(ctx context.Context, runID string, errMsg string) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE ingest_runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(RunStatusFailed), time.Now().UTC(), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "ledger: fail run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (l *SQLiteLedger) LastSuccess(ctx context.Context, source string) (*time.Time, error) {
	var t time.Time
	err := l.db.QueryRowContext(ctx,
		`SELECT started_at FROM ingest_runs
		 WHERE source = ? AND status = 'complete'
		 ORDER BY started_at DESC LIMIT 1`,
		source,
	).Scan(&t)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "ledger: last success for %s", source)
	}
	return &t, nil
}

func (l *SQLiteLedger) List(ctx context.Context, filter Filter) ([]Run, error) {
	query := `SELECT id, source, status, started_at, completed_at, rows_upserted, rows_dropped, error
		 FROM ingest_runs WHERE 1=1`
	args := []any{}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var completedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.Source, &r.Status, &r.StartedAt, &completedAt,
			&r.RowsUpserted, &r.RowsDropped, &r.Error); err != nil {
			return nil, eris.Wrap(err, "ledger: scan run")
		}
		if completedAt.Valid {
			t := completedAt.Time
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "ledger: iterate runs")
}

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "ledger: rows affected")
	}
	if n == 0 {
		return eris.Errorf("ledger: run %s not found", runID)
	}
	return nil
}
