// Package ledger records ingestion runs so prior outcomes can gate and
// audit future ones. Two backends are supported: an embedded SQLite
// database for single-machine use and PostgreSQL for shared deployments.
package ledger

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/oakmont-research/signal-cli/internal/config"
)

// RunStatus is the lifecycle state of an ingestion run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one recorded ingestion attempt for a source.
type Run struct {
	ID           string     `json:"id"`
	Source       string     `json:"source"`
	Status       RunStatus  `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	RowsUpserted int64      `json:"rows_upserted"`
	RowsDropped  int64      `json:"rows_dropped"`
	Error        string     `json:"error,omitempty"`
}

// Result holds the outcome of a successful run, passed to Complete().
type Result struct {
	RowsUpserted int64 `json:"rows_upserted"`
	RowsDropped  int64 `json:"rows_dropped"`
}

// Filter specifies criteria for listing runs.
type Filter struct {
	Source string    `json:"source,omitempty"`
	Status RunStatus `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
}

// Ledger defines the persistence interface for the run log.
type Ledger interface {
	Start(ctx context.Context, source string) (*Run, error)
	Complete(ctx context.Context, runID string, result Result) error
	Fail(ctx context.Context, runID string, errMsg string) error
	LastSuccess(ctx context.Context, source string) (*time.Time, error)
	List(ctx context.Context, filter Filter) ([]Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open creates a Ledger for the configured driver and runs migrations.
func Open(ctx context.Context, cfg config.LedgerConfig) (Ledger, error) {
	var (
		l   Ledger
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		l, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		l, err = NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("ledger: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := l.Migrate(ctx); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}
