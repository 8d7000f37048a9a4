// Package source holds the ingestion sources and the engine that runs
// them. Each source knows how to fetch and parse one upstream feed into
// observation records; the engine owns scheduling, validation, history
// persistence, and run bookkeeping.
package source

import (
	"context"
	"time"

	"github.com/oakmont-research/signal-cli/internal/fetcher"
	"github.com/oakmont-research/signal-cli/internal/history"
	"github.com/oakmont-research/signal-cli/internal/manifest"
	"github.com/oakmont-research/signal-cli/internal/model"
)

// Cadence describes how often a source publishes new observations.
type Cadence string

const (
	Daily   Cadence = "daily"
	Weekly  Cadence = "weekly"
	Monthly Cadence = "monthly"
)

// Source defines the interface each ingestion source must implement.
type Source interface {
	// Name returns the unique identifier for this source (e.g., "fred").
	Name() string

	// HistoryFile returns the history log file name under the history dir.
	HistoryFile() string

	// Cadence returns how often this source is updated upstream.
	Cadence() Cadence

	// ShouldRun decides if this source needs ingesting given the current
	// time and the time of the last successful run (nil if never run).
	ShouldRun(now time.Time, lastRun *time.Time) bool

	// Fields returns the payload fields tracked for windowed statistics.
	Fields() []string

	// History returns the history log configuration for this source.
	History() history.Config

	// Fetch downloads and parses the source's current observations,
	// recording the fetched URLs in the manifest.
	Fetch(ctx context.Context, f fetcher.Fetcher, mf *manifest.Manifest) ([]model.Record, error)
}
