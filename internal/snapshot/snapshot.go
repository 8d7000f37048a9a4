// Package snapshot joins a history log with the window statistics engine,
// producing the per-field signal snapshot that reports and the status
// server expose.
package snapshot

import (
	"fmt"
	"time"

	"github.com/oakmont-research/signal-cli/internal/history"
	"github.com/oakmont-research/signal-cli/internal/model"
	"github.com/oakmont-research/signal-cli/internal/window"
)

// DefaultWindows are the canonical short and long trailing windows, roughly
// a quarter and a year of trading days.
var DefaultWindows = []int{60, 252}

// FieldSignal is the computed signal for one payload field of one entity:
// the latest raw value, the count of contributing observations, and one
// window result per configured window size, keyed "w<n>".
type FieldSignal struct {
	Entity    string                   `json:"entity"`
	Field     string                   `json:"field"`
	Value     *float64                 `json:"value"`
	SeriesLen int                      `json:"series_len"`
	Windows   map[string]window.Result `json:"windows"`
}

// Snapshot is the full signal output for one source at one point in time.
type Snapshot struct {
	Source  string        `json:"source"`
	AsOfUTC string        `json:"stats_as_of_ts"`
	Signals []FieldSignal `json:"signals"`
}

// Build computes a snapshot over log for the given tracked fields and
// window sizes. Signals are grouped per entity in first-seen log order, so
// output is deterministic for a deterministic log. Entities or fields with
// no observations still yield a signal (all-NA) rather than being omitted.
func Build(source string, log *history.Log, fields []string, windows []int, now time.Time) Snapshot {
	if len(windows) == 0 {
		windows = DefaultWindows
	}

	snap := Snapshot{
		Source:  source,
		AsOfUTC: now.UTC().Format(time.RFC3339),
	}

	entities := history.Entities(log)
	if len(entities) == 0 {
		entities = []string{""}
	}

	for _, entity := range entities {
		filter := entityFilter(entity)
		for _, field := range fields {
			series := history.NumericSeries(log, field, filter)

			sig := FieldSignal{
				Entity:    entity,
				Field:     field,
				SeriesLen: len(series),
				Windows:   make(map[string]window.Result, len(windows)),
			}
			if len(series) > 0 {
				v := series[len(series)-1]
				sig.Value = &v
			}
			for _, n := range windows {
				sig.Windows[fmt.Sprintf("w%d", n)] = window.Compute(series, n)
			}
			snap.Signals = append(snap.Signals, sig)
		}
	}

	return snap
}

func entityFilter(entity string) func(model.Record) bool {
	if entity == "" {
		return nil
	}
	return func(r model.Record) bool {
		return r.Identity.Entity() == entity
	}
}
