// Package history maintains append-only, deduplicated observation logs
// persisted as JSON files, one log per ingestion source. A log holds
// exactly one record per identity tuple, preserves a deterministic
// ordering, and is capped at a configurable retention size.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/oakmont-research/signal-cli/internal/model"
)

// DefaultSchemaVersion tags logs written by the current code. A persisted
// log carrying any other tag is treated as unreadable and reinitialized.
const DefaultSchemaVersion = "obs_history_v1"

// DefaultRetentionCap bounds a log when the source does not override it.
const DefaultRetentionCap = 500

// Ordering selects the sort policy a store keeps its items in.
type Ordering string

const (
	// OrderInsertion keeps append order; replacing an existing identity
	// preserves its position.
	OrderInsertion Ordering = "insertion"

	// OrderByDate keeps items stably sorted ascending by data_date.
	OrderByDate Ordering = "data_date"
)

// Config carries the per-store parameters. There is no package-level state;
// every source constructs its own store.
type Config struct {
	SchemaVersion string
	RetentionCap  int
	Ordering      Ordering
}

// Store applies one Config to load/upsert/save operations on a log.
type Store struct {
	cfg Config
}

// New creates a store, filling unset config fields with defaults.
func New(cfg Config) *Store {
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = DefaultSchemaVersion
	}
	if cfg.RetentionCap <= 0 {
		cfg.RetentionCap = DefaultRetentionCap
	}
	if cfg.Ordering == "" {
		cfg.Ordering = OrderInsertion
	}
	return &Store{cfg: cfg}
}

// Log is the persisted collection of observation records.
type Log struct {
	SchemaVersion string         `json:"schema_version"`
	Items         []model.Record `json:"items"`

	// Dropped counts malformed items discarded during Load. Audit only,
	// never persisted.
	Dropped int `json:"-"`
}

// rawLog defers item decoding so one malformed item cannot fail the load.
type rawLog struct {
	SchemaVersion string            `json:"schema_version"`
	Items         []json.RawMessage `json:"items"`
}

// Load reads a log from path. The policy is fail-open: a missing file, an
// unparseable file, a wrong container shape, or a schema tag mismatch all
// yield a fresh empty log with a logged warning, never an error. Malformed
// individual items inside an otherwise valid log are dropped and counted.
// Only a raw I/O failure on an existing file is returned as an error.
func (s *Store) Load(path string) (*Log, error) {
	fresh := &Log{SchemaVersion: s.cfg.SchemaVersion}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fresh, nil
		}
		return nil, eris.Wrapf(err, "history: read %s", path)
	}

	log := zap.L().With(zap.String("component", "history"), zap.String("path", path))

	var raw rawLog
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Warn("history file unreadable, reinitializing", zap.Error(err))
		return fresh, nil
	}
	if raw.SchemaVersion != s.cfg.SchemaVersion {
		log.Warn("history schema mismatch, reinitializing",
			zap.String("found", raw.SchemaVersion),
			zap.String("want", s.cfg.SchemaVersion),
		)
		return fresh, nil
	}

	out := &Log{SchemaVersion: s.cfg.SchemaVersion}
	for _, item := range raw.Items {
		var rec model.Record
		if err := json.Unmarshal(item, &rec); err != nil {
			out.Dropped++
			continue
		}
		if err := model.Validate(rec); err != nil {
			out.Dropped++
			continue
		}
		out.Items = append(out.Items, rec)
	}
	if out.Dropped > 0 {
		log.Warn("dropped malformed history items", zap.Int("dropped", out.Dropped))
	}

	s.truncate(out)
	return out, nil
}

// Upsert merges records into the log in input order. A record whose
// identity matches an existing item replaces it (in place under insertion
// ordering); otherwise it is appended. Later records in the same batch win
// on identity collision. The log is then re-sorted if the store orders by
// date, and truncated from the front to the retention cap.
func (s *Store) Upsert(log *Log, records ...model.Record) {
	for _, rec := range records {
		replaced := false
		for i := range log.Items {
			if log.Items[i].Identity.Equal(rec.Identity) {
				log.Items[i] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			log.Items = append(log.Items, rec)
		}
	}

	if s.cfg.Ordering == OrderByDate {
		sort.SliceStable(log.Items, func(i, j int) bool {
			return log.Items[i].DataDate < log.Items[j].DataDate
		})
	}

	s.truncate(log)
}

func (s *Store) truncate(log *Log) {
	if n := len(log.Items); n > s.cfg.RetentionCap {
		log.Items = log.Items[n-s.cfg.RetentionCap:]
	}
}

// Save writes the log to path atomically: the bytes go to a temp file in
// the same directory which is then renamed over the target, so an external
// reader never observes a partial write. I/O failures are fatal and
// returned.
func (s *Store) Save(log *Log, path string) error {
	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "history: marshal %s", path)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "history: mkdir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrapf(err, "history: create temp for %s", path)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrapf(err, "history: write temp for %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(err, "history: close temp for %s", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(err, "history: rename temp to %s", path)
	}
	return nil
}

// NumericSeries extracts, in log order, payload[field] from every record
// matching filter, skipping records where the field is absent or null. The
// result is the clean chronological series windowed statistics operate on.
// A nil filter matches every record.
func NumericSeries(log *Log, field string, filter func(model.Record) bool) []float64 {
	var series []float64
	for _, rec := range log.Items {
		if filter != nil && !filter(rec) {
			continue
		}
		v, ok := rec.Payload[field]
		if !ok || v == nil {
			continue
		}
		series = append(series, *v)
	}
	return series
}

// Entities returns the distinct identity entities present in the log, in
// first-seen order.
func Entities(log *Log) []string {
	seen := make(map[string]bool)
	var out []string
	for _, rec := range log.Items {
		e := rec.Identity.Entity()
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}
