package history

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmont-research/signal-cli/internal/model"
)

func record(entity, date string, balance float64) model.Record {
	return model.Record{
		Identity: model.Identity{entity, date},
		DataDate: date,
		Payload:  map[string]*float64{"balance": model.Float(balance)},
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	log, err := s.Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSchemaVersion, log.SchemaVersion)
	assert.Empty(t, log.Items)
	assert.Zero(t, log.Dropped)
}

func TestLoadFailOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"not json", "not json at all"},
		{"wrong container type", `[1,2,3]`},
		{"items not a list", `{"schema_version":"obs_history_v1","items":{"a":1}}`},
		{"schema mismatch", `{"schema_version":"obs_history_v99","items":[]}`},
		{"missing schema tag", `{"items":[]}`},
		{"empty file", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "history.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			s := New(Config{})
			log, err := s.Load(path)
			require.NoError(t, err)
			assert.Equal(t, DefaultSchemaVersion, log.SchemaVersion)
			assert.Empty(t, log.Items)
		})
	}
}

func TestLoadDropsMalformedItems(t *testing.T) {
	t.Parallel()

	content := `{
	  "schema_version": "obs_history_v1",
	  "items": [
	    {"identity": ["TWSE", "2024-01-02"], "data_date": "2024-01-02", "payload": {"balance": 100}},
	    "not an object",
	    {"data_date": "2024-01-03", "payload": {"balance": 101}},
	    {"identity": ["TWSE", "2024-01-04"], "data_date": "2024-01-04"},
	    {"identity": ["TWSE", "2024-01-05"], "data_date": "2024-01-05", "payload": {"balance": null}}
	  ]
	}`
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s := New(Config{})
	log, err := s.Load(path)
	require.NoError(t, err)

	// The record with a null value survives; the string item, the missing
	// identity, and the missing payload do not.
	require.Len(t, log.Items, 2)
	assert.Equal(t, 3, log.Dropped)
	assert.Equal(t, model.Identity{"TWSE", "2024-01-02"}, log.Items[0].Identity)
	assert.Equal(t, model.Identity{"TWSE", "2024-01-05"}, log.Items[1].Identity)
}

func TestUpsertReplacesSameIdentity(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	log := &Log{SchemaVersion: DefaultSchemaVersion}

	s.Upsert(log, record("TWSE", "2024-01-02", 100))
	s.Upsert(log, record("TWSE", "2024-01-02", 105))

	require.Len(t, log.Items, 1)
	assert.Equal(t, 105.0, *log.Items[0].Payload["balance"])
}

func TestUpsertPreservesPositionOnReplace(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	log := &Log{SchemaVersion: DefaultSchemaVersion}
	s.Upsert(log,
		record("TWSE", "2024-01-02", 1),
		record("TWSE", "2024-01-03", 2),
		record("TWSE", "2024-01-04", 3),
	)

	s.Upsert(log, record("TWSE", "2024-01-03", 99))

	require.Len(t, log.Items, 3)
	assert.Equal(t, "2024-01-02", log.Items[0].DataDate)
	assert.Equal(t, "2024-01-03", log.Items[1].DataDate)
	assert.Equal(t, "2024-01-04", log.Items[2].DataDate)
	assert.Equal(t, 99.0, *log.Items[1].Payload["balance"])
}

func TestUpsertLastWriteWinsWithinBatch(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	log := &Log{SchemaVersion: DefaultSchemaVersion}

	s.Upsert(log,
		record("TWSE", "2024-01-02", 100),
		record("TWSE", "2024-01-02", 107),
	)

	require.Len(t, log.Items, 1)
	assert.Equal(t, 107.0, *log.Items[0].Payload["balance"])
}

func TestUpsertCapEvictsOldest(t *testing.T) {
	t.Parallel()

	s := New(Config{RetentionCap: 3})
	log := &Log{SchemaVersion: DefaultSchemaVersion}

	for i := 1; i <= 5; i++ {
		s.Upsert(log, record("TWSE", fmt.Sprintf("2024-01-%02d", i), float64(i)))
		assert.LessOrEqual(t, len(log.Items), 3)
	}

	require.Len(t, log.Items, 3)
	assert.Equal(t, "2024-01-03", log.Items[0].DataDate)
	assert.Equal(t, "2024-01-04", log.Items[1].DataDate)
	assert.Equal(t, "2024-01-05", log.Items[2].DataDate)
}

func TestUpsertDedupUnderCap(t *testing.T) {
	t.Parallel()

	s := New(Config{RetentionCap: 10})
	log := &Log{SchemaVersion: DefaultSchemaVersion}

	for i := 0; i < 20; i++ {
		s.Upsert(log, record("TWSE", "2024-01-02", float64(i)))
	}

	require.Len(t, log.Items, 1)
	assert.Equal(t, 19.0, *log.Items[0].Payload["balance"])
}

func TestUpsertOrderByDate(t *testing.T) {
	t.Parallel()

	s := New(Config{Ordering: OrderByDate})
	log := &Log{SchemaVersion: DefaultSchemaVersion}

	// Arrives newest first, as the FRED API returns it.
	s.Upsert(log,
		record("GDP", "2024-03-01", 3),
		record("GDP", "2024-01-01", 1),
		record("GDP", "2024-02-01", 2),
	)

	require.Len(t, log.Items, 3)
	assert.Equal(t, "2024-01-01", log.Items[0].DataDate)
	assert.Equal(t, "2024-02-01", log.Items[1].DataDate)
	assert.Equal(t, "2024-03-01", log.Items[2].DataDate)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data", "history.json")
	s := New(Config{})
	log := &Log{SchemaVersion: DefaultSchemaVersion}
	s.Upsert(log,
		record("TWSE", "2024-01-02", 100),
		record("TWSE", "2024-01-03", 105),
	)
	require.NoError(t, s.Save(log, path))

	loaded, err := s.Load(path)
	require.NoError(t, err)
	assert.Equal(t, log.Items, loaded.Items)
	assert.Zero(t, loaded.Dropped)
}

func TestSaveIdempotentBytes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")
	s := New(Config{})

	log := &Log{SchemaVersion: DefaultSchemaVersion}
	s.Upsert(log, record("TWSE", "2024-01-02", 100), record("TWSE", "2024-01-03", 105))
	require.NoError(t, s.Save(log, path))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	// Re-running the same upsert and save must produce byte-identical output.
	loaded, err := s.Load(path)
	require.NoError(t, err)
	s.Upsert(loaded, record("TWSE", "2024-01-02", 100))
	require.NoError(t, s.Save(loaded, path))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")
	s := New(Config{})
	log := &Log{SchemaVersion: DefaultSchemaVersion}
	s.Upsert(log, record("TWSE", "2024-01-02", 100))
	require.NoError(t, s.Save(log, path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "history.json", entries[0].Name())
}

func TestLoadTruncatesWhenCapShrinks(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.json")
	wide := New(Config{RetentionCap: 10})
	log := &Log{SchemaVersion: DefaultSchemaVersion}
	for i := 1; i <= 6; i++ {
		wide.Upsert(log, record("TWSE", fmt.Sprintf("2024-01-%02d", i), float64(i)))
	}
	require.NoError(t, wide.Save(log, path))

	narrow := New(Config{RetentionCap: 4})
	loaded, err := narrow.Load(path)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 4)
	assert.Equal(t, "2024-01-03", loaded.Items[0].DataDate)
}

func TestNumericSeries(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	log := &Log{SchemaVersion: DefaultSchemaVersion}
	s.Upsert(log,
		model.Record{
			Identity: model.Identity{"GDP", "2024-01-01"},
			DataDate: "2024-01-01",
			Payload:  map[string]*float64{"value": model.Float(1.0)},
		},
		model.Record{
			Identity: model.Identity{"UNRATE", "2024-01-01"},
			DataDate: "2024-01-01",
			Payload:  map[string]*float64{"value": model.Float(4.1)},
		},
		model.Record{
			Identity: model.Identity{"GDP", "2024-02-01"},
			DataDate: "2024-02-01",
			Payload:  map[string]*float64{"value": nil},
		},
		model.Record{
			Identity: model.Identity{"GDP", "2024-03-01"},
			DataDate: "2024-03-01",
			Payload:  map[string]*float64{"other": model.Float(9)},
		},
		model.Record{
			Identity: model.Identity{"GDP", "2024-04-01"},
			DataDate: "2024-04-01",
			Payload:  map[string]*float64{"value": model.Float(2.0)},
		},
	)

	gdpOnly := func(r model.Record) bool { return r.Identity.Entity() == "GDP" }

	// Null and absent fields are excluded, other entities filtered out.
	assert.Equal(t, []float64{1.0, 2.0}, NumericSeries(log, "value", gdpOnly))

	// Nil filter matches everything.
	assert.Equal(t, []float64{1.0, 4.1, 2.0}, NumericSeries(log, "value", nil))

	assert.Empty(t, NumericSeries(log, "missing_field", nil))
}

func TestEntities(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	log := &Log{SchemaVersion: DefaultSchemaVersion}
	s.Upsert(log,
		record("GDP", "2024-01-01", 1),
		record("UNRATE", "2024-01-01", 2),
		record("GDP", "2024-02-01", 3),
	)

	assert.Equal(t, []string{"GDP", "UNRATE"}, Entities(log))
}
