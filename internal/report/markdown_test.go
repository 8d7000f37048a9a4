package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmont-research/signal-cli/internal/history"
	"github.com/oakmont-research/signal-cli/internal/model"
	"github.com/oakmont-research/signal-cli/internal/snapshot"
)

func buildLog(t *testing.T, values []float64) *history.Log {
	t.Helper()
	st := history.New(history.Config{})
	log, err := st.Load(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	for i, v := range values {
		st.Upsert(log, model.Record{
			Identity: model.Identity{"GS10", dateFor(i)},
			DataDate: dateFor(i),
			Payload:  map[string]*float64{"value": model.Float(v)},
		})
	}
	return log
}

func dateFor(i int) string {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i).Format("2006-01-02")
}

func TestRender_Table(t *testing.T) {
	t.Parallel()

	log := buildLog(t, []float64{10, 20, 30, 40, 50})
	snap := snapshot.Build("fred", log, []string{"value"}, []int{5, 60}, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))

	out := NewRenderer().Render(snap)

	assert.Contains(t, out, "# fred")
	assert.Contains(t, out, "Stats as of 2026-03-10T12:00:00Z")
	assert.Contains(t, out, "| GS10 | value | 50.00 | 5 |")
	// Five observations fill the 5-window but not the 60-window.
	assert.Contains(t, out, "+1.41")
	assert.Contains(t, out, "NA (insufficient_history:5/60)")

	// Window columns come out size-ordered.
	assert.Less(t, strings.Index(out, "w5 z"), strings.Index(out, "w60 z"))
}

func TestRender_FlatSeries(t *testing.T) {
	t.Parallel()

	log := buildLog(t, []float64{7, 7, 7})
	snap := snapshot.Build("fred", log, []string{"value"}, []int{3}, time.Now())

	out := NewRenderer().Render(snap)
	assert.Contains(t, out, "+0.00 (flat)")
	assert.Contains(t, out, "100.0")
}

func TestRender_EmptySnapshot(t *testing.T) {
	t.Parallel()

	snap := snapshot.Snapshot{Source: "fred", AsOfUTC: "2026-03-10T12:00:00Z"}
	out := NewRenderer().Render(snap)
	assert.Contains(t, out, "No signals.")
}

func TestWrite_PerSourceAndIndex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	log := buildLog(t, []float64{1, 2, 3})
	snaps := []snapshot.Snapshot{
		snapshot.Build("fred", log, []string{"value"}, []int{3}, time.Now()),
		snapshot.Build("pricevol", log, []string{"value"}, []int{3}, time.Now()),
	}

	require.NoError(t, NewRenderer().Write(dir, snaps))

	for _, name := range []string{"fred.md", "pricevol.md", "index.md"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	index, err := os.ReadFile(filepath.Join(dir, "index.md"))
	require.NoError(t, err)
	assert.Contains(t, string(index), "[fred](fred.md)")
	assert.Contains(t, string(index), "[pricevol](pricevol.md)")
}
