// Package report renders signal snapshots as markdown for humans. The
// JSON shape is the machine contract; these tables are what ends up in a
// morning note.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/oakmont-research/signal-cli/internal/snapshot"
	"github.com/oakmont-research/signal-cli/internal/window"
)

// Renderer formats snapshots as markdown. The message printer groups
// digits (1,234,567) so exchange balances stay readable.
type Renderer struct {
	printer *message.Printer
}

// NewRenderer creates a markdown renderer.
func NewRenderer() *Renderer {
	return &Renderer{printer: message.NewPrinter(language.English)}
}

// Render produces the markdown report for one snapshot.
func (r *Renderer) Render(snap snapshot.Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", snap.Source)
	fmt.Fprintf(&b, "Stats as of %s.\n\n", snap.AsOfUTC)

	if len(snap.Signals) == 0 {
		b.WriteString("No signals.\n")
		return b.String()
	}

	windows := windowKeys(snap.Signals[0].Windows)

	b.WriteString("| Entity | Field | Value | N |")
	for _, w := range windows {
		fmt.Fprintf(&b, " %s z | %s pct |", w, w)
	}
	b.WriteString("\n")
	b.WriteString("|---|---|---:|---:|")
	for range windows {
		b.WriteString("---:|---:|")
	}
	b.WriteString("\n")

	for _, sig := range snap.Signals {
		fmt.Fprintf(&b, "| %s | %s | %s | %d |", sig.Entity, sig.Field,
			r.value(sig.Value), sig.SeriesLen)
		for _, w := range windows {
			res := sig.Windows[w]
			fmt.Fprintf(&b, " %s | %s |", r.zCell(res), r.pCell(res))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// Write renders each snapshot to <dir>/<source>.md and an index.md
// linking them.
func (r *Renderer) Write(dir string, snaps []snapshot.Snapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "report: mkdir %s", dir)
	}

	var index strings.Builder
	index.WriteString("# Signal reports\n\n")

	for _, snap := range snaps {
		name := snap.Source + ".md"
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(r.Render(snap)), 0o644); err != nil {
			return eris.Wrapf(err, "report: write %s", path)
		}
		fmt.Fprintf(&index, "- [%s](%s) (as of %s)\n", snap.Source, name, snap.AsOfUTC)
	}

	indexPath := filepath.Join(dir, "index.md")
	if err := os.WriteFile(indexPath, []byte(index.String()), 0o644); err != nil {
		return eris.Wrapf(err, "report: write %s", indexPath)
	}
	return nil
}

func (r *Renderer) value(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return r.printer.Sprintf("%.2f", *v)
}

// zCell spells out why a z-score is absent rather than leaving a blank.
func (r *Renderer) zCell(res window.Result) string {
	if res.Z == nil {
		if res.NAReason != nil {
			return "NA (" + *res.NAReason + ")"
		}
		return "NA"
	}
	s := fmt.Sprintf("%+.2f", *res.Z)
	if res.NAReason != nil && *res.NAReason == window.NAReasonStdZero {
		s += " (flat)"
	}
	return s
}

func (r *Renderer) pCell(res window.Result) string {
	if res.P == nil {
		return "NA"
	}
	return fmt.Sprintf("%.1f", *res.P)
}

// windowKeys returns the window column keys sorted by window size, so
// w60 precedes w252 despite lexicographic order saying otherwise.
func windowKeys(windows map[string]window.Result) []string {
	keys := make([]string, 0, len(windows))
	for k := range windows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		var a, b int
		fmt.Sscanf(keys[i], "w%d", &a) //nolint:errcheck
		fmt.Sscanf(keys[j], "w%d", &b) //nolint:errcheck
		return a < b
	})
	return keys
}
