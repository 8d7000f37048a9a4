package main

import (
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/oakmont-research/signal-cli/internal/config"
	"github.com/oakmont-research/signal-cli/internal/history"
	"github.com/oakmont-research/signal-cli/internal/snapshot"
	"github.com/oakmont-research/signal-cli/internal/source"
)

// buildSnapshots loads each selected source's history log and computes
// its signal snapshot. Histories are saved via atomic rename, so a read
// here never observes a partial file.
func buildSnapshots(c *config.Config, reg *source.Registry, names []string, now time.Time) ([]snapshot.Snapshot, error) {
	sources, err := reg.Select(names)
	if err != nil {
		return nil, err
	}

	snaps := make([]snapshot.Snapshot, 0, len(sources))
	for _, src := range sources {
		hcfg := src.History()
		if c.History.RetentionCap > 0 {
			hcfg.RetentionCap = c.History.RetentionCap
		}
		st := history.New(hcfg)

		path := filepath.Join(c.History.Dir, src.HistoryFile())
		hlog, err := st.Load(path)
		if err != nil {
			return nil, eris.Wrapf(err, "snapshot: load history for %s", src.Name())
		}
		snaps = append(snaps, snapshot.Build(src.Name(), hlog, src.Fields(), c.History.Windows, now))
	}
	return snaps, nil
}
