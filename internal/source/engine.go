package source

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/oakmont-research/signal-cli/internal/config"
	"github.com/oakmont-research/signal-cli/internal/fetcher"
	"github.com/oakmont-research/signal-cli/internal/history"
	"github.com/oakmont-research/signal-cli/internal/ledger"
	"github.com/oakmont-research/signal-cli/internal/manifest"
	"github.com/oakmont-research/signal-cli/internal/model"
)

// Engine orchestrates ingestion runs. Sources run sequentially; each
// history log has exactly one writer.
type Engine struct {
	cfg     *config.Config
	fetcher fetcher.Fetcher
	ledger  ledger.Ledger
	reg     *Registry
}

// RunOpts configures which sources to ingest and how.
type RunOpts struct {
	Sources []string // restrict to specific source names
	Force   bool     // ignore ShouldRun() scheduling
}

// NewEngine creates a new ingestion engine.
func NewEngine(cfg *config.Config, f fetcher.Fetcher, led ledger.Ledger, reg *Registry) *Engine {
	return &Engine{
		cfg:     cfg,
		fetcher: f,
		ledger:  led,
		reg:     reg,
	}
}

// Run iterates over the selected sources, checks if each is due, fetches
// and validates its observations, and folds them into the source's
// history log. A fetch or parse failure fails that source's run and moves
// on; ledger and history I/O errors abort the whole run.
func (e *Engine) Run(ctx context.Context, opts RunOpts) error {
	log := zap.L().With(zap.String("component", "engine"))
	now := time.Now().UTC()

	sources, err := e.reg.Select(opts.Sources)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		log.Info("no sources selected")
		return nil
	}
	log.Info("selected sources", zap.Int("count", len(sources)))

	mf := manifest.Load(e.cfg.Manifest.Path)

	var ingested, skipped, failed int

	for _, src := range sources {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		srcLog := log.With(zap.String("source", src.Name()))

		if !opts.Force {
			lastRun, err := e.ledger.LastSuccess(ctx, src.Name())
			if err != nil {
				return eris.Wrapf(err, "engine: check last run for %s", src.Name())
			}
			if !src.ShouldRun(now, lastRun) {
				srcLog.Debug("skipping (not due)")
				skipped++
				continue
			}
		}

		srcLog.Info("starting ingest")
		run, err := e.ledger.Start(ctx, src.Name())
		if err != nil {
			return eris.Wrapf(err, "engine: start run for %s", src.Name())
		}

		start := time.Now()
		records, err := src.Fetch(ctx, e.fetcher, mf)
		elapsed := time.Since(start)

		if err != nil {
			srcLog.Error("ingest failed", zap.Error(err), zap.Duration("elapsed", elapsed))
			if logErr := e.ledger.Fail(ctx, run.ID, err.Error()); logErr != nil {
				return eris.Wrapf(logErr, "engine: record failure for %s", src.Name())
			}
			failed++
			continue
		}

		valid, dropped := validate(records, srcLog)

		upserted, err := e.persist(src, valid)
		if err != nil {
			return err
		}

		result := ledger.Result{RowsUpserted: int64(upserted), RowsDropped: int64(dropped)}
		if err := e.ledger.Complete(ctx, run.ID, result); err != nil {
			return eris.Wrapf(err, "engine: record completion for %s", src.Name())
		}

		srcLog.Info("ingest complete",
			zap.Int("upserted", upserted),
			zap.Int("dropped", dropped),
			zap.Duration("elapsed", elapsed),
		)
		ingested++
	}

	if err := mf.Save(e.cfg.Manifest.Path); err != nil {
		return err
	}

	log.Info("engine run complete",
		zap.Int("ingested", ingested),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)
	return nil
}

// persist folds validated records into the source's history log on disk
// and returns the number upserted.
func (e *Engine) persist(src Source, records []model.Record) (int, error) {
	hcfg := src.History()
	if e.cfg.History.RetentionCap > 0 {
		hcfg.RetentionCap = e.cfg.History.RetentionCap
	}
	st := history.New(hcfg)

	path := e.HistoryPath(src)
	hlog, err := st.Load(path)
	if err != nil {
		return 0, eris.Wrapf(err, "engine: load history for %s", src.Name())
	}
	st.Upsert(hlog, records...)
	if err := st.Save(hlog, path); err != nil {
		return 0, eris.Wrapf(err, "engine: save history for %s", src.Name())
	}
	return len(records), nil
}

// HistoryPath returns the on-disk path of a source's history log.
func (e *Engine) HistoryPath(src Source) string {
	return filepath.Join(e.cfg.History.Dir, src.HistoryFile())
}

// validate drops structurally invalid records and returns the survivors
// with the drop count.
func validate(records []model.Record, log *zap.Logger) ([]model.Record, int) {
	valid := records[:0]
	dropped := 0
	for _, r := range records {
		if err := model.Validate(r); err != nil {
			log.Warn("dropping invalid record", zap.String("identity", r.Identity.String()), zap.Error(err))
			dropped++
			continue
		}
		valid = append(valid, r)
	}
	return valid, dropped
}
