package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oakmont-research/signal-cli/internal/fetcher"
	"github.com/oakmont-research/signal-cli/internal/ledger"
	"github.com/oakmont-research/signal-cli/internal/source"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest indicator sources",
	Long: `Fetch each indicator source and fold its observations into the
per-source history logs.

By default, ingests all sources whose ShouldRun() returns true.
Use --sources for specific sources, --force to ignore scheduling.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "ingest"))

		led, err := ledger.Open(ctx, cfg.Ledger)
		if err != nil {
			return eris.Wrap(err, "ingest: open ledger")
		}
		defer led.Close()

		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  cfg.Fetch.UserAgent,
			Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			MaxRetries: cfg.Fetch.MaxRetries,
		})

		reg := source.NewRegistry(cfg)
		engine := source.NewEngine(cfg, f, led, reg)

		opts := parseIngestOpts(cmd)
		log.Info("starting ingest",
			zap.Strings("sources", opts.Sources),
			zap.Bool("force", opts.Force),
		)

		if err := engine.Run(ctx, opts); err != nil {
			return eris.Wrap(err, "ingest")
		}

		fmt.Println("Ingest complete")
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("sources", "", "comma-separated source names (e.g., fred,pricevol)")
	ingestCmd.Flags().Bool("force", false, "ignore ShouldRun() scheduling logic")
	rootCmd.AddCommand(ingestCmd)
}

// parseIngestOpts extracts source.RunOpts from the cobra command flags.
func parseIngestOpts(cmd *cobra.Command) source.RunOpts {
	sourcesStr, _ := cmd.Flags().GetString("sources")
	force, _ := cmd.Flags().GetBool("force")

	opts := source.RunOpts{Force: force}
	if sourcesStr != "" {
		for _, name := range strings.Split(sourcesStr, ",") {
			opts.Sources = append(opts.Sources, strings.TrimSpace(name))
		}
	}
	return opts
}
