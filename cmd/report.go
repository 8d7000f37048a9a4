package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oakmont-research/signal-cli/internal/report"
	"github.com/oakmont-research/signal-cli/internal/source"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write markdown signal reports",
	Long:  "Computes the current snapshot for each source and writes per-source markdown reports plus an index.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := zap.L().With(zap.String("command", "report"))

		sourcesStr, _ := cmd.Flags().GetString("sources")
		dir, _ := cmd.Flags().GetString("out")
		if dir == "" {
			dir = cfg.Report.Dir
		}

		var names []string
		if sourcesStr != "" {
			for _, name := range strings.Split(sourcesStr, ",") {
				names = append(names, strings.TrimSpace(name))
			}
		}

		reg := source.NewRegistry(cfg)
		snaps, err := buildSnapshots(cfg, reg, names, time.Now().UTC())
		if err != nil {
			return eris.Wrap(err, "report")
		}

		if err := report.NewRenderer().Write(dir, snaps); err != nil {
			return eris.Wrap(err, "report")
		}

		log.Info("reports written", zap.String("dir", dir), zap.Int("sources", len(snaps)))
		fmt.Printf("Wrote %d reports to %s\n", len(snaps), dir)
		return nil
	},
}

func init() {
	reportCmd.Flags().String("sources", "", "comma-separated source names")
	reportCmd.Flags().String("out", "", "output directory (default from config)")
	rootCmd.AddCommand(reportCmd)
}
