package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oakmont-research/signal-cli/internal/ledger"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show the ingestion run ledger",
	Long:  "Displays recorded ingestion runs, most recent first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		sourceName, _ := cmd.Flags().GetString("source")
		statusStr, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		led, err := ledger.Open(ctx, cfg.Ledger)
		if err != nil {
			return eris.Wrap(err, "runs: open ledger")
		}
		defer led.Close()

		entries, err := led.List(ctx, ledger.Filter{
			Source: sourceName,
			Status: ledger.RunStatus(statusStr),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs")
		}

		if len(entries) == 0 {
			zap.L().Info("no runs recorded, run 'ingest' to start ingesting sources")
			return nil
		}

		formatRuns(os.Stdout, entries)
		return nil
	},
}

func init() {
	runsCmd.Flags().String("source", "", "filter by source name")
	runsCmd.Flags().String("status", "", "filter by status: running, complete, failed")
	runsCmd.Flags().Int("limit", 50, "maximum runs to show")
	rootCmd.AddCommand(runsCmd)
}

// formatRuns writes a tabular representation of ledger entries to w.
func formatRuns(out io.Writer, entries []ledger.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tSTARTED\tDURATION\tUPSERTED\tDROPPED\tERROR")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t-------\t--------\t--------\t-------\t-----")

	for _, e := range entries {
		dur := "-"
		if e.CompletedAt != nil {
			dur = e.CompletedAt.Sub(e.StartedAt).Round(time.Second).String()
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			shortID(e.ID),
			e.Source,
			e.Status,
			e.StartedAt.Format("2006-01-02 15:04"),
			dur,
			e.RowsUpserted,
			e.RowsDropped,
			truncate(e.Error, 60),
		)
	}
	_ = w.Flush()
}

// shortID trims a uuid to its first block for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
