package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oakmont-research/signal-cli/internal/config"
)

var cfg *config.Config

// setup loads configuration and installs the global logger. It runs once,
// before any subcommand, via PersistentPreRunE.
func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load()
	if err != nil {
		return eris.Wrap(err, "load config")
	}
	if err := config.InitLogger(c.Log); err != nil {
		return eris.Wrap(err, "init logger")
	}
	cfg = c
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "signal-cli",
	Short: "Market indicator history and windowed statistics",
	Long: "Ingests market indicator feeds into capped observation histories " +
		"and computes trailing-window z-scores and percentiles over them.",
	PersistentPreRunE: setup,
}

func main() {
	err := rootCmd.Execute()
	_ = zap.L().Sync()
	if err != nil {
		os.Exit(1)
	}
}
