package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tradeengine",
	Short: "HK/US equity signal generator and order executor",
	Long: `tradeengine runs the signal generator (scans a watchlist, scores
candidates, and publishes BUY/SELL signals) and the order executor
(consumes published signals and places broker orders), backed by a
durable Postgres-backed priority queue shared across both.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to configuration file")
}

// newLogger builds the process logger: structured JSON for production
// (the default, and the only sane choice once logs are shipped
// anywhere), or a human-readable console writer for local/paper runs.
func newLogger(jsonOutput bool, level string) zerolog.Logger {
	var w = os.Stderr
	var logger zerolog.Logger
	if jsonOutput {
		logger = zerolog.New(w)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"})
	}
	logger = logger.With().Timestamp().Logger()

	if lvl, err := zerolog.ParseLevel(level); err == nil {
		logger = logger.Level(lvl)
	}
	return logger
}
