package main

import (
	"github.com/spf13/cobra"
)

var (
	recordsFile string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "snowtrack-report",
	Short: "Month-over-month consumption reports from a records file",
	Long: `snowtrack-report computes the month-over-month consumption table offline.
Records are read from a YAML file with a top-level "records" list, loaded into
an in-memory store and filtered exactly like the HTTP API does.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&recordsFile, "file", "f", "records.yaml", "YAML file with the records")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}
