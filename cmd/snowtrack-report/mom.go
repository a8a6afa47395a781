package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"snowtrack/internal/core"
	"snowtrack/internal/metrics"
	"snowtrack/internal/report"
)

var (
	momMode     string
	momCustomer string
	momRegion   string
	momStatus   string
)

var momCmd = &cobra.Command{
	Use:   "mom",
	Short: "Print the month-over-month table",
	Long:  `Filters the records and prints each one with its change against the previous month of the same customer.`,
	RunE:  runMoM,
}

func init() {
	momCmd.Flags().StringVar(&momMode, "mode", "absolute", "change mode (absolute or percentage)")
	momCmd.Flags().StringVar(&momCustomer, "customer", "", "only this customer")
	momCmd.Flags().StringVar(&momRegion, "region", "", "only this region")
	momCmd.Flags().StringVar(&momStatus, "status", "", "only this project status")
	rootCmd.AddCommand(momCmd)
}

func runMoM(cmd *cobra.Command, args []string) error {
	mode, err := metrics.ParseMode(momMode)
	if err != nil {
		return err
	}
	filter, err := core.ParseFilter(momCustomer, momRegion, momStatus)
	if err != nil {
		return err
	}

	tracker, sess, cleanup, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	rows, err := tracker.MoM(cmd.Context(), sess, filter, mode)
	if err != nil {
		return fmt.Errorf("computing MoM: %w", err)
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "No records match the filter")
		return err
	}
	return report.WriteMoM(cmd.OutOrStdout(), rows, mode)
}
