package main

import (
	"github.com/spf13/cobra"

	"snowtrack/internal/report"
)

var customersCmd = &cobra.Command{
	Use:   "customers",
	Short: "List distinct customers in first-seen order",
	RunE:  runCustomers,
}

func init() {
	rootCmd.AddCommand(customersCmd)
}

func runCustomers(cmd *cobra.Command, args []string) error {
	tracker, sess, cleanup, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	customers, err := tracker.Customers(cmd.Context(), sess)
	if err != nil {
		return err
	}
	return report.WriteCustomers(cmd.OutOrStdout(), customers)
}
