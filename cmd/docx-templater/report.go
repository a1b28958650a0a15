// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write the ledger report as YAML",
	Long: `Report writes recent runs, every document record, and the placeholder
inventory to a YAML file (default: <dir>/.docx-templater/report.yaml).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out, _ := cmd.Flags().GetString("out")
		runs, _ := cmd.Flags().GetInt("runs")
		if out == "" {
			out = filepath.Join(filepath.Dir(ledgerPath(appConfig)), "report.yaml")
		}

		store, err := requireLedger(ctx, appConfig)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.ExportYAML(ctx, out, runs); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", out)
		return nil
	},
}

func init() {
	reportCmd.Flags().String("dir", ".", "source directory whose ledger is read")
	addLedgerFlag(reportCmd)
	reportCmd.Flags().String("out", "", "report file (default: next to the ledger)")
	reportCmd.Flags().Int("runs", 20, "number of recent runs to include (0 = all)")

	rootCmd.AddCommand(reportCmd)
}
