// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/docx-templater/internal/ledger"
)

var placeholdersCmd = &cobra.Command{
	Use:   "placeholders",
	Short: "List every placeholder emitted into processed documents",
	Long: `Placeholders aggregates the ledger into the inventory of placeholder
names a downstream templating engine must bind, with the number of documents
using each name and its total occurrences.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		jsonOutput, _ := cmd.Flags().GetBool("json")

		store, err := requireLedger(ctx, appConfig)
		if err != nil {
			return err
		}
		defer store.Close()

		usage, err := store.Placeholders(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), usage)
		}
		return formatPlaceholders(cmd.OutOrStdout(), usage)
	},
}

func formatPlaceholders(w io.Writer, usage []ledger.PlaceholderUsage) error {
	if len(usage) == 0 {
		fmt.Fprintln(w, "No placeholders recorded.")
		return nil
	}

	fmt.Fprintf(w, "%-40s  %9s  %11s\n", "Placeholder", "Documents", "Occurrences")
	fmt.Fprintln(w, strings.Repeat("-", 64))
	for _, u := range usage {
		fmt.Fprintf(w, "%-40s  %9d  %11d\n", truncate("{{"+u.Name+"}}", 40), u.Documents, u.Occurrences)
	}
	fmt.Fprintf(w, "\n%d placeholders\n", len(usage))
	return nil
}

func init() {
	placeholdersCmd.Flags().String("dir", ".", "source directory whose ledger is read")
	addLedgerFlag(placeholdersCmd)
	placeholdersCmd.Flags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(placeholdersCmd)
}
