// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/docx-templater/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List processed documents recorded in the ledger",
	Long: `History lists the ledger records of the source directory, most recently
processed first. Use --runs to list batch runs instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		showRuns, _ := cmd.Flags().GetBool("runs")
		out := cmd.OutOrStdout()

		store, err := requireLedger(ctx, appConfig)
		if err != nil {
			return err
		}
		defer store.Close()

		if showRuns {
			runs, err := store.Runs(ctx, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(out, runs)
			}
			return formatRuns(out, runs)
		}

		docs, err := store.History(ctx, limit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(out, docs)
		}
		return formatHistory(out, docs)
	},
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatHistory(w io.Writer, docs []types.Document) error {
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents recorded.")
		return nil
	}

	fmt.Fprintf(w, "%-20s  %-9s  %-30s  %7s  %7s  %s\n",
		"Processed", "Status", "Document", "Changed", "Deleted", "Placeholders")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, d := range docs {
		name := truncate(filepath.Base(d.Path), 30)
		fmt.Fprintf(w, "%-20s  %-9s  %-30s  %7d  %7d  %d\n",
			d.ProcessedAt.Local().Format("2006-01-02 15:04:05"), d.Status, name,
			d.Changed, d.Deleted, len(d.Placeholders))
		if d.Error != "" {
			fmt.Fprintf(w, "%22s%s\n", "", d.Error)
		}
	}
	fmt.Fprintf(w, "\n%d documents\n", len(docs))
	return nil
}

func formatRuns(w io.Writer, runs []types.Run) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	fmt.Fprintf(w, "%-36s  %-20s  %9s  %7s  %6s\n", "Run", "Started", "Processed", "Skipped", "Failed")
	fmt.Fprintln(w, strings.Repeat("-", 86))
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-20s  %9d  %7d  %6d\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Processed, r.Skipped, r.Failed)
	}
	return nil
}

// truncate shortens s to at most n characters, counted in runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	historyCmd.Flags().String("dir", ".", "source directory whose ledger is read")
	addLedgerFlag(historyCmd)
	historyCmd.Flags().Int("limit", 50, "maximum records to list (0 = all)")
	historyCmd.Flags().Bool("runs", false, "list batch runs instead of documents")
	historyCmd.Flags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(historyCmd)
}
