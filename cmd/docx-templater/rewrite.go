// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/docx-templater/internal/rewrite"
)

var rewriteCmd = &cobra.Command{
	Use:   "rewrite [lines...]",
	Short: "Rewrite text lines and print the result",
	Long: `Rewrite applies the merge-field rules to each argument, or to each line of
standard input when no arguments are given, and prints one result line per
input line. Deleted annotation lines print as empty lines.

Use --trace to see which rule changed each line.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		trace, _ := cmd.Flags().GetBool("trace")
		out := cmd.OutOrStdout()

		if len(args) > 0 {
			for _, line := range args {
				printRewrite(out, line, trace)
			}
			return nil
		}

		scanner := bufio.NewScanner(cmd.InOrStdin())
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			printRewrite(out, scanner.Text(), trace)
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		return nil
	},
}

func printRewrite(w io.Writer, line string, trace bool) {
	if !trace {
		fmt.Fprintln(w, rewrite.Rewrite(line))
		return
	}

	fmt.Fprintf(w, "input:  %q\n", line)
	result := line
	for _, step := range rewrite.Trace(line) {
		if !step.Changed() {
			continue
		}
		if step.Deleted {
			fmt.Fprintf(w, "  %-22s deleted\n", step.Rule)
			result = ""
			break
		}
		fmt.Fprintf(w, "  %-22s %q\n", step.Rule, step.After)
		result = step.After
	}
	if names := rewrite.PlaceholderNames(result); len(names) > 0 {
		fmt.Fprintf(w, "  placeholders: %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(w, "output: %q\n", result)
}

func init() {
	rewriteCmd.Flags().Bool("trace", false, "show the effect of each rule")

	rootCmd.AddCommand(rewriteCmd)
}
