// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Convert legacy files, then template every .docx in the directory",
	Long: `Run performs both stages over --dir: every .doc file without a .docx
sibling is converted first, then every .docx file (including the ones just
converted) is templated. Conversion failures do not stop the template stage.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		converted, err := convertStage(ctx, appConfig, nil)
		if err != nil {
			return err
		}
		fmt.Println()

		processed, err := processStage(ctx, appConfig, nil)
		if err != nil {
			return err
		}

		printOutcome("convert", converted.Failed, converted.Total())
		printOutcome("process", processed.Failed, processed.Total())

		if converted.HasFailures() || processed.HasFailures() {
			return fmt.Errorf("%d conversion and %d processing failure(s)", converted.Failed, processed.Failed)
		}
		return nil
	},
}

func init() {
	addSourceFlags(runCmd)
	addConvertFlags(runCmd)
	addProcessFlags(runCmd)

	rootCmd.AddCommand(runCmd)
}
