// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/docx-templater/internal/convert"
	"github.com/pdiddy/docx-templater/internal/logging"
	"github.com/pdiddy/docx-templater/internal/scan"
	"github.com/pdiddy/docx-templater/pkg/types"
)

var convertCmd = &cobra.Command{
	Use:   "convert [files...]",
	Short: "Convert legacy .doc files to .docx",
	Long: `Convert turns legacy .doc files into .docx files written next to them.
Files that already have a .docx sibling are skipped. Without arguments every
.doc file in --dir is converted.

Backends: soffice (LibreOffice on the PATH), container (a converter image
run through docker or podman), and none (skip conversion).`,
	RunE: runConvert,
}

func runConvert(cmd *cobra.Command, args []string) error {
	result, err := convertStage(cmd.Context(), appConfig, args)
	if err != nil {
		return err
	}
	printOutcome("convert", result.Failed, result.Total())
	if result.HasFailures() {
		return fmt.Errorf("%d file(s) failed conversion", result.Failed)
	}
	return nil
}

// convertStage runs the legacy conversion stage over args or the source
// directory.
func convertStage(ctx context.Context, cfg types.Config, args []string) (convert.BatchResult, error) {
	paths, err := inputs(cfg, args, scan.LegacyFiles)
	if err != nil {
		return convert.BatchResult{}, err
	}

	ctx = logging.WithLogger(ctx, logging.Component(ctx, "convert"))
	if len(paths) == 0 {
		logging.Get(ctx).Info().Str("dir", cfg.Dir).Msg("no legacy files found")
		return convert.BatchResult{}, nil
	}

	c, err := convert.New(ctx, cfg.Conversion)
	if errors.Is(err, convert.ErrBackendUnavailable) {
		logging.Get(ctx).Warn().Err(err).Msg("conversion disabled for this run")
		c, err = convert.New(ctx, types.ConversionConfig{Backend: types.BackendNone})
	}
	if err != nil {
		return convert.BatchResult{}, err
	}
	return convert.ConvertBatch(ctx, c, paths, os.Stdout), nil
}

func init() {
	addSourceFlags(convertCmd)
	addConvertFlags(convertCmd)

	rootCmd.AddCommand(convertCmd)
}
