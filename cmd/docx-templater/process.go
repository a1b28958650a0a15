// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/pdiddy/docx-templater/internal/ledger"
	"github.com/pdiddy/docx-templater/internal/logging"
	"github.com/pdiddy/docx-templater/internal/process"
	"github.com/pdiddy/docx-templater/internal/scan"
	"github.com/pdiddy/docx-templater/pkg/types"
)

var processCmd = &cobra.Command{
	Use:   "process [files...]",
	Short: "Rewrite merge fields in .docx files into placeholders",
	Long: `Process rewrites the bracketed merge fields of every paragraph and table
cell into {{placeholder}} tokens and saves the result as a prefixed copy next
to the source (letter.docx -> output_letter.docx). Sources are never
modified. Without arguments every .docx file in --dir is processed.

Documents whose content is unchanged since the last recorded run are
skipped unless --force is given.`,
	RunE: runProcess,
}

func runProcess(cmd *cobra.Command, args []string) error {
	result, err := processStage(cmd.Context(), appConfig, args)
	if err != nil {
		return err
	}
	printOutcome("process", result.Failed, result.Total())
	return result.Err()
}

// processStage runs the template stage over args or the source directory,
// recording the batch in the ledger when it is enabled.
func processStage(ctx context.Context, cfg types.Config, args []string) (process.BatchResult, error) {
	paths, err := inputs(cfg, args, scan.ContainerFiles)
	if err != nil {
		return process.BatchResult{}, err
	}

	ctx = logging.WithLogger(ctx, logging.Component(ctx, "process"))
	if len(paths) == 0 {
		logging.Get(ctx).Info().Str("dir", cfg.Dir).Msg("no docx files found")
		return process.BatchResult{}, nil
	}

	store, err := openLedger(ctx, cfg)
	if err != nil {
		return process.BatchResult{}, err
	}

	p := newProcessor(cfg, store)
	if store == nil {
		return p.ProcessBatch(ctx, paths, os.Stdout), nil
	}
	defer store.Close()
	return runRecorded(ctx, store, p, paths)
}

// newProcessor builds a processor on the OS filesystem. A nil store yields
// a processor without a ledger.
func newProcessor(cfg types.Config, store *ledger.Store) *process.Processor {
	var l process.Ledger
	if store != nil {
		l = store
	}
	return process.New(afero.NewOsFs(), cfg.Process, l)
}

// runRecorded wraps one batch in a ledger run.
func runRecorded(ctx context.Context, store *ledger.Store, p *process.Processor, paths []string) (process.BatchResult, error) {
	run, err := store.BeginRun(ctx)
	if err != nil {
		return process.BatchResult{}, err
	}
	p.RunID = run.ID

	result := p.ProcessBatch(ctx, paths, os.Stdout)

	run.Processed, run.Skipped, run.Failed = result.Processed, result.Skipped, result.Failed
	if err := store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		logging.Get(ctx).Warn().Err(err).Msg("recording run")
	}
	return result, nil
}

func init() {
	addSourceFlags(processCmd)
	addProcessFlags(processCmd)

	rootCmd.AddCommand(processCmd)
}
