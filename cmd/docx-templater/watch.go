// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdiddy/docx-templater/internal/convert"
	"github.com/pdiddy/docx-templater/internal/logging"
	"github.com/pdiddy/docx-templater/internal/watch"
	"github.com/pdiddy/docx-templater/pkg/types"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Convert and template documents as they appear in the directory",
	Long: `Watch monitors --dir and handles each new or changed file once it has
been quiet for the debounce window: .doc files are converted, .docx files
are templated. Converted files are picked up as new .docx files. Output
files are ignored. Stop with Ctrl-C.

With --initial, a full run over the directory happens before watching.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	initial, _ := cmd.Flags().GetBool("initial")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if initial {
		if _, err := convertStage(ctx, cfg, nil); err != nil {
			return err
		}
		if _, err := processStage(ctx, cfg, nil); err != nil {
			return err
		}
	}

	c, err := convert.New(ctx, cfg.Conversion)
	if errors.Is(err, convert.ErrBackendUnavailable) {
		logging.Get(ctx).Warn().Err(err).Msg("legacy files will not be converted")
		c, err = convert.New(ctx, types.ConversionConfig{Backend: types.BackendNone})
	}
	if err != nil {
		return err
	}

	store, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	p := newProcessor(cfg, store)

	var (
		counts tally
		run    types.Run
	)
	if store != nil {
		defer store.Close()
		run, err = store.BeginRun(ctx)
		if err != nil {
			return err
		}
		p.RunID = run.ID
	}

	w, err := watch.New(cfg.Dir, scanOptions(cfg), cfg.Watch.Debounce)
	if err != nil {
		return err
	}
	w.OnLegacy = func(ctx context.Context, path string) {
		convert.ConvertDocument(logging.WithLogger(ctx, logging.Component(ctx, "convert")), c, path, os.Stdout)
	}
	w.OnContainer = func(ctx context.Context, path string) {
		rec := p.ProcessOne(logging.WithLogger(ctx, logging.Component(ctx, "process")), path, os.Stdout)
		counts.add(rec.Status)
	}

	if err := w.Start(ctx); err != nil {
		w.Stop()
		return err
	}
	fmt.Fprintf(os.Stderr, "Watching %s (Ctrl-C to stop)\n", cfg.Dir)

	<-ctx.Done()
	if err := w.Stop(); err != nil {
		return fmt.Errorf("stopping watcher: %w", err)
	}

	if store != nil {
		run.Processed, run.Skipped, run.Failed = counts.get()
		if err := store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
			logging.Get(ctx).Warn().Err(err).Msg("recording run")
		}
	}

	stats := w.Stats()
	processed, skipped, failed := counts.get()
	printOutcome("watch", failed, processed+skipped+failed)
	logging.Get(ctx).Info().Int("events", stats.Events).Int("dispatched", stats.Dispatched).Msg("watch stopped")
	return nil
}

// tally counts template outcomes across watch events.
type tally struct {
	mu                         sync.Mutex
	processed, skipped, failed int
}

func (t *tally) add(s types.DocumentStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch s {
	case types.DocumentProcessed:
		t.processed++
	case types.DocumentSkipped:
		t.skipped++
	case types.DocumentFailed:
		t.failed++
	}
}

func (t *tally) get() (processed, skipped, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.processed, t.skipped, t.failed
}

func init() {
	addSourceFlags(watchCmd)
	addConvertFlags(watchCmd)
	addProcessFlags(watchCmd)
	watchCmd.Flags().Duration("debounce", types.DefaultConfig().Watch.Debounce, "quiet period before a changed file is handled")
	watchCmd.Flags().Bool("initial", false, "run both stages over the directory before watching")

	rootCmd.AddCommand(watchCmd)
}
