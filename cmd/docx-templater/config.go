// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/docx-templater/internal/ledger"
	"github.com/pdiddy/docx-templater/internal/process"
	"github.com/pdiddy/docx-templater/internal/scan"
	"github.com/pdiddy/docx-templater/pkg/types"
)

// flagKeys maps command-line flags to configuration keys. A flag only
// overrides its key on commands that define it.
var flagKeys = map[string]string{
	"verbose":         "logging.verbosity",
	"log-file":        "logging.file",
	"dir":             "dir",
	"recursive":       "recursive",
	"backend":         "conversion.backend",
	"soffice":         "conversion.soffice_path",
	"image":           "conversion.image",
	"timeout":         "conversion.timeout",
	"prefix":          "process.output_prefix",
	"headers-footers": "process.headers_footers",
	"workers":         "process.workers",
	"force":           "process.force",
	"ledger":          "ledger.path",
	"debounce":        "watch.debounce",
}

func setDefaults(v *viper.Viper) {
	d := types.DefaultConfig()
	v.SetDefault("dir", d.Dir)
	v.SetDefault("recursive", d.Recursive)
	v.SetDefault("conversion.backend", string(d.Conversion.Backend))
	v.SetDefault("conversion.soffice_path", d.Conversion.SofficePath)
	v.SetDefault("conversion.image", d.Conversion.Image)
	v.SetDefault("conversion.timeout", d.Conversion.Timeout)
	v.SetDefault("process.output_prefix", d.Process.OutputPrefix)
	v.SetDefault("process.headers_footers", d.Process.HeadersFooters)
	v.SetDefault("process.workers", d.Process.Workers)
	v.SetDefault("process.force", d.Process.Force)
	v.SetDefault("ledger.enabled", d.Ledger.Enabled)
	v.SetDefault("ledger.path", d.Ledger.Path)
	v.SetDefault("logging.verbosity", d.Logging.Verbosity)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
}

// loadConfig merges defaults, the config file, environment variables and
// the flags of cmd into a Config.
func loadConfig(cmd *cobra.Command) (types.Config, error) {
	v := viper.GetViper()
	setDefaults(v)

	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return types.Config{}, fmt.Errorf("binding flag %s: %w", name, err)
			}
		}
	}
	if f := cmd.Flags().Lookup("no-ledger"); f != nil && f.Changed {
		v.Set("ledger.enabled", false)
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decoding configuration: %w", err)
	}
	return cfg, nil
}

func scanOptions(cfg types.Config) scan.Options {
	return scan.Options{OutputPrefix: cfg.Process.OutputPrefix, Recursive: cfg.Recursive}
}

// ledgerPath resolves the ledger location against the source directory.
func ledgerPath(cfg types.Config) string {
	if filepath.IsAbs(cfg.Ledger.Path) {
		return cfg.Ledger.Path
	}
	return filepath.Join(cfg.Dir, cfg.Ledger.Path)
}

// openLedger opens the configured ledger, or returns nil when it is disabled.
func openLedger(ctx context.Context, cfg types.Config) (*ledger.Store, error) {
	if !cfg.Ledger.Enabled {
		return nil, nil
	}
	return ledger.Open(ctx, ledgerPath(cfg))
}

// requireLedger opens the ledger for the read-only commands, which have
// nothing to show when it does not exist yet.
func requireLedger(ctx context.Context, cfg types.Config) (*ledger.Store, error) {
	p := ledgerPath(cfg)
	if _, err := os.Stat(p); err != nil {
		return nil, fmt.Errorf("no ledger at %s: run \"docx-templater process\" first", p)
	}
	return ledger.Open(ctx, p)
}

// inputs returns args when given, otherwise the files find reports in the
// configured source directory. Paths come back clean and absolute so the
// ledger sees one key per file however the command was invoked.
func inputs(cfg types.Config, args []string, find func(afero.Fs, string, scan.Options) ([]string, error)) ([]string, error) {
	paths := args
	if len(paths) == 0 {
		found, err := find(afero.NewOsFs(), cfg.Dir, scanOptions(cfg))
		if err != nil {
			return nil, err
		}
		paths = found
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = process.Canonical(p)
	}
	return out, nil
}

// printOutcome writes a coloured one-line verdict for a stage.
func printOutcome(stage string, failed, total int) {
	switch {
	case total == 0:
		color.New(color.FgYellow).Fprintf(os.Stderr, "%s: nothing to do\n", stage)
	case failed > 0:
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "%s: %d of %d failed\n", stage, failed, total)
	default:
		color.New(color.FgGreen).Fprintf(os.Stderr, "%s: ok (%d)\n", stage, total)
	}
}

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("dir", ".", "source directory scanned when no files are given")
	cmd.Flags().Bool("recursive", false, "descend into sub-directories")
}

func addConvertFlags(cmd *cobra.Command) {
	cmd.Flags().String("backend", string(types.BackendSoffice), "conversion backend: soffice, container, or none")
	cmd.Flags().String("soffice", "soffice", "LibreOffice binary for the soffice backend")
	cmd.Flags().String("image", "unoconv:latest", "converter image for the container backend")
	cmd.Flags().Duration("timeout", types.DefaultConfig().Conversion.Timeout, "timeout for a single conversion")
}

func addProcessFlags(cmd *cobra.Command) {
	cmd.Flags().String("prefix", types.DefaultOutputPrefix, "file name prefix of processed output")
	cmd.Flags().Bool("headers-footers", false, "also rewrite header and footer paragraphs")
	cmd.Flags().Int("workers", 0, "documents processed at once (0 = one per CPU)")
	cmd.Flags().Bool("force", false, "reprocess documents the ledger reports as unchanged")
	cmd.Flags().Bool("no-ledger", false, "do not record or consult the processing ledger")
	addLedgerFlag(cmd)
}

func addLedgerFlag(cmd *cobra.Command) {
	cmd.Flags().String("ledger", types.DefaultConfig().Ledger.Path, "ledger database, relative to --dir unless absolute")
}
