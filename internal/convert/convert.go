// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert turns legacy word-processor files into sibling docx files
// with pluggable backends.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pdiddy/docx-templater/internal/container"
	"github.com/pdiddy/docx-templater/pkg/types"
)

const docxExt = ".docx"

// ErrBackendUnavailable is returned when the configured conversion backend
// cannot run on this machine.
var ErrBackendUnavailable = errors.New("conversion backend unavailable")

// Converter transforms a legacy document into a docx file. Different
// backends (soffice, container) implement this interface.
type Converter interface {
	// Name identifies the backend in status output.
	Name() string

	// Convert writes the docx equivalent of docPath next to it and returns
	// the path written.
	Convert(ctx context.Context, docPath string) (string, error)
}

// BatchResult holds the outcome of a batch conversion run.
type BatchResult struct {
	Converted int
	Skipped   int
	Failed    int
}

// Total returns the total number of files processed.
func (r BatchResult) Total() int {
	return r.Converted + r.Skipped + r.Failed
}

// HasFailures reports whether any file failed conversion.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// SiblingPath returns the docx path that conversion of docPath produces: the
// same directory and base name with a .docx extension.
func SiblingPath(docPath string) string {
	return strings.TrimSuffix(docPath, filepath.Ext(docPath)) + docxExt
}

// ConvertDocument converts a single legacy file, printing a status line to w.
// If the sibling docx already exists, it skips conversion. A backend that is
// unavailable also yields a skip so that the template stage can still run
// over whatever docx files exist.
func ConvertDocument(ctx context.Context, c Converter, docPath string, w io.Writer) types.ConversionStatus {
	log := zerolog.Ctx(ctx).With().Str("path", docPath).Str("backend", c.Name()).Logger()
	name := filepath.Base(docPath)
	out := SiblingPath(docPath)

	if _, err := os.Stat(out); err == nil {
		fmt.Fprintf(w, "skipped: %s (%s already exists)\n", name, filepath.Base(out))
		log.Debug().Str("output", out).Msg("docx already exists")
		return types.ConversionSkipped
	}

	written, err := c.Convert(ctx, docPath)
	if errors.Is(err, ErrBackendUnavailable) {
		fmt.Fprintf(w, "skipped: %s (%v)\n", name, err)
		log.Warn().Err(err).Msg("conversion unavailable")
		return types.ConversionSkipped
	}
	if err != nil {
		fmt.Fprintf(w, "failed:  %s (%v)\n", name, err)
		log.Error().Err(err).Msg("conversion failed")
		return types.ConversionFailed
	}

	fmt.Fprintf(w, "converted: %s -> %s\n", name, filepath.Base(written))
	log.Info().Str("output", written).Msg("converted")
	return types.ConversionDone
}

// ConvertBatch processes a list of legacy files through the converter,
// printing per-file status to w and returning a summary. Failures never stop
// the batch; a cancelled context does.
func ConvertBatch(ctx context.Context, c Converter, paths []string, w io.Writer) BatchResult {
	var result BatchResult
	for _, p := range paths {
		if ctx.Err() != nil {
			break
		}
		switch ConvertDocument(ctx, c, p, w) {
		case types.ConversionDone:
			result.Converted++
		case types.ConversionSkipped:
			result.Skipped++
		case types.ConversionFailed:
			result.Failed++
		}
	}
	fmt.Fprintf(w, "\nBatch summary: %d converted, %d skipped, %d failed (total: %d)\n",
		result.Converted, result.Skipped, result.Failed, result.Total())
	return result
}

// New builds the converter selected by cfg.
func New(ctx context.Context, cfg types.ConversionConfig) (Converter, error) {
	switch cfg.Backend {
	case types.BackendSoffice, "":
		return NewSofficeConverter(cfg)
	case types.BackendContainer:
		rt, err := container.DetectRuntime(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return NewContainerConverter(ctx, rt, cfg)
	case types.BackendNone:
		return noneConverter{}, nil
	default:
		return nil, fmt.Errorf("unknown conversion backend %q (want soffice, container, or none)", cfg.Backend)
	}
}

// noneConverter performs no conversion; every legacy file is skipped.
type noneConverter struct{}

func (noneConverter) Name() string { return string(types.BackendNone) }

func (noneConverter) Convert(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: backend %q converts nothing", ErrBackendUnavailable, types.BackendNone)
}
