// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package process implements the template stage: every text location of a
// docx is rewritten through the rule engine and the result is saved as a
// prefixed copy next to the source.
package process

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/docx-templater/internal/docx"
	"github.com/pdiddy/docx-templater/internal/ledger"
	"github.com/pdiddy/docx-templater/internal/rewrite"
	"github.com/pdiddy/docx-templater/pkg/types"
)

// Ledger is the subset of the processing ledger the template stage uses.
type Ledger interface {
	LastHash(ctx context.Context, path string) (string, error)
	Record(ctx context.Context, runID string, doc types.Document) error
}

// Processor templates docx files.
type Processor struct {
	// FS holds sources and receives outputs.
	FS afero.Fs

	// Prefix is prepended to the file name of every output.
	Prefix string

	// HeadersFooters also rewrites header and footer paragraphs.
	HeadersFooters bool

	// Workers bounds the number of documents processed at once. Zero means
	// one per CPU.
	Workers int

	// Force disables the ledger-based skip of unchanged sources.
	Force bool

	// Ledger, when set, records every outcome and enables incremental runs.
	Ledger Ledger

	// RunID tags ledger records written by this processor.
	RunID string
}

// New returns a processor configured from cfg.
func New(afs afero.Fs, cfg types.ProcessConfig, l Ledger) *Processor {
	prefix := cfg.OutputPrefix
	if prefix == "" {
		prefix = types.DefaultOutputPrefix
	}
	return &Processor{
		FS:             afs,
		Prefix:         prefix,
		HeadersFooters: cfg.HeadersFooters,
		Workers:        cfg.Workers,
		Force:          cfg.Force,
		Ledger:         l,
	}
}

// BatchResult summarizes a template batch.
type BatchResult struct {
	Processed int
	Skipped   int
	Failed    int

	// Documents holds one record per input that was started, in input order.
	Documents []types.Document
}

// Total returns the number of documents handled.
func (r BatchResult) Total() int {
	return r.Processed + r.Skipped + r.Failed
}

// HasFailures reports whether any document failed.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// Err returns an error naming the failure count, or nil.
func (r BatchResult) Err() error {
	if !r.HasFailures() {
		return nil
	}
	return fmt.Errorf("%d of %d documents failed", r.Failed, r.Total())
}

// ProcessDocument rewrites every location of the docx at path and saves the
// result to the prefixed output path. Every location is overwritten with the
// rewritten text, changed or not.
func (p *Processor) ProcessDocument(ctx context.Context, path string) (types.Document, error) {
	path = Canonical(path)
	data, err := afero.ReadFile(p.FS, path)
	if err != nil {
		return p.record(path, nil), fmt.Errorf("reading %s: %w", path, err)
	}
	return p.template(ctx, p.record(path, data), data)
}

// record starts the ledger record for path. The digest covers data, the
// bytes that are then templated.
func (p *Processor) record(path string, data []byte) types.Document {
	rec := types.Document{
		Path:       path,
		OutputPath: docx.OutputPath(path, p.Prefix),
	}
	if data != nil {
		rec.SHA256 = digest(data)
	}
	return rec
}

func (p *Processor) template(ctx context.Context, rec types.Document, data []byte) (types.Document, error) {
	if err := ctx.Err(); err != nil {
		return rec, err
	}

	doc, err := docx.OpenBytes(rec.Path, data)
	if err != nil {
		return rec, err
	}

	locs, err := doc.Locations(docx.Options{HeadersFooters: p.HeadersFooters})
	if err != nil {
		return rec, err
	}
	rec.Locations = len(locs)
	for _, loc := range locs {
		before := loc.Text()
		out := rewrite.Apply(before)
		switch {
		case out.Deleted:
			rec.Deleted++
		case out.Text != before:
			rec.Changed++
		}
		loc.SetText(out.Text)

		for _, name := range out.Placeholders {
			if rec.Placeholders == nil {
				rec.Placeholders = make(map[string]int)
			}
			rec.Placeholders[name]++
		}
	}

	if err := doc.Save(p.FS, rec.OutputPath); err != nil {
		return rec, fmt.Errorf("saving %s: %w", rec.OutputPath, err)
	}
	rec.Status = types.DocumentProcessed
	rec.ProcessedAt = time.Now().UTC()
	return rec, nil
}

// unchanged reports whether rec can be skipped: the ledger holds the same
// source digest and the output is still on disk.
func (p *Processor) unchanged(ctx context.Context, rec types.Document) bool {
	if p.Ledger == nil || p.Force {
		return false
	}
	last, err := p.Ledger.LastHash(ctx, rec.Path)
	if err != nil {
		if !errors.Is(err, ledger.ErrNotFound) {
			zerolog.Ctx(ctx).Warn().Err(err).Str("path", rec.Path).Msg("ledger lookup failed")
		}
		return false
	}
	if last != rec.SHA256 {
		return false
	}
	ok, _ := afero.Exists(p.FS, rec.OutputPath)
	return ok
}

// handle runs one document through the skip check and the rewrite, records
// the outcome, and never returns an error: failures are part of the record.
// The source is read once so the recorded digest matches what was templated.
func (p *Processor) handle(ctx context.Context, path string) types.Document {
	path = Canonical(path)
	log := zerolog.Ctx(ctx).With().Str("path", path).Logger()

	var rec types.Document
	data, err := afero.ReadFile(p.FS, path)
	if err != nil {
		rec, err = p.record(path, nil), fmt.Errorf("reading %s: %w", path, err)
	} else {
		rec = p.record(path, data)
		if p.unchanged(ctx, rec) {
			log.Debug().Str("sha256", rec.SHA256).Msg("unchanged since last run")
			rec.Status = types.DocumentSkipped
			return rec
		}
		rec, err = p.template(ctx, rec, data)
	}

	if err != nil {
		rec.Status = types.DocumentFailed
		rec.Error = err.Error()
		rec.ProcessedAt = time.Now().UTC()
		log.Error().Err(err).Msg("processing failed")
	} else {
		log.Info().
			Str("output", rec.OutputPath).
			Int("changed", rec.Changed).
			Int("deleted", rec.Deleted).
			Msg("processed")
	}

	if p.Ledger != nil {
		if err := p.Ledger.Record(ctx, p.RunID, rec); err != nil {
			log.Warn().Err(err).Msg("recording ledger entry")
		}
	}
	return rec
}

// Canonical returns the clean absolute form of path, the key under which a
// document is recorded. The path is only cleaned when the working directory
// cannot be determined.
func Canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// ProcessOne handles a single document the way a batch does, printing its
// status line to w.
func (p *Processor) ProcessOne(ctx context.Context, path string, w io.Writer) types.Document {
	rec := p.handle(ctx, path)
	printStatus(w, rec)
	return rec
}

// ProcessBatch templates paths on a bounded worker pool. One status line per
// document is printed to w in input order, followed by a summary. A failed
// document never stops the batch; a cancelled context stops new documents
// from starting.
func (p *Processor) ProcessBatch(ctx context.Context, paths []string, w io.Writer) BatchResult {
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var (
		mu      sync.Mutex
		records = make([]types.Document, len(paths))
		done    = make([]bool, len(paths))
		next    int
	)
	flush := func() {
		for next < len(paths) && done[next] {
			printStatus(w, records[next])
			next++
		}
	}

	var g errgroup.Group
	g.SetLimit(workers)
	started := 0
	for i, path := range paths {
		if ctx.Err() != nil {
			break
		}
		started++
		i, path := i, path
		g.Go(func() error {
			rec := p.handle(ctx, path)
			mu.Lock()
			records[i] = rec
			done[i] = true
			flush()
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	result := BatchResult{Documents: records[:started]}
	for _, rec := range result.Documents {
		switch rec.Status {
		case types.DocumentProcessed:
			result.Processed++
		case types.DocumentSkipped:
			result.Skipped++
		case types.DocumentFailed:
			result.Failed++
		}
	}
	fmt.Fprintf(w, "\nBatch summary: %d processed, %d skipped, %d failed (total: %d)\n",
		result.Processed, result.Skipped, result.Failed, result.Total())
	return result
}

func printStatus(w io.Writer, rec types.Document) {
	name := filepath.Base(rec.Path)
	switch rec.Status {
	case types.DocumentProcessed:
		fmt.Fprintf(w, "processed: %s -> %s (%d changed, %d deleted, %d placeholders)\n",
			name, filepath.Base(rec.OutputPath), rec.Changed, rec.Deleted, countPlaceholders(rec.Placeholders))
	case types.DocumentSkipped:
		fmt.Fprintf(w, "skipped: %s (unchanged since last run)\n", name)
	default:
		fmt.Fprintf(w, "failed:  %s (%s)\n", name, rec.Error)
	}
}

func countPlaceholders(m map[string]int) int {
	n := 0
	for _, c := range m {
		n += c
	}
	return n
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
