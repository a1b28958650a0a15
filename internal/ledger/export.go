// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/docx-templater/pkg/types"
)

// Report is the YAML summary of a ledger: recent runs, every document
// record, and the placeholder inventory.
type Report struct {
	GeneratedAt  time.Time          `yaml:"generated_at"`
	Runs         []types.Run        `yaml:"runs"`
	Documents    []types.Document   `yaml:"documents"`
	Placeholders []PlaceholderUsage `yaml:"placeholders"`
}

// BuildReport collects the report contents from the store.
func (s *Store) BuildReport(ctx context.Context, runLimit int) (Report, error) {
	runs, err := s.Runs(ctx, runLimit)
	if err != nil {
		return Report{}, err
	}
	docs, err := s.History(ctx, 0)
	if err != nil {
		return Report{}, err
	}
	placeholders, err := s.Placeholders(ctx)
	if err != nil {
		return Report{}, err
	}
	return Report{
		GeneratedAt:  time.Now().UTC(),
		Runs:         runs,
		Documents:    docs,
		Placeholders: placeholders,
	}, nil
}

// ExportYAML writes the ledger report to path.
func (s *Store) ExportYAML(ctx context.Context, path string, runLimit int) error {
	report, err := s.BuildReport(ctx, runLimit)
	if err != nil {
		return fmt.Errorf("building report: %w", err)
	}

	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
