// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdiddy/docx-templater/pkg/types"
)

// commandRunner runs a command and returns its combined output. Tests swap
// it for a fake.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// SofficeConverter converts files with a local LibreOffice installation in
// headless mode.
type SofficeConverter struct {
	bin     string
	timeout time.Duration
	run     commandRunner
}

// NewSofficeConverter locates the LibreOffice binary named by cfg. It returns
// ErrBackendUnavailable when the binary is not on PATH.
func NewSofficeConverter(cfg types.ConversionConfig) (*SofficeConverter, error) {
	bin := cfg.SofficePath
	if bin == "" {
		bin = "soffice"
	}
	resolved, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found: %v", ErrBackendUnavailable, bin, err)
	}
	return &SofficeConverter{bin: resolved, timeout: cfg.Timeout, run: runCommand}, nil
}

// Name returns "soffice".
func (s *SofficeConverter) Name() string { return string(types.BackendSoffice) }

// Convert runs soffice --convert-to docx with the source directory as the
// output directory, then checks the sibling docx was written.
func (s *SofficeConverter) Convert(ctx context.Context, docPath string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	args := []string{"--headless", "--convert-to", "docx", "--outdir", filepath.Dir(docPath), docPath}
	out, err := s.run(ctx, s.bin, args...)
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return "", fmt.Errorf("converting %s with soffice: %w: %s", docPath, err, msg)
		}
		return "", fmt.Errorf("converting %s with soffice: %w", docPath, err)
	}

	target := SiblingPath(docPath)
	if _, err := os.Stat(target); err != nil {
		return "", fmt.Errorf("soffice produced no output for %s", docPath)
	}
	return target, nil
}
