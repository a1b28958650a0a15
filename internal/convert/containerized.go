// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pdiddy/docx-templater/internal/container"
	"github.com/pdiddy/docx-templater/pkg/types"
)

const defaultImage = "unoconv:latest"

// unoconvArgs make the converter image read the legacy file on stdin and
// write docx on stdout.
var unoconvArgs = []string{"-f", "docx", "--stdin", "--stdout"}

// ContainerConverter converts files by piping them through a converter
// container image. It depends on a container.Runtime (docker or podman)
// injected at construction time.
type ContainerConverter struct {
	runtime container.Runtime
	image   string
	timeout time.Duration
}

// NewContainerConverter creates a converter that uses the given container
// runtime to run the configured image. It verifies that the image exists
// locally before returning.
func NewContainerConverter(ctx context.Context, rt container.Runtime, cfg types.ConversionConfig) (*ContainerConverter, error) {
	image := cfg.Image
	if image == "" {
		image = defaultImage
	}
	if err := rt.ImageExists(ctx, image); err != nil {
		return nil, fmt.Errorf("%w: %s image not available in %s: %v", ErrBackendUnavailable, image, rt.Name(), err)
	}
	return &ContainerConverter{runtime: rt, image: image, timeout: cfg.Timeout}, nil
}

// Name returns "container".
func (c *ContainerConverter) Name() string { return string(types.BackendContainer) }

// Convert pipes the legacy file at docPath through the container and writes
// the resulting docx next to it.
func (c *ContainerConverter) Convert(ctx context.Context, docPath string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	f, err := os.Open(docPath)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", docPath, err)
	}
	defer f.Close()

	var out bytes.Buffer
	if err := c.runtime.Run(ctx, c.image, unoconvArgs, f, &out); err != nil {
		return "", fmt.Errorf("converting %s in container: %w", docPath, err)
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("converter produced empty output for %s", docPath)
	}

	target := SiblingPath(docPath)
	tmp, err := os.CreateTemp(filepath.Dir(target), ".convert-*.docx")
	if err != nil {
		return "", fmt.Errorf("creating temp file for %s: %w", target, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(out.Bytes()); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("writing %s: %w", target, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("writing %s: %w", target, err)
	}
	return target, nil
}
