// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package container runs the containerised legacy document converter
// through docker or podman.
package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// ErrNoRuntime is returned by DetectRuntime when neither docker nor podman
// is usable.
var ErrNoRuntime = errors.New("no container runtime available")

// Runtime is a container engine able to run a converter image as a filter.
type Runtime interface {
	// Name returns the engine binary, "docker" or "podman".
	Name() string

	// Available reports whether the binary is on PATH and its daemon answers.
	Available(ctx context.Context) bool

	// ImageExists returns nil when image is present locally.
	ImageExists(ctx context.Context, image string) error

	// Run starts a throwaway, network-less container from image with args,
	// streaming stdin into it and its stdout back.
	Run(ctx context.Context, image string, args []string, stdin io.Reader, stdout io.Writer) error
}

// executor is the process-spawning seam replaced in tests.
type executor interface {
	LookPath(file string) (string, error)
	RunSilent(ctx context.Context, name string, args ...string) error
	RunPiped(ctx context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error
}

type osExecutor struct{}

func (osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (osExecutor) RunSilent(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// RunPiped folds the command's stderr into the returned error so converter
// failures are readable in the batch output.
func (osExecutor) RunPiped(ctx context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return nil
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		return fmt.Errorf("%w: %s", err, msg)
	}
	return err
}

// engine implements Runtime. docker and podman accept the same run flags and
// differ in how an image is probed.
type engine struct {
	bin        string
	imageProbe []string
	exec       executor
}

func (e *engine) Name() string { return e.bin }

func (e *engine) Available(ctx context.Context) bool {
	if _, err := e.exec.LookPath(e.bin); err != nil {
		return false
	}
	return e.exec.RunSilent(ctx, e.bin, "info") == nil
}

func (e *engine) ImageExists(ctx context.Context, image string) error {
	args := append(append([]string{}, e.imageProbe...), image)
	if err := e.exec.RunSilent(ctx, e.bin, args...); err != nil {
		return fmt.Errorf("image %s not found in %s: %w", image, e.bin, err)
	}
	return nil
}

func (e *engine) Run(ctx context.Context, image string, args []string, stdin io.Reader, stdout io.Writer) error {
	full := append([]string{"run", "--rm", "-i", "--network", "none", image}, args...)
	if err := e.exec.RunPiped(ctx, e.bin, full, stdin, stdout); err != nil {
		return fmt.Errorf("running %s container %s: %w", e.bin, image, err)
	}
	return nil
}

func docker(x executor) *engine {
	return &engine{bin: "docker", imageProbe: []string{"image", "inspect"}, exec: x}
}

func podman(x executor) *engine {
	return &engine{bin: "podman", imageProbe: []string{"image", "exists"}, exec: x}
}

// DetectRuntime returns docker when usable, otherwise podman, otherwise an
// error wrapping ErrNoRuntime.
func DetectRuntime(ctx context.Context) (Runtime, error) {
	return detectRuntime(ctx, osExecutor{})
}

func detectRuntime(ctx context.Context, x executor) (Runtime, error) {
	for _, e := range []*engine{docker(x), podman(x)} {
		if e.Available(ctx) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: neither docker nor podman found or operational", ErrNoRuntime)
}
