// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package container

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExec answers LookPath from a set of installed binaries and RunSilent
// from a set of succeeding command lines. RunPiped records its call and
// delegates to pipe.
type fakeExec struct {
	installed map[string]bool
	succeeds  map[string]bool
	pipe      func(stdin io.Reader, stdout io.Writer) error

	pipedBin  string
	pipedArgs []string
}

func (f *fakeExec) LookPath(file string) (string, error) {
	if f.installed[file] {
		return "/usr/bin/" + file, nil
	}
	return "", errors.New("executable file not found: " + file)
}

func (f *fakeExec) RunSilent(_ context.Context, name string, args ...string) error {
	line := strings.Join(append([]string{name}, args...), " ")
	if f.succeeds[line] {
		return nil
	}
	return errors.New("exit status 1")
}

func (f *fakeExec) RunPiped(_ context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error {
	f.pipedBin, f.pipedArgs = name, args
	if f.pipe == nil {
		return nil
	}
	return f.pipe(stdin, stdout)
}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

func TestDetectRuntime(t *testing.T) {
	tests := []struct {
		name      string
		installed []string
		succeeds  []string
		want      string
	}{
		{"docker preferred", []string{"docker", "podman"}, []string{"docker info", "podman info"}, "docker"},
		{"podman when docker is missing", []string{"podman"}, []string{"podman info"}, "podman"},
		{"podman when docker daemon is down", []string{"docker", "podman"}, []string{"podman info"}, "podman"},
		{"installed but not answering", []string{"docker"}, nil, ""},
		{"nothing installed", nil, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := &fakeExec{installed: set(tt.installed...), succeeds: set(tt.succeeds...)}
			rt, err := detectRuntime(context.Background(), x)
			if tt.want == "" {
				assert.ErrorIs(t, err, ErrNoRuntime)
				assert.Nil(t, rt)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rt.Name())
		})
	}
}

func TestImageExists(t *testing.T) {
	const image = "unoconv:latest"
	x := &fakeExec{succeeds: set(
		"docker image inspect "+image,
		"podman image exists "+image,
	)}

	assert.NoError(t, docker(x).ImageExists(context.Background(), image))
	assert.NoError(t, podman(x).ImageExists(context.Background(), image))

	err := docker(x).ImageExists(context.Background(), "missing:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image missing:1 not found in docker")
}

func TestRunStreamsThroughContainer(t *testing.T) {
	x := &fakeExec{pipe: func(stdin io.Reader, stdout io.Writer) error {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return err
		}
		_, err = stdout.Write(append([]byte("PK"), data...))
		return err
	}}

	var out bytes.Buffer
	err := podman(x).Run(context.Background(), "unoconv:latest",
		[]string{"-f", "docx", "--stdin", "--stdout"}, strings.NewReader("legacy"), &out)
	require.NoError(t, err)

	assert.Equal(t, "PKlegacy", out.String())
	assert.Equal(t, "podman", x.pipedBin)
	assert.Equal(t,
		[]string{"run", "--rm", "-i", "--network", "none", "unoconv:latest", "-f", "docx", "--stdin", "--stdout"},
		x.pipedArgs)
}

func TestRunWrapsFailure(t *testing.T) {
	cause := errors.New("exit status 2: unoconv: cannot convert")
	x := &fakeExec{pipe: func(io.Reader, io.Writer) error { return cause }}

	err := docker(x).Run(context.Background(), "unoconv:latest", nil, strings.NewReader(""), io.Discard)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "running docker container unoconv:latest")
}
