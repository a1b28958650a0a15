// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/docx-templater/pkg/types"
)

// fakeConverter implements Converter for testing. It writes canned docx
// bytes next to the source or returns an error, depending on configuration.
type fakeConverter struct {
	output string
	err    error
	calls  int
}

func (f *fakeConverter) Name() string { return "fake" }

func (f *fakeConverter) Convert(_ context.Context, docPath string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	target := SiblingPath(docPath)
	return target, os.WriteFile(target, []byte(f.output), 0o644)
}

// setupDoc creates a temporary legacy file and returns its path.
func setupDoc(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte("legacy"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestConvertDocument(t *testing.T) {
	tests := []struct {
		name       string
		converter  *fakeConverter
		preCreate  bool // create output docx before running
		wantStatus types.ConversionStatus
		wantLog    string
		wantCalls  int
	}{
		{
			name:       "successful conversion",
			converter:  &fakeConverter{output: "docx"},
			wantStatus: types.ConversionDone,
			wantLog:    "converted: letter.doc -> letter.docx",
			wantCalls:  1,
		},
		{
			name:       "skip existing docx",
			converter:  &fakeConverter{output: "should not be called"},
			preCreate:  true,
			wantStatus: types.ConversionSkipped,
			wantLog:    "skipped:",
		},
		{
			name:       "conversion failure",
			converter:  &fakeConverter{err: errors.New("soffice crashed")},
			wantStatus: types.ConversionFailed,
			wantLog:    "failed:  letter.doc (soffice crashed)",
			wantCalls:  1,
		},
		{
			name:       "backend unavailable is a skip",
			converter:  &fakeConverter{err: fmt.Errorf("%w: no soffice", ErrBackendUnavailable)},
			wantStatus: types.ConversionSkipped,
			wantLog:    "skipped: letter.doc",
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docPath := setupDoc(t, "letter.doc")
			if tt.preCreate {
				if err := os.WriteFile(SiblingPath(docPath), []byte("existing"), 0o644); err != nil {
					t.Fatal(err)
				}
			}

			var log bytes.Buffer
			status := ConvertDocument(context.Background(), tt.converter, docPath, &log)

			if status != tt.wantStatus {
				t.Errorf("status = %q, want %q", status, tt.wantStatus)
			}
			if !strings.Contains(log.String(), tt.wantLog) {
				t.Errorf("log output %q does not contain %q", log.String(), tt.wantLog)
			}
			if tt.converter.calls != tt.wantCalls {
				t.Errorf("converter called %d times, want %d", tt.converter.calls, tt.wantCalls)
			}
		})
	}
}

func TestConvertBatch(t *testing.T) {
	tmpDir := t.TempDir()
	for _, name := range []string{"a.doc", "b.DOC", "c.doc"} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte("doc"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	// Pre-create output for "b" to trigger skip.
	if err := os.WriteFile(filepath.Join(tmpDir, "b.docx"), []byte("existing"), 0o644); err != nil {
		t.Fatal(err)
	}

	conv := &selectiveConverter{
		errors: map[string]error{
			filepath.Join(tmpDir, "c.doc"): errors.New("corrupt file"),
		},
	}

	paths := []string{
		filepath.Join(tmpDir, "a.doc"),
		filepath.Join(tmpDir, "b.DOC"),
		filepath.Join(tmpDir, "c.doc"),
	}

	var log bytes.Buffer
	result := ConvertBatch(context.Background(), conv, paths, &log)

	assert.Equal(t, BatchResult{Converted: 1, Skipped: 1, Failed: 1}, result)
	assert.True(t, result.HasFailures())
	assert.Equal(t, 3, result.Total())
	assert.Contains(t, log.String(), "Batch summary: 1 converted, 1 skipped, 1 failed (total: 3)")
	assert.FileExists(t, filepath.Join(tmpDir, "a.docx"))
}

func TestConvertBatchStopsOnCancel(t *testing.T) {
	docPath := setupDoc(t, "a.doc")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conv := &fakeConverter{output: "docx"}
	result := ConvertBatch(ctx, conv, []string{docPath}, io.Discard)
	assert.Equal(t, 0, result.Total())
	assert.Equal(t, 0, conv.calls)
}

func TestSiblingPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/x/letter.doc", "/x/letter.docx"},
		{"/x/LETTER.DOC", "/x/LETTER.docx"},
		{"/x/v1.2.doc", "/x/v1.2.docx"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SiblingPath(tt.in))
		})
	}
}

func TestSofficeConverter(t *testing.T) {
	t.Run("writes sibling docx", func(t *testing.T) {
		docPath := setupDoc(t, "Letter.DOC")
		var gotArgs []string
		s := &SofficeConverter{bin: "/usr/bin/soffice", run: func(_ context.Context, name string, args ...string) ([]byte, error) {
			gotArgs = args
			return nil, os.WriteFile(filepath.Join(filepath.Dir(docPath), "Letter.docx"), []byte("docx"), 0o644)
		}}

		out, err := s.Convert(context.Background(), docPath)
		require.NoError(t, err)
		assert.Equal(t, SiblingPath(docPath), out)
		assert.Equal(t, []string{"--headless", "--convert-to", "docx", "--outdir", filepath.Dir(docPath), docPath}, gotArgs)
	})

	t.Run("command failure includes output", func(t *testing.T) {
		docPath := setupDoc(t, "a.doc")
		s := &SofficeConverter{bin: "soffice", run: func(context.Context, string, ...string) ([]byte, error) {
			return []byte("Error: source file could not be loaded\n"), errors.New("exit status 1")
		}}

		_, err := s.Convert(context.Background(), docPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "source file could not be loaded")
	})

	t.Run("missing output", func(t *testing.T) {
		docPath := setupDoc(t, "a.doc")
		s := &SofficeConverter{bin: "soffice", run: func(context.Context, string, ...string) ([]byte, error) {
			return nil, nil
		}}

		_, err := s.Convert(context.Background(), docPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no output")
	})
}

// fakeRuntime implements container.Runtime for testing.
type fakeRuntime struct {
	imageErr error
	output   string
	runErr   error
	input    string
}

func (f *fakeRuntime) Name() string                             { return "docker" }
func (f *fakeRuntime) Available(context.Context) bool           { return true }
func (f *fakeRuntime) ImageExists(context.Context, string) error { return f.imageErr }

func (f *fakeRuntime) Run(_ context.Context, _ string, _ []string, stdin io.Reader, stdout io.Writer) error {
	data, _ := io.ReadAll(stdin)
	f.input = string(data)
	if f.runErr != nil {
		return f.runErr
	}
	_, err := stdout.Write([]byte(f.output))
	return err
}

func TestContainerConverter(t *testing.T) {
	t.Run("writes container output next to source", func(t *testing.T) {
		docPath := setupDoc(t, "a.doc")
		rt := &fakeRuntime{output: "PK docx bytes"}
		c, err := NewContainerConverter(context.Background(), rt, types.ConversionConfig{})
		require.NoError(t, err)

		out, err := c.Convert(context.Background(), docPath)
		require.NoError(t, err)
		assert.Equal(t, "legacy", rt.input)

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "PK docx bytes", string(data))

		entries, err := os.ReadDir(filepath.Dir(docPath))
		require.NoError(t, err)
		assert.Len(t, entries, 2, "temp file must be renamed away")
	})

	t.Run("empty output", func(t *testing.T) {
		docPath := setupDoc(t, "a.doc")
		c, err := NewContainerConverter(context.Background(), &fakeRuntime{}, types.ConversionConfig{})
		require.NoError(t, err)

		_, err = c.Convert(context.Background(), docPath)
		require.Error(t, err)
		assert.NoFileExists(t, SiblingPath(docPath))
	})

	t.Run("missing image", func(t *testing.T) {
		_, err := NewContainerConverter(context.Background(), &fakeRuntime{imageErr: errors.New("no such image")}, types.ConversionConfig{Image: "custom:1"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrBackendUnavailable)
		assert.Contains(t, err.Error(), "custom:1")
	})
}

func TestNew(t *testing.T) {
	t.Run("none backend skips", func(t *testing.T) {
		c, err := New(context.Background(), types.ConversionConfig{Backend: types.BackendNone})
		require.NoError(t, err)

		docPath := setupDoc(t, "a.doc")
		status := ConvertDocument(context.Background(), c, docPath, io.Discard)
		assert.Equal(t, types.ConversionSkipped, status)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := New(context.Background(), types.ConversionConfig{Backend: "word"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown conversion backend")
	})

	t.Run("missing soffice binary", func(t *testing.T) {
		_, err := New(context.Background(), types.ConversionConfig{
			Backend:     types.BackendSoffice,
			SofficePath: filepath.Join(t.TempDir(), "no-such-soffice"),
		})
		assert.ErrorIs(t, err, ErrBackendUnavailable)
	})
}

// selectiveConverter fails for configured paths and succeeds otherwise.
type selectiveConverter struct {
	errors map[string]error
}

func (s *selectiveConverter) Name() string { return "selective" }

func (s *selectiveConverter) Convert(_ context.Context, docPath string) (string, error) {
	if err, ok := s.errors[docPath]; ok {
		return "", err
	}
	target := SiblingPath(docPath)
	return target, os.WriteFile(target, []byte("docx"), 0o644)
}
