// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package process

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pdiddy/docx-templater/internal/docx"
	"github.com/pdiddy/docx-templater/internal/ledger"
	"github.com/pdiddy/docx-templater/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

// writeDocx stores a docx whose body holds one paragraph per line and, when
// cells is non-empty, a single-row table.
func writeDocx(t *testing.T, fs afero.Fs, p string, lines []string, cells ...string) {
	t.Helper()
	var body strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&body, `<w:p><w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p>`, escape(l))
	}
	if len(cells) > 0 {
		body.WriteString(`<w:tbl><w:tr>`)
		for _, c := range cells {
			fmt.Fprintf(&body, `<w:tc><w:p><w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p></w:tc>`, escape(c))
		}
		body.WriteString(`</w:tr></w:tbl>`)
	}
	document := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document ` + wordNS + `><w:body>` + body.String() + `</w:body></w:document>`
	header := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:hdr ` + wordNS + `><w:p><w:r><w:t>Ref [MT05]</w:t></w:r></w:p></w:hdr>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range []struct{ name, data string }{
		{"[Content_Types].xml", `<?xml version="1.0"?><Types/>`},
		{"word/document.xml", document},
		{"word/header1.xml", header},
	} {
		w, err := zw.Create(m.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(m.data))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, afero.WriteFile(fs, p, buf.Bytes(), 0o644))
}

func escape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}

func outputTexts(t *testing.T, fs afero.Fs, p string, opts docx.Options) []string {
	t.Helper()
	doc, err := docx.Open(fs, p)
	require.NoError(t, err)
	locs, err := doc.Locations(opts)
	require.NoError(t, err)
	var out []string
	for _, l := range locs {
		out = append(out, l.Text())
	}
	return out
}

// fakeLedger is an in-memory Ledger.
type fakeLedger struct {
	mu      sync.Mutex
	hashes  map[string]string
	records []types.Document
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{hashes: make(map[string]string)}
}

func (f *fakeLedger) LastHash(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hashes[path]
	if !ok {
		return "", ledger.ErrNotFound
	}
	return h, nil
}

func (f *fakeLedger) Record(_ context.Context, _ string, doc types.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, doc)
	if doc.Status == types.DocumentProcessed {
		f.hashes[doc.Path] = doc.SHA256
	}
	return nil
}

func TestProcessDocument(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeDocx(t, fs, "/in/letter.docx",
		[]string{
			"Our ref: BV [MT05]",
			"Dear [Client Name],",
			"[&Diary note] call back",
			"Dated [DATE:DS(\"dd/mm/yyyy\")]",
			"No fields here",
		},
		"[Matter-Type]", "[&Message hello][&Show x]done",
	)

	p := New(fs, types.ProcessConfig{}, nil)
	rec, err := p.ProcessDocument(context.Background(), "/in/letter.docx")
	require.NoError(t, err)

	assert.Equal(t, types.DocumentProcessed, rec.Status)
	assert.Equal(t, "/in/output_letter.docx", rec.OutputPath)
	assert.Len(t, rec.SHA256, 64)
	assert.Equal(t, 7, rec.Locations)
	assert.Equal(t, 1, rec.Deleted)
	assert.Equal(t, 5, rec.Changed)
	assert.Equal(t, map[string]int{
		"caseReference": 1,
		"ClientName":    1,
		"currentDate":   1,
		"MatterType":    1,
	}, rec.Placeholders)

	got := outputTexts(t, fs, rec.OutputPath, docx.Options{})
	assert.Equal(t, []string{
		"Our ref: BV {{caseReference}}",
		"Dear {{ClientName}},",
		"",
		"Dated {{currentDate}}",
		"No fields here",
		"{{MatterType}}",
		"done",
	}, got)

	// The source is left untouched.
	src := outputTexts(t, fs, "/in/letter.docx", docx.Options{})
	assert.Equal(t, "Dear [Client Name],", src[1])
}

func TestProcessDocumentHeadersFooters(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeDocx(t, fs, "/in/a.docx", []string{"body"})

	p := New(fs, types.ProcessConfig{OutputPrefix: "tmpl_", HeadersFooters: true}, nil)
	rec, err := p.ProcessDocument(context.Background(), "/in/a.docx")
	require.NoError(t, err)
	assert.Equal(t, "/in/tmpl_a.docx", rec.OutputPath)

	got := outputTexts(t, fs, rec.OutputPath, docx.Options{HeadersFooters: true})
	assert.Equal(t, []string{"body", "Ref {{caseReference}}"}, got)
}

func TestProcessDocumentErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/in/fake.docx", []byte("not a zip"), 0o644))

	p := New(fs, types.ProcessConfig{}, nil)

	_, err := p.ProcessDocument(context.Background(), "/in/missing.docx")
	assert.ErrorContains(t, err, "reading /in/missing.docx")

	_, err = p.ProcessDocument(context.Background(), "/in/fake.docx")
	assert.ErrorIs(t, err, docx.ErrNotDocx)

	exists, _ := afero.Exists(fs, "/in/output_fake.docx")
	assert.False(t, exists)
}

func TestProcessBatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	var paths []string
	for i := 0; i < 6; i++ {
		p := fmt.Sprintf("/in/doc%d.docx", i)
		writeDocx(t, fs, p, []string{fmt.Sprintf("[Field %d]", i)})
		paths = append(paths, p)
	}
	require.NoError(t, afero.WriteFile(fs, "/in/broken.docx", []byte("junk"), 0o644))
	paths = append(paths[:3], append([]string{"/in/broken.docx"}, paths[3:]...)...)

	p := New(fs, types.ProcessConfig{Workers: 3}, nil)
	var out bytes.Buffer
	result := p.ProcessBatch(context.Background(), paths, &out)

	assert.Equal(t, 6, result.Processed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 7, result.Total())
	assert.True(t, result.HasFailures())
	assert.ErrorContains(t, result.Err(), "1 of 7 documents failed")
	require.Len(t, result.Documents, 7)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 9)
	assert.Equal(t, "processed: doc0.docx -> output_doc0.docx (1 changed, 0 deleted, 1 placeholders)", lines[0])
	assert.True(t, strings.HasPrefix(lines[3], "failed:  broken.docx ("), lines[3])
	assert.True(t, strings.HasPrefix(lines[6], "processed: doc5.docx"), lines[6])
	assert.Equal(t, "Batch summary: 6 processed, 0 skipped, 1 failed (total: 7)", lines[8])

	for i := 0; i < 6; i++ {
		got := outputTexts(t, fs, fmt.Sprintf("/in/output_doc%d.docx", i), docx.Options{})
		assert.Equal(t, []string{fmt.Sprintf("{{Field%d}}", i)}, got)
	}
}

func TestProcessBatchIncremental(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeDocx(t, fs, "/in/a.docx", []string{"[A]"})
	writeDocx(t, fs, "/in/b.docx", []string{"[B]"})
	paths := []string{"/in/a.docx", "/in/b.docx"}
	l := newFakeLedger()

	p := New(fs, types.ProcessConfig{Workers: 2}, l)
	first := p.ProcessBatch(context.Background(), paths, &bytes.Buffer{})
	assert.Equal(t, 2, first.Processed)

	// b changes, a does not.
	writeDocx(t, fs, "/in/b.docx", []string{"[B2]"})
	var out bytes.Buffer
	second := p.ProcessBatch(context.Background(), paths, &out)
	assert.Equal(t, 1, second.Processed)
	assert.Equal(t, 1, second.Skipped)
	assert.Contains(t, out.String(), "skipped: a.docx (unchanged since last run)")

	// A missing output forces reprocessing.
	require.NoError(t, fs.Remove("/in/output_a.docx"))
	third := p.ProcessBatch(context.Background(), paths, &bytes.Buffer{})
	assert.Equal(t, 1, third.Processed)
	assert.Equal(t, 1, third.Skipped)

	p.Force = true
	forced := p.ProcessBatch(context.Background(), paths, &bytes.Buffer{})
	assert.Equal(t, 2, forced.Processed)

	for _, rec := range l.records {
		assert.NotEqual(t, types.DocumentSkipped, rec.Status)
	}
}

func TestProcessBatchCancelled(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeDocx(t, fs, "/in/a.docx", []string{"[A]"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(fs, types.ProcessConfig{}, nil)
	var out bytes.Buffer
	result := p.ProcessBatch(ctx, []string{"/in/a.docx"}, &out)
	assert.Equal(t, 0, result.Total())
	assert.Empty(t, result.Documents)
	assert.Contains(t, out.String(), "Batch summary: 0 processed")
}

func TestProcessBatchWithSQLiteLedger(t *testing.T) {
	ctx := context.Background()
	store, err := ledger.Open(ctx, t.TempDir()+"/ledger.db")
	require.NoError(t, err)
	defer store.Close()

	fs := afero.NewMemMapFs()
	writeDocx(t, fs, "/in/a.docx", []string{"Dear [Name]", "[MT05]"})

	run, err := store.BeginRun(ctx)
	require.NoError(t, err)

	p := New(fs, types.ProcessConfig{}, store)
	p.RunID = run.ID
	result := p.ProcessBatch(ctx, []string{"/in/a.docx"}, &bytes.Buffer{})
	require.False(t, result.HasFailures())

	usage, err := store.Placeholders(ctx)
	require.NoError(t, err)
	require.Len(t, usage, 2)
	assert.Equal(t, "Name", usage[0].Name)
	assert.Equal(t, "caseReference", usage[1].Name)

	again := p.ProcessBatch(ctx, []string{"/in/a.docx"}, &bytes.Buffer{})
	assert.Equal(t, 1, again.Skipped)
}

// countingFs counts opens per name.
type countingFs struct {
	afero.Fs
	mu    sync.Mutex
	opens map[string]int
}

func (c *countingFs) Open(name string) (afero.File, error) {
	c.mu.Lock()
	c.opens[name]++
	c.mu.Unlock()
	return c.Fs.Open(name)
}

func TestProcessReadsSourceOnce(t *testing.T) {
	fs := &countingFs{Fs: afero.NewMemMapFs(), opens: make(map[string]int)}
	writeDocx(t, fs, "/in/a.docx", []string{"[A]"})
	l := newFakeLedger()

	p := New(fs, types.ProcessConfig{}, l)
	rec := p.ProcessOne(context.Background(), "/in/a.docx", &bytes.Buffer{})
	require.Equal(t, types.DocumentProcessed, rec.Status)
	assert.Equal(t, 1, fs.opens["/in/a.docx"])

	data, err := afero.ReadFile(fs.Fs, "/in/a.docx")
	require.NoError(t, err)
	assert.Equal(t, digest(data), rec.SHA256)

	again := p.ProcessOne(context.Background(), "/in/a.docx", &bytes.Buffer{})
	assert.Equal(t, types.DocumentSkipped, again.Status)
	assert.Equal(t, 2, fs.opens["/in/a.docx"])
}

func TestProcessKeysLedgerOnAbsolutePath(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := ledger.Open(ctx, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer store.Close()

	fs := afero.NewOsFs()
	writeDocx(t, fs, filepath.Join(dir, "a.docx"), []string{"Dear [Name]"})
	p := New(fs, types.ProcessConfig{}, store)

	first := p.ProcessBatch(ctx, []string{filepath.Join(dir, "a.docx")}, &bytes.Buffer{})
	require.Equal(t, 1, first.Processed)

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	second := p.ProcessBatch(ctx, []string{"a.docx"}, &bytes.Buffer{})
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 0, second.Processed)

	third := p.ProcessBatch(ctx, []string{"./sub/../a.docx"}, &bytes.Buffer{})
	assert.Equal(t, 1, third.Skipped)

	history, err := store.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, filepath.IsAbs(history[0].Path), history[0].Path)

	usage, err := store.Placeholders(ctx)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, 1, usage[0].Documents)
}

func TestCanonical(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, "/in/a.docx", Canonical("/in/./x/../a.docx"))
	assert.Equal(t, filepath.Join(wd, "a.docx"), Canonical("a.docx"))
}

func TestBatchResultErr(t *testing.T) {
	assert.NoError(t, BatchResult{Processed: 3}.Err())
	assert.Error(t, BatchResult{Failed: 1}.Err())
}

func TestProcessOne(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeDocx(t, fs, "/in/a.docx", []string{"[A]", "[&HISTORY x]"})
	l := newFakeLedger()

	p := New(fs, types.ProcessConfig{}, l)
	p.RunID = "run-1"
	var out bytes.Buffer
	rec := p.ProcessOne(context.Background(), "/in/a.docx", &out)

	assert.Equal(t, types.DocumentProcessed, rec.Status)
	assert.Equal(t, "processed: a.docx -> output_a.docx (1 changed, 1 deleted, 1 placeholders)\n", out.String())
	require.Len(t, l.records, 1)
}
