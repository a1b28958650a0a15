// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package docx opens Office Open XML word-processing containers, exposes
// their text-bearing locations for reading and overwriting, and saves the
// result under a new name. Only the XML parts that hold text are parsed;
// every other archive entry is copied through byte for byte.
package docx

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/beevik/etree"
	"github.com/spf13/afero"
)

const (
	mainPart = "word/document.xml"

	// wordNS is the WordprocessingML main namespace.
	wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
)

// ErrNotDocx is returned when a file is not a zip archive holding a
// word-processing main document part.
var ErrNotDocx = errors.New("not a docx container")

// Options selects which locations Locations returns.
type Options struct {
	// HeadersFooters adds the paragraphs of every header and footer part.
	HeadersFooters bool
}

// entry is one archive member held in memory.
type entry struct {
	name     string
	method   uint16
	header   zip.FileHeader
	data     []byte
	partName string // non-empty when the entry is a parsed XML part
}

// part is a parsed XML part of the container.
type part struct {
	name  string
	doc   *etree.Document
	dirty bool
}

// Document is an opened docx container.
type Document struct {
	path    string
	entries []entry
	parts   map[string]*part
}

// Open reads the docx container at p from fs.
func Open(fs afero.Fs, p string) (*Document, error) {
	data, err := afero.ReadFile(fs, p)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", p, err)
	}
	return OpenBytes(p, data)
}

// OpenBytes reads a docx container from data already in memory. p names the
// document in errors and is returned by Path. Only the main document part is
// parsed here; header and footer parts are parsed by Locations when asked for.
func OpenBytes(p string, data []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", p, ErrNotDocx, err)
	}

	d := &Document{path: p, parts: make(map[string]*part)}
	for _, zf := range zr.File {
		raw, err := readEntry(zf)
		if err != nil {
			return nil, fmt.Errorf("reading %s in %s: %w", zf.Name, p, err)
		}
		e := entry{name: zf.Name, method: zf.Method, header: zf.FileHeader, data: raw}
		if isTextPart(zf.Name) {
			e.partName = zf.Name
		}
		d.entries = append(d.entries, e)
	}

	main, err := d.parse(mainPart)
	if err != nil {
		return nil, err
	}
	if main == nil || main.doc.Root() == nil || bodyOf(main.doc) == nil {
		return nil, fmt.Errorf("%s: %w: missing %s", p, ErrNotDocx, mainPart)
	}
	return d, nil
}

// parse returns the parsed part called name, parsing it on first use. It
// returns nil when the container has no such member.
func (d *Document) parse(name string) (*part, error) {
	if pt, ok := d.parts[name]; ok {
		return pt, nil
	}
	for _, e := range d.entries {
		if e.partName != name {
			continue
		}
		doc := etree.NewDocument()
		if err := doc.ReadFromBytes(e.data); err != nil {
			return nil, fmt.Errorf("parsing %s in %s: %w", name, d.path, err)
		}
		pt := &part{name: name, doc: doc}
		d.parts[name] = pt
		return pt, nil
	}
	return nil, nil
}

func readEntry(zf *zip.File) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// isTextPart reports whether an archive member holds locations this package
// edits: the main document and the header and footer parts.
func isTextPart(name string) bool {
	if name == mainPart {
		return true
	}
	dir, base := path.Split(name)
	if dir != "word/" || path.Ext(base) != ".xml" {
		return false
	}
	return strings.HasPrefix(base, "header") || strings.HasPrefix(base, "footer")
}

// Path returns the path the document was opened from.
func (d *Document) Path() string { return d.path }

// Locations returns the text-bearing locations in document order: body
// paragraphs, then the cells of top-level tables row by row, then header
// and footer paragraphs when requested. A malformed header or footer part
// is an error only when HeadersFooters is set.
func (d *Document) Locations(opts Options) ([]Location, error) {
	main := d.parts[mainPart]
	body := bodyOf(main.doc)

	var locs []Location
	for _, el := range body.ChildElements() {
		if isW(el, "p") {
			locs = append(locs, &paragraph{el: el, part: main, kind: KindParagraph})
		}
	}
	for _, tbl := range body.ChildElements() {
		if !isW(tbl, "tbl") {
			continue
		}
		for _, tr := range childrenW(tbl, "tr") {
			for _, tc := range childrenW(tr, "tc") {
				locs = append(locs, &cell{el: tc, part: main})
			}
		}
	}

	if !opts.HeadersFooters {
		return locs, nil
	}

	var names []string
	for _, e := range d.entries {
		if e.partName != "" && e.partName != mainPart {
			names = append(names, e.partName)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		pt, err := d.parse(name)
		if err != nil {
			return nil, err
		}
		root := pt.doc.Root()
		if root == nil {
			continue
		}
		kind := KindHeader
		if strings.HasPrefix(path.Base(name), "footer") {
			kind = KindFooter
		}
		for _, el := range childrenW(root, "p") {
			locs = append(locs, &paragraph{el: el, part: pt, kind: kind})
		}
	}
	return locs, nil
}

// Save writes the document, with every location edit applied, to p. The
// source file is never touched unless p names it.
func (d *Document) Save(fs afero.Fs, p string) error {
	if dir := filepath.Dir(p); dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range d.entries {
		data := e.data
		if pt, ok := d.parts[e.partName]; ok && pt.dirty {
			out, err := pt.doc.WriteToBytes()
			if err != nil {
				return fmt.Errorf("serialising %s: %w", e.name, err)
			}
			data = out
		}
		hdr := &zip.FileHeader{
			Name:     e.name,
			Method:   e.method,
			Modified: e.header.Modified,
			Comment:  e.header.Comment,
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("writing %s: %w", e.name, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("writing %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalising archive: %w", err)
	}

	if err := afero.WriteFile(fs, p, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", p, err)
	}
	return nil
}

// OutputPath derives the processed-output path for src: the same directory
// with prefix prepended to the file name.
func OutputPath(src, prefix string) string {
	return filepath.Join(filepath.Dir(src), prefix+filepath.Base(src))
}

func bodyOf(doc *etree.Document) *etree.Element {
	root := doc.Root()
	if root == nil || !isW(root, "document") {
		return nil
	}
	for _, el := range root.ChildElements() {
		if isW(el, "body") {
			return el
		}
	}
	return nil
}

// isW reports whether el is the WordprocessingML element with local name tag.
func isW(el *etree.Element, tag string) bool {
	if el.Tag != tag {
		return false
	}
	return el.Space == "w" || el.NamespaceURI() == wordNS
}

func childrenW(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		if isW(c, tag) {
			out = append(out, c)
		}
	}
	return out
}
