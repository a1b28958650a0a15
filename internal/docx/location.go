// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package docx

import (
	"strings"

	"github.com/beevik/etree"
)

// LocationKind names the kind of a text-bearing location.
type LocationKind string

const (
	KindParagraph LocationKind = "paragraph"
	KindCell      LocationKind = "cell"
	KindHeader    LocationKind = "header"
	KindFooter    LocationKind = "footer"
)

// Location is a place in a document whose text can be read and overwritten.
type Location interface {
	Kind() LocationKind
	Text() string
	SetText(text string)
}

// runContainers are paragraph children whose runs belong to the paragraph
// text.
var runContainers = map[string]bool{
	"hyperlink": true,
	"ins":       true,
	"smartTag":  true,
	"fldSimple": true,
	"customXml": true,
}

// paragraph is a w:p element.
type paragraph struct {
	el   *etree.Element
	part *part
	kind LocationKind
}

func (p *paragraph) Kind() LocationKind { return p.kind }

func (p *paragraph) Text() string {
	var b strings.Builder
	writeRuns(&b, p.el)
	return b.String()
}

// SetText replaces the paragraph's content with a single run holding text.
// Paragraph properties and the first run's formatting are kept.
func (p *paragraph) SetText(text string) {
	rPr := firstRunProperties(p.el)
	clearExcept(p.el, "pPr")
	appendRun(p.el, rPr, text)
	p.part.dirty = true
}

// cell is a w:tc element.
type cell struct {
	el   *etree.Element
	part *part
}

func (c *cell) Kind() LocationKind { return KindCell }

// Text joins the cell's paragraphs with newlines.
func (c *cell) Text() string {
	paras := childrenW(c.el, "p")
	lines := make([]string, len(paras))
	for i, p := range paras {
		var b strings.Builder
		writeRuns(&b, p)
		lines[i] = b.String()
	}
	return strings.Join(lines, "\n")
}

// SetText replaces the cell's content with one paragraph holding text. The
// cell properties, the first paragraph's properties and the first run's
// formatting are kept.
func (c *cell) SetText(text string) {
	var pPr, rPr *etree.Element
	if paras := childrenW(c.el, "p"); len(paras) > 0 {
		if el := firstChildW(paras[0], "pPr"); el != nil {
			pPr = el.Copy()
		}
		rPr = firstRunProperties(paras[0])
	}
	clearExcept(c.el, "tcPr")

	p := c.el.CreateElement("w:p")
	if pPr != nil {
		p.AddChild(pPr)
	}
	appendRun(p, rPr, text)
	c.part.dirty = true
}

// writeRuns appends the text of every run under el to b.
func writeRuns(b *strings.Builder, el *etree.Element) {
	for _, c := range el.ChildElements() {
		switch {
		case isW(c, "r"):
			writeRun(b, c)
		case c.Space == "w" && runContainers[c.Tag]:
			writeRuns(b, c)
		}
	}
}

func writeRun(b *strings.Builder, r *etree.Element) {
	for _, c := range r.ChildElements() {
		switch {
		case isW(c, "t"):
			b.WriteString(c.Text())
		case isW(c, "tab"):
			b.WriteByte('\t')
		case isW(c, "br"), isW(c, "cr"):
			b.WriteByte('\n')
		}
	}
}

// firstRunProperties returns a copy of the w:rPr of the first run in p, or
// nil.
func firstRunProperties(p *etree.Element) *etree.Element {
	var found *etree.Element
	var walk func(el *etree.Element) bool
	walk = func(el *etree.Element) bool {
		for _, c := range el.ChildElements() {
			if isW(c, "r") {
				found = firstChildW(c, "rPr")
				return true
			}
			if c.Space == "w" && runContainers[c.Tag] && walk(c) {
				return true
			}
		}
		return false
	}
	walk(p)
	if found == nil {
		return nil
	}
	return found.Copy()
}

// clearExcept removes every child token of el except elements named keep.
func clearExcept(el *etree.Element, keep string) {
	for _, tok := range append([]etree.Token(nil), el.Child...) {
		if c, ok := tok.(*etree.Element); ok && isW(c, keep) {
			continue
		}
		el.RemoveChild(tok)
	}
}

// appendRun adds a run to p holding text. Tabs and newlines become w:tab and
// w:br elements. An empty text adds nothing, leaving a blank paragraph.
func appendRun(p *etree.Element, rPr *etree.Element, text string) {
	if text == "" {
		return
	}
	r := p.CreateElement("w:r")
	if rPr != nil {
		r.AddChild(rPr)
	}

	var seg strings.Builder
	flush := func() {
		if seg.Len() == 0 {
			return
		}
		t := r.CreateElement("w:t")
		s := seg.String()
		if strings.TrimSpace(s) != s {
			t.CreateAttr("xml:space", "preserve")
		}
		t.SetText(s)
		seg.Reset()
	}
	for _, ch := range text {
		switch ch {
		case '\t':
			flush()
			r.CreateElement("w:tab")
		case '\n':
			flush()
			r.CreateElement("w:br")
		default:
			seg.WriteRune(ch)
		}
	}
	flush()
}

func firstChildW(el *etree.Element, tag string) *etree.Element {
	for _, c := range el.ChildElements() {
		if isW(c, tag) {
			return c
		}
	}
	return nil
}
