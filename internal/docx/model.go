// Package docx lays out practical records as a word-processing document and
// serializes it as an Office Open XML package.
//
// The document model mirrors the WordprocessingML body: a Document holds a
// header repeated on every page and an ordered list of blocks. A block is a
// paragraph made of styled runs, an inline image occupying its own paragraph,
// or a forced page break.
package docx

import "strings"

// Fonts and sizes used by the fixed layout. Sizes are in half-points.
const (
	SerifFont = "Times New Roman"
	MonoFont  = "Courier New"
	TextSize  = 28
)

// Page geometry in twentieths of a point (twips).
const (
	Inch         = 1440
	PageWidth    = 11906
	PageHeight   = 16838
	HeaderMargin = 708
)

// Images are placed in a fixed box, in pixels at 96 DPI.
const (
	ImageWidth  = 600
	ImageHeight = 400
	EMUPerPixel = 9525
)

// Alignment of a paragraph.
type Alignment string

const (
	AlignLeft   Alignment = ""
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"
)

// Run is a contiguous piece of text with one style.
type Run struct {
	Text      string
	Font      string
	Size      int
	Bold      bool
	Underline bool
}

// Block is an element of the document body.
type Block interface {
	isBlock()
}

// Paragraph is a body or header paragraph. Spacing is in twips.
type Paragraph struct {
	Align         Alignment
	SpacingBefore int
	SpacingAfter  int
	Runs          []Run
}

// Text returns the concatenated text of all runs.
func (p *Paragraph) Text() string {
	var b strings.Builder
	for _, r := range p.Runs {
		b.WriteString(r.Text)
	}
	return b.String()
}

// Image is an inline picture placed in its own paragraph. Width and Height
// are the display size in pixels; Data is embedded as is.
type Image struct {
	Data   []byte
	Width  int
	Height int
}

// PageBreak forces the next block onto a new page.
type PageBreak struct{}

func (*Paragraph) isBlock() {}
func (*Image) isBlock()     {}
func (*PageBreak) isBlock() {}

// Margins of the body in twips.
type Margins struct {
	Top, Right, Bottom, Left int
}

// Properties are package metadata written to docProps/core.xml.
type Properties struct {
	Title   string
	Creator string
}

// Document is the in-memory document model.
type Document struct {
	Properties Properties
	Margins    Margins
	Header     []Paragraph
	Body       []Block
}

// Paragraphs returns the body paragraphs in order.
func (d *Document) Paragraphs() []*Paragraph {
	var ps []*Paragraph
	for _, b := range d.Body {
		if p, ok := b.(*Paragraph); ok {
			ps = append(ps, p)
		}
	}
	return ps
}

// Images returns the body images in order.
func (d *Document) Images() []*Image {
	var imgs []*Image
	for _, b := range d.Body {
		if img, ok := b.(*Image); ok {
			imgs = append(imgs, img)
		}
	}
	return imgs
}

// Headings returns the practical headings in order.
func (d *Document) Headings() []*Paragraph {
	var hs []*Paragraph
	for _, p := range d.Paragraphs() {
		if strings.HasPrefix(p.Text(), HeadingPrefix) && p.Align == AlignCenter {
			hs = append(hs, p)
		}
	}
	return hs
}

// PageBreaks returns the body indexes of forced page breaks.
func (d *Document) PageBreaks() []int {
	var idx []int
	for i, b := range d.Body {
		if _, ok := b.(*PageBreak); ok {
			idx = append(idx, i)
		}
	}
	return idx
}
