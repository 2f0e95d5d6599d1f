package docx

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/beevik/etree"
)

// ErrNotDocument is returned by Read for data that is not a word-processing
// package.
var ErrNotDocument = errors.New("not a word-processing document")

type pkg struct {
	files map[string]*zip.File
}

func (p *pkg) read(name string) ([]byte, error) {
	f, ok := p.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: missing part %s", ErrNotDocument, name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (p *pkg) xml(name string) (*etree.Document, error) {
	data, err := p.read(name)
	if err != nil {
		return nil, err
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return doc, nil
}

// Read parses a package produced by Write back into the document model.
// Only the subset of WordprocessingML that Write emits is understood.
func Read(data []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotDocument, err)
	}
	p := &pkg{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		p.files[f.Name] = f
	}

	rels, err := readRels(p, partDocumentRels)
	if err != nil {
		return nil, err
	}
	main, err := p.xml(partDocument)
	if err != nil {
		return nil, err
	}
	body := main.FindElement("/w:document/w:body")
	if body == nil {
		return nil, fmt.Errorf("%w: document has no body", ErrNotDocument)
	}

	doc := &Document{}
	for _, el := range body.ChildElements() {
		switch el.FullTag() {
		case "w:p":
			blk, err := readBlock(p, rels, el)
			if err != nil {
				return nil, err
			}
			doc.Body = append(doc.Body, blk)
		case "w:sectPr":
			doc.Margins = readMargins(el)
			if hr := el.SelectElement("w:headerReference"); hr != nil {
				target, ok := rels[hr.SelectAttrValue("r:id", "")]
				if !ok {
					return nil, fmt.Errorf("%w: dangling header reference", ErrNotDocument)
				}
				if doc.Header, err = readHeader(p, "word/"+target); err != nil {
					return nil, err
				}
			}
		}
	}

	if core, err := p.xml(partCore); err == nil {
		if root := core.Root(); root != nil {
			if t := root.SelectElement("dc:title"); t != nil {
				doc.Properties.Title = t.Text()
			}
			if c := root.SelectElement("dc:creator"); c != nil {
				doc.Properties.Creator = c.Text()
			}
		}
	}
	return doc, nil
}

func readRels(p *pkg, name string) (map[string]string, error) {
	doc, err := p.xml(name)
	if err != nil {
		return nil, err
	}
	rels := make(map[string]string)
	for _, rel := range doc.FindElements("/Relationships/Relationship") {
		rels[rel.SelectAttrValue("Id", "")] = rel.SelectAttrValue("Target", "")
	}
	return rels, nil
}

func readHeader(p *pkg, name string) ([]Paragraph, error) {
	doc, err := p.xml(name)
	if err != nil {
		return nil, err
	}
	var ps []Paragraph
	for _, el := range doc.FindElements("/w:hdr/w:p") {
		ps = append(ps, *readParagraph(el))
	}
	return ps, nil
}

func readBlock(p *pkg, rels map[string]string, el *etree.Element) (Block, error) {
	if br := el.FindElement("w:r/w:br"); br != nil && br.SelectAttrValue("w:type", "") == "page" {
		return &PageBreak{}, nil
	}
	if blip := el.FindElement(".//a:blip"); blip != nil {
		target, ok := rels[blip.SelectAttrValue("r:embed", "")]
		if !ok {
			return nil, fmt.Errorf("%w: dangling image reference", ErrNotDocument)
		}
		data, err := p.read(path.Join("word", target))
		if err != nil {
			return nil, err
		}
		img := &Image{Data: data}
		if ext := el.FindElement(".//wp:extent"); ext != nil {
			img.Width = atoi(ext.SelectAttrValue("cx", "")) / EMUPerPixel
			img.Height = atoi(ext.SelectAttrValue("cy", "")) / EMUPerPixel
		}
		return img, nil
	}
	return readParagraph(el), nil
}

func readParagraph(el *etree.Element) *Paragraph {
	p := &Paragraph{}
	if pPr := el.SelectElement("w:pPr"); pPr != nil {
		if sp := pPr.SelectElement("w:spacing"); sp != nil {
			p.SpacingBefore = atoi(sp.SelectAttrValue("w:before", ""))
			p.SpacingAfter = atoi(sp.SelectAttrValue("w:after", ""))
		}
		if jc := pPr.SelectElement("w:jc"); jc != nil {
			p.Align = Alignment(jc.SelectAttrValue("w:val", ""))
		}
	}
	for _, r := range el.SelectElements("w:r") {
		p.Runs = append(p.Runs, readRun(r))
	}
	return p
}

func readRun(el *etree.Element) Run {
	var r Run
	if rPr := el.SelectElement("w:rPr"); rPr != nil {
		if f := rPr.SelectElement("w:rFonts"); f != nil {
			r.Font = f.SelectAttrValue("w:ascii", "")
		}
		r.Bold = toggled(rPr.SelectElement("w:b"))
		if sz := rPr.SelectElement("w:sz"); sz != nil {
			r.Size = atoi(sz.SelectAttrValue("w:val", ""))
		}
		if u := rPr.SelectElement("w:u"); u != nil {
			r.Underline = u.SelectAttrValue("w:val", "single") != "none"
		}
	}
	for _, t := range el.SelectElements("w:t") {
		r.Text += t.Text()
	}
	return r
}

func readMargins(sect *etree.Element) Margins {
	pgMar := sect.SelectElement("w:pgMar")
	if pgMar == nil {
		return Margins{}
	}
	return Margins{
		Top:    atoi(pgMar.SelectAttrValue("w:top", "")),
		Right:  atoi(pgMar.SelectAttrValue("w:right", "")),
		Bottom: atoi(pgMar.SelectAttrValue("w:bottom", "")),
		Left:   atoi(pgMar.SelectAttrValue("w:left", "")),
	}
}

// toggled reports whether an on/off property element is set.
func toggled(e *etree.Element) bool {
	if e == nil {
		return false
	}
	switch e.SelectAttrValue("w:val", "true") {
	case "0", "false", "off":
		return false
	}
	return true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
