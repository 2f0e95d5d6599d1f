package docx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	fixzip "github.com/hidez8891/zip"

	"github.com/pavelanni/practicals/internal/model"
)

// Delivery defaults for generated documents.
const (
	MIMEType        = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	DefaultFilename = "practicals.docx"
)

const (
	nsW   = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	nsR   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsWP  = "http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"
	nsA   = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsPic = "http://schemas.openxmlformats.org/drawingml/2006/picture"

	nsContentTypes = "http://schemas.openxmlformats.org/package/2006/content-types"
	nsPackageRels  = "http://schemas.openxmlformats.org/package/2006/relationships"

	relOfficeDocument = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument"
	relCoreProps      = "http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties"
	relExtendedProps  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/extended-properties"
	relStyles         = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles"
	relSettings       = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/settings"
	relHeader         = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/header"
	relImage          = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"

	ctRels     = "application/vnd.openxmlformats-package.relationships+xml"
	ctMain     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	ctStyles   = "application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"
	ctSettings = "application/vnd.openxmlformats-officedocument.wordprocessingml.settings+xml"
	ctHeader   = "application/vnd.openxmlformats-officedocument.wordprocessingml.header+xml"
	ctCore     = "application/vnd.openxmlformats-package.core-properties+xml"
	ctApp      = "application/vnd.openxmlformats-officedocument.extended-properties+xml"
)

// Part names inside the package.
const (
	partContentTypes = "[Content_Types].xml"
	partRootRels     = "_rels/.rels"
	partCore         = "docProps/core.xml"
	partApp          = "docProps/app.xml"
	partDocument     = "word/document.xml"
	partDocumentRels = "word/_rels/document.xml.rels"
	partStyles       = "word/styles.xml"
	partSettings     = "word/settings.xml"
	partHeader       = "word/header1.xml"
	mediaDir         = "word/media/"
)

// Fixed relationship ids of word/document.xml. Images follow from rId4.
const (
	ridStyles   = "rId1"
	ridSettings = "rId2"
	ridHeader   = "rId3"
	ridFirstImg = 4
)

// Entries carry a fixed timestamp so equal documents produce equal bytes.
var entryTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// WriteOptions control packaging.
type WriteOptions struct {
	// FixZip rewrites the archive with sizes in the local headers instead of
	// trailing data descriptors.
	FixZip bool
}

type media struct {
	rid  string
	name string
	ext  string
	img  *Image
}

// Bytes serializes the document into a complete .docx file.
func Bytes(doc *Document, opts WriteOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, doc, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write serializes the document into w. Characters that XML cannot carry
// are written as U+FFFD.
func Write(w io.Writer, doc *Document, opts WriteOptions) error {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	images := collectMedia(doc)
	parts := []struct {
		name string
		doc  *etree.Document
	}{
		{partContentTypes, contentTypesXML(images)},
		{partRootRels, rootRelsXML()},
		{partCore, coreXML(doc.Properties)},
		{partApp, appXML()},
		{partDocument, documentXML(doc, images)},
		{partDocumentRels, documentRelsXML(images)},
		{partStyles, stylesXML()},
		{partSettings, settingsXML()},
		{partHeader, headerXML(doc.Header)},
	}
	for _, p := range parts {
		if err := writeXMLToZip(zw, p.name, p.doc); err != nil {
			return fmt.Errorf("unable to write %s: %w", p.name, err)
		}
	}
	for _, m := range images {
		if err := writeDataToZip(zw, mediaDir+m.name, m.img.Data); err != nil {
			return fmt.Errorf("unable to write %s: %w", m.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("unable to close archive: %w", err)
	}

	data := buf.Bytes()
	if opts.FixZip {
		fixed, err := clearDataDescriptors(data)
		if err != nil {
			return fmt.Errorf("unable to repack archive: %w", err)
		}
		data = fixed
	}
	_, err := w.Write(data)
	return err
}

func clearDataDescriptors(data []byte) ([]byte, error) {
	r, err := fixzip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	w := fixzip.NewWriter(&out)
	for _, file := range r.File {
		file.Flags &= ^fixzip.FlagDataDescriptor
		if err := w.CopyFile(file); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func collectMedia(doc *Document) []media {
	var images []media
	for _, img := range doc.Images() {
		n := len(images) + 1
		ext := model.ImageExtension(model.SniffImageType(img.Data))
		images = append(images, media{
			rid:  "rId" + strconv.Itoa(ridFirstImg+len(images)),
			name: "image" + strconv.Itoa(n) + "." + ext,
			ext:  ext,
			img:  img,
		})
	}
	return images
}

func writeXMLToZip(zw *zip.Writer, name string, doc *etree.Document) error {
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return err
	}
	return writeDataToZip(zw, name, buf.Bytes())
}

func writeDataToZip(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: entryTime,
	})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func newXML() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8" standalone="yes"`)
	return doc
}

func contentTypesXML(images []media) *etree.Document {
	doc := newXML()
	types := doc.CreateElement("Types")
	types.CreateAttr("xmlns", nsContentTypes)

	addDefault := func(ext, ct string) {
		d := types.CreateElement("Default")
		d.CreateAttr("Extension", ext)
		d.CreateAttr("ContentType", ct)
	}
	addDefault("rels", ctRels)
	addDefault("xml", "application/xml")
	seen := make(map[string]bool)
	for _, m := range images {
		if seen[m.ext] {
			continue
		}
		seen[m.ext] = true
		ct := "image/" + m.ext
		if m.ext == "jpg" {
			ct = "image/jpeg"
		}
		addDefault(m.ext, ct)
	}

	for _, o := range []struct{ part, ct string }{
		{partDocument, ctMain},
		{partStyles, ctStyles},
		{partSettings, ctSettings},
		{partHeader, ctHeader},
		{partCore, ctCore},
		{partApp, ctApp},
	} {
		ov := types.CreateElement("Override")
		ov.CreateAttr("PartName", "/"+o.part)
		ov.CreateAttr("ContentType", o.ct)
	}
	return doc
}

func relationships(rels ...[3]string) *etree.Document {
	doc := newXML()
	root := doc.CreateElement("Relationships")
	root.CreateAttr("xmlns", nsPackageRels)
	for _, r := range rels {
		rel := root.CreateElement("Relationship")
		rel.CreateAttr("Id", r[0])
		rel.CreateAttr("Type", r[1])
		rel.CreateAttr("Target", r[2])
	}
	return doc
}

func rootRelsXML() *etree.Document {
	return relationships(
		[3]string{"rId1", relOfficeDocument, partDocument},
		[3]string{"rId2", relCoreProps, partCore},
		[3]string{"rId3", relExtendedProps, partApp},
	)
}

func documentRelsXML(images []media) *etree.Document {
	rels := [][3]string{
		{ridStyles, relStyles, "styles.xml"},
		{ridSettings, relSettings, "settings.xml"},
		{ridHeader, relHeader, "header1.xml"},
	}
	for _, m := range images {
		rels = append(rels, [3]string{m.rid, relImage, "media/" + m.name})
	}
	return relationships(rels...)
}

func coreXML(props Properties) *etree.Document {
	doc := newXML()
	core := doc.CreateElement("cp:coreProperties")
	core.CreateAttr("xmlns:cp", "http://schemas.openxmlformats.org/package/2006/metadata/core-properties")
	core.CreateAttr("xmlns:dc", "http://purl.org/dc/elements/1.1/")
	core.CreateAttr("xmlns:dcterms", "http://purl.org/dc/terms/")
	core.CreateAttr("xmlns:xsi", "http://www.w3.org/2001/XMLSchema-instance")
	core.CreateElement("dc:title").SetText(xmlText(props.Title))
	core.CreateElement("dc:creator").SetText(xmlText(props.Creator))
	return doc
}

func appXML() *etree.Document {
	doc := newXML()
	props := doc.CreateElement("Properties")
	props.CreateAttr("xmlns", "http://schemas.openxmlformats.org/officeDocument/2006/extended-properties")
	props.CreateElement("Application").SetText("practicals")
	return doc
}

func wordRoot(doc *etree.Document, tag string) *etree.Element {
	root := doc.CreateElement(tag)
	root.CreateAttr("xmlns:w", nsW)
	root.CreateAttr("xmlns:r", nsR)
	return root
}

func setVal(e *etree.Element, tag, val string) *etree.Element {
	c := e.CreateElement(tag)
	c.CreateAttr("w:val", val)
	return c
}

func stylesXML() *etree.Document {
	doc := newXML()
	styles := wordRoot(doc, "w:styles")
	rPr := styles.CreateElement("w:docDefaults").CreateElement("w:rPrDefault").CreateElement("w:rPr")
	writeFonts(rPr, SerifFont)
	setVal(rPr, "w:sz", strconv.Itoa(TextSize))
	setVal(rPr, "w:szCs", strconv.Itoa(TextSize))

	normal := styles.CreateElement("w:style")
	normal.CreateAttr("w:type", "paragraph")
	normal.CreateAttr("w:default", "1")
	normal.CreateAttr("w:styleId", "Normal")
	setVal(normal, "w:name", "Normal")
	setVal(normal, "w:qFormat", "1")
	return doc
}

func settingsXML() *etree.Document {
	doc := newXML()
	settings := wordRoot(doc, "w:settings")
	setVal(settings, "w:defaultTabStop", "720")
	cs := settings.CreateElement("w:compat").CreateElement("w:compatSetting")
	cs.CreateAttr("w:name", "compatibilityMode")
	cs.CreateAttr("w:uri", "http://schemas.microsoft.com/office/word")
	cs.CreateAttr("w:val", "15")
	return doc
}

func headerXML(header []Paragraph) *etree.Document {
	doc := newXML()
	hdr := wordRoot(doc, "w:hdr")
	for i := range header {
		writeParagraph(hdr, &header[i])
	}
	return doc
}

func documentXML(d *Document, images []media) *etree.Document {
	doc := newXML()
	root := wordRoot(doc, "w:document")
	root.CreateAttr("xmlns:wp", nsWP)
	root.CreateAttr("xmlns:a", nsA)
	root.CreateAttr("xmlns:pic", nsPic)
	body := root.CreateElement("w:body")

	imgIndex := 0
	for _, b := range d.Body {
		switch blk := b.(type) {
		case *Paragraph:
			writeParagraph(body, blk)
		case *Image:
			writeImage(body, blk, images[imgIndex], imgIndex+1)
			imgIndex++
		case *PageBreak:
			body.CreateElement("w:p").CreateElement("w:r").CreateElement("w:br").CreateAttr("w:type", "page")
		}
	}

	sect := body.CreateElement("w:sectPr")
	hr := sect.CreateElement("w:headerReference")
	hr.CreateAttr("w:type", "default")
	hr.CreateAttr("r:id", ridHeader)
	pgSz := sect.CreateElement("w:pgSz")
	pgSz.CreateAttr("w:w", strconv.Itoa(PageWidth))
	pgSz.CreateAttr("w:h", strconv.Itoa(PageHeight))
	pgMar := sect.CreateElement("w:pgMar")
	for _, a := range []struct {
		k string
		v int
	}{
		{"w:top", d.Margins.Top},
		{"w:right", d.Margins.Right},
		{"w:bottom", d.Margins.Bottom},
		{"w:left", d.Margins.Left},
		{"w:header", HeaderMargin},
		{"w:footer", HeaderMargin},
		{"w:gutter", 0},
	} {
		pgMar.CreateAttr(a.k, strconv.Itoa(a.v))
	}
	return doc
}

func writeFonts(rPr *etree.Element, font string) {
	f := rPr.CreateElement("w:rFonts")
	for _, a := range []string{"w:ascii", "w:cs", "w:eastAsia", "w:hAnsi"} {
		f.CreateAttr(a, font)
	}
}

func writeParagraph(parent *etree.Element, p *Paragraph) {
	wp := parent.CreateElement("w:p")
	if p.SpacingBefore != 0 || p.SpacingAfter != 0 || p.Align != AlignLeft {
		pPr := wp.CreateElement("w:pPr")
		if p.SpacingBefore != 0 || p.SpacingAfter != 0 {
			sp := pPr.CreateElement("w:spacing")
			if p.SpacingBefore != 0 {
				sp.CreateAttr("w:before", strconv.Itoa(p.SpacingBefore))
			}
			if p.SpacingAfter != 0 {
				sp.CreateAttr("w:after", strconv.Itoa(p.SpacingAfter))
			}
		}
		if p.Align != AlignLeft {
			setVal(pPr, "w:jc", string(p.Align))
		}
	}
	for _, r := range p.Runs {
		writeRun(wp, r)
	}
}

func writeRun(wp *etree.Element, r Run) {
	wr := wp.CreateElement("w:r")
	rPr := wr.CreateElement("w:rPr")
	if r.Font != "" {
		writeFonts(rPr, r.Font)
	}
	if r.Bold {
		rPr.CreateElement("w:b")
		rPr.CreateElement("w:bCs")
	}
	if r.Size != 0 {
		setVal(rPr, "w:sz", strconv.Itoa(r.Size))
		setVal(rPr, "w:szCs", strconv.Itoa(r.Size))
	}
	if r.Underline {
		setVal(rPr, "w:u", "single")
	}
	t := wr.CreateElement("w:t")
	t.CreateAttr("xml:space", "preserve")
	t.SetText(xmlText(r.Text))
}

// xmlText replaces every rune XML 1.0 cannot carry with U+FFFD. Control
// characters other than tab, newline and carriage return do not survive a
// write.
func xmlText(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t', r == '\n', r == '\r',
			r >= 0x20 && r <= 0xD7FF,
			r >= 0xE000 && r <= 0xFFFD,
			r >= 0x10000 && r <= 0x10FFFF:
			return r
		}
		return '\uFFFD'
	}, s)
}

func writeImage(parent *etree.Element, img *Image, m media, id int) {
	cx := strconv.Itoa(img.Width * EMUPerPixel)
	cy := strconv.Itoa(img.Height * EMUPerPixel)
	sid := strconv.Itoa(id)

	inline := parent.CreateElement("w:p").CreateElement("w:r").CreateElement("w:drawing").CreateElement("wp:inline")
	for _, a := range []string{"distT", "distB", "distL", "distR"} {
		inline.CreateAttr(a, "0")
	}
	ext := inline.CreateElement("wp:extent")
	ext.CreateAttr("cx", cx)
	ext.CreateAttr("cy", cy)
	eff := inline.CreateElement("wp:effectExtent")
	for _, a := range []string{"l", "t", "r", "b"} {
		eff.CreateAttr(a, "0")
	}
	docPr := inline.CreateElement("wp:docPr")
	docPr.CreateAttr("id", sid)
	docPr.CreateAttr("name", "Picture "+sid)
	inline.CreateElement("wp:cNvGraphicFramePr").CreateElement("a:graphicFrameLocks").CreateAttr("noChangeAspect", "1")

	gd := inline.CreateElement("a:graphic").CreateElement("a:graphicData")
	gd.CreateAttr("uri", nsPic)
	pic := gd.CreateElement("pic:pic")
	nv := pic.CreateElement("pic:nvPicPr")
	cNvPr := nv.CreateElement("pic:cNvPr")
	cNvPr.CreateAttr("id", sid)
	cNvPr.CreateAttr("name", m.name)
	nv.CreateElement("pic:cNvPicPr")

	fill := pic.CreateElement("pic:blipFill")
	fill.CreateElement("a:blip").CreateAttr("r:embed", m.rid)
	fill.CreateElement("a:stretch").CreateElement("a:fillRect")

	spPr := pic.CreateElement("pic:spPr")
	xfrm := spPr.CreateElement("a:xfrm")
	off := xfrm.CreateElement("a:off")
	off.CreateAttr("x", "0")
	off.CreateAttr("y", "0")
	aext := xfrm.CreateElement("a:ext")
	aext.CreateAttr("cx", cx)
	aext.CreateAttr("cy", cy)
	geom := spPr.CreateElement("a:prstGeom")
	geom.CreateAttr("prst", "rect")
	geom.CreateElement("a:avLst")
}
