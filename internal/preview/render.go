// Package preview projects a session into an XHTML page that mirrors the
// layout of the generated document, and manages the transient references
// through which the page shows output images.
package preview

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/beevik/etree"

	"github.com/pavelanni/practicals/internal/docx"
	"github.com/pavelanni/practicals/internal/i18n"
	"github.com/pavelanni/practicals/internal/model"
)

// RefSource supplies image references for the outputs of practical p.
type RefSource interface {
	Refs(p int, blobs []model.Blob) ([]string, error)
}

// Render builds the preview page for s. The page is structurally equivalent
// to the document built by docx.Build, not a byte-exact rendition of it.
func Render(ctx context.Context, s model.Session, refs RefSource) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	doc.CreateDirective("DOCTYPE html")

	html := doc.CreateElement("html")
	html.CreateAttr("xmlns", "http://www.w3.org/1999/xhtml")
	head := html.CreateElement("head")
	head.CreateElement("meta").CreateAttr("charset", "utf-8")
	app := head.CreateElement("meta")
	app.CreateAttr("name", "application-name")
	app.CreateAttr("content", i18n.T(ctx, "AppTitle"))
	head.CreateElement("title").SetText(i18n.T(ctx, "PreviewTitle"))
	head.CreateElement("style").SetText(stylesheet)

	body := html.CreateElement("body")
	header := body.CreateElement("header")
	header.CreateAttr("class", "student")
	header.CreateElement("p").SetText(s.Student.Name)
	header.CreateElement("p").SetText(docx.RollNoPrefix + s.Student.RollNo)
	header.CreateElement("p").SetText(s.Student.Course)

	if len(s.Practicals) == 0 {
		empty := body.CreateElement("p")
		empty.CreateAttr("class", "empty")
		empty.SetText(i18n.T(ctx, "NoPracticals"))
	}

	for i, pr := range s.Practicals {
		if i > 0 {
			body.CreateElement("hr").CreateAttr("class", "page-break")
		}
		if err := renderPractical(ctx, body, i, pr, refs); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// Bytes renders s and serializes the page.
func Bytes(ctx context.Context, s model.Session, refs RefSource) ([]byte, error) {
	doc, err := Render(ctx, s, refs)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write preview: %w", err)
	}
	return buf.Bytes(), nil
}

const stylesheet = `body { font-family: "Times New Roman", serif; font-size: 14pt; }
header.student { text-align: right; }
h2 { text-align: center; font-size: 14pt; }
.label { font-weight: bold; text-decoration: underline; }
pre { font-family: "Courier New", monospace; }
.outputs img { width: 600px; height: 400px; object-fit: contain; display: block; }
hr.page-break { page-break-after: always; }`

func labelled(parent *etree.Element, tag, label, text string) *etree.Element {
	e := parent.CreateElement(tag)
	span := e.CreateElement("span")
	span.CreateAttr("class", "label")
	span.SetText(label)
	if text != "" {
		e.CreateText(text)
	}
	return e
}

func renderPractical(ctx context.Context, body *etree.Element, p int, pr model.Practical, refs RefSource) error {
	sec := body.CreateElement("section")
	sec.CreateAttr("class", "practical")
	sec.CreateAttr("id", "practical-"+strconv.Itoa(p))

	labelled(sec, "h2", docx.HeadingPrefix+pr.PracticalNo, "")
	labelled(sec, "p", docx.AimLabel, pr.Aim)

	for _, q := range pr.Questions {
		div := sec.CreateElement("div")
		div.CreateAttr("class", "question")
		labelled(div, "p", "Question "+q.Number+":", "")
		div.CreateElement("p").SetText(q.QuestionText)
		div.CreateElement("p").CreateElement("b").SetText(docx.CodeLabel)
		div.CreateElement("pre").SetText(q.Code)
	}

	labelled(sec, "p", docx.OutputLabel, "")
	gallery := sec.CreateElement("div")
	gallery.CreateAttr("class", "outputs")
	if refs != nil {
		urls, err := refs.Refs(p, pr.Outputs)
		if err != nil {
			return fmt.Errorf("references for practical %d: %w", p, err)
		}
		for i, u := range urls {
			img := gallery.CreateElement("img")
			img.CreateAttr("src", u)
			img.CreateAttr("alt", i18n.Td(ctx, "OutputAlt", map[string]any{"Index": i + 1}))
		}
	}

	labelled(sec, "p", docx.ConclusionLabel, "")
	sec.CreateElement("p").SetText(pr.Conclusion)
	return nil
}
