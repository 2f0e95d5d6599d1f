package docx

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/pavelanni/practicals/internal/model"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func practical(no string) model.Practical {
	return model.Practical{
		PracticalNo: no,
		Aim:         "aim " + no,
		Questions:   []model.Question{{Number: "1", QuestionText: "q", Code: "x"}},
		Conclusion:  "done " + no,
	}
}

func session(n int) model.Session {
	s := model.Session{Student: model.StudentData{Name: "A", RollNo: "1", Course: "C"}}
	for i := range n {
		s.Practicals = append(s.Practicals, practical(string(rune('1'+i))))
	}
	return s
}

func texts(doc *Document) []string {
	var out []string
	for _, p := range doc.Paragraphs() {
		out = append(out, p.Text())
	}
	return out
}

func TestBuildPageBreaks(t *testing.T) {
	for n := 1; n <= 4; n++ {
		doc := Build(session(n))

		if got := len(doc.Headings()); got != n {
			t.Errorf("n=%d: expected %d headings, got %d", n, n, got)
		}
		breaks := doc.PageBreaks()
		if len(breaks) != n-1 {
			t.Fatalf("n=%d: expected %d page breaks, got %d", n, n-1, len(breaks))
		}
		for _, i := range breaks {
			prev, ok := doc.Body[i-1].(*Paragraph)
			if !ok || !strings.HasPrefix(prev.Text(), "done ") {
				t.Errorf("n=%d: break %d not preceded by a conclusion", n, i)
			}
			next, ok := doc.Body[i+1].(*Paragraph)
			if !ok || !strings.HasPrefix(next.Text(), HeadingPrefix) {
				t.Errorf("n=%d: break %d not followed by a heading", n, i)
			}
		}
	}
}

func TestBuildCodeLines(t *testing.T) {
	s := session(1)
	s.Practicals[0].Questions[0].Code = "a\n\nb"
	doc := Build(s)

	var code []string
	for _, p := range doc.Paragraphs() {
		if len(p.Runs) == 1 && p.Runs[0].Font == MonoFont {
			code = append(code, p.Text())
		}
	}
	want := []string{"a", "", "b"}
	if len(code) != len(want) {
		t.Fatalf("expected %d code paragraphs, got %d: %q", len(want), len(code), code)
	}
	for i := range want {
		if code[i] != want[i] {
			t.Errorf("code line %d = %q, want %q", i, code[i], want[i])
		}
	}
}

func TestBuildStyles(t *testing.T) {
	doc := Build(session(1))
	ps := doc.Paragraphs()

	heading := ps[0]
	if heading.Align != AlignCenter || heading.SpacingAfter != 400 {
		t.Errorf("unexpected heading layout: %+v", heading)
	}
	for _, r := range heading.Runs {
		if !r.Bold || !r.Underline || r.Size != TextSize || r.Font != SerifFont {
			t.Errorf("unexpected heading run: %+v", r)
		}
	}

	var codeLabel *Paragraph
	for _, p := range ps {
		if p.Text() == CodeLabel {
			codeLabel = p
		}
	}
	if codeLabel == nil {
		t.Fatal("no Code: label")
	}
	if r := codeLabel.Runs[0]; !r.Bold || r.Underline {
		t.Errorf("Code: label should be bold without underline: %+v", r)
	}

	for _, h := range doc.Header {
		if h.Align != AlignRight {
			t.Errorf("header line %q not right aligned", h.Text())
		}
	}
}

func TestEndToEnd(t *testing.T) {
	img := pngBytes(t)
	s := model.Session{
		Student: model.StudentData{Name: "Jane Doe", RollNo: "42", Course: "CS101"},
		Practicals: []model.Practical{{
			PracticalNo: "1",
			Aim:         "Test sort",
			Questions:   []model.Question{{Number: "1", QuestionText: "Sort an array", Code: "for i in arr:\n  print(i)"}},
			Outputs:     []model.Blob{{Data: img}},
			Conclusion:  "Works",
		}},
	}

	data, err := Bytes(Build(s), WriteOptions{FixZip: true})
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	doc, err := Read(data)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	var header []string
	for _, p := range doc.Header {
		header = append(header, p.Text())
	}
	if strings.Join(header, "|") != "Jane Doe|Roll no. 42|CS101" {
		t.Errorf("unexpected header %q", header)
	}

	want := []string{
		"PRACTICAL No. 1",
		"AIM: Test sort",
		"Question 1:",
		"Sort an array",
		"Code:",
		"for i in arr:",
		"  print(i)",
		"OUTPUT:",
		"CONCLUSION:",
		"Works",
	}
	got := texts(doc)
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("paragraphs mismatch:\n got %q\nwant %q", got, want)
	}

	if len(doc.Headings()) != 1 {
		t.Errorf("expected 1 heading, got %d", len(doc.Headings()))
	}
	if len(doc.PageBreaks()) != 0 {
		t.Errorf("expected no page breaks, got %d", len(doc.PageBreaks()))
	}

	imgs := doc.Images()
	if len(imgs) != 1 {
		t.Fatalf("expected 1 image, got %d", len(imgs))
	}
	if !bytes.Equal(imgs[0].Data, img) {
		t.Error("image bytes changed")
	}
	if imgs[0].Width != ImageWidth || imgs[0].Height != ImageHeight {
		t.Errorf("unexpected image size %dx%d", imgs[0].Width, imgs[0].Height)
	}
	// The image sits between OUTPUT: and CONCLUSION:.
	for i, b := range doc.Body {
		if _, ok := b.(*Image); ok {
			if doc.Body[i-1].(*Paragraph).Text() != OutputLabel {
				t.Error("image not after OUTPUT:")
			}
			if doc.Body[i+1].(*Paragraph).Text() != ConclusionLabel {
				t.Error("image not before CONCLUSION:")
			}
		}
	}

	if doc.Margins != (Margins{Top: Inch, Right: Inch, Bottom: Inch, Left: Inch}) {
		t.Errorf("unexpected margins %+v", doc.Margins)
	}
	if doc.Properties.Creator != "Jane Doe" {
		t.Errorf("unexpected creator %q", doc.Properties.Creator)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := session(3)
	s.Practicals[1].Outputs = []model.Blob{{Data: pngBytes(t)}, {Data: []byte("not an image")}}
	built := Build(s)

	data, err := Bytes(built, WriteOptions{})
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	got, err := Read(data)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got.Body) != len(built.Body) {
		t.Fatalf("expected %d blocks, got %d", len(built.Body), len(got.Body))
	}
	for i := range built.Body {
		switch want := built.Body[i].(type) {
		case *Paragraph:
			p, ok := got.Body[i].(*Paragraph)
			if !ok {
				t.Fatalf("block %d: expected paragraph, got %T", i, got.Body[i])
			}
			if p.Align != want.Align || p.SpacingBefore != want.SpacingBefore || p.SpacingAfter != want.SpacingAfter {
				t.Errorf("block %d: layout %+v, want %+v", i, p, want)
			}
			if len(p.Runs) != len(want.Runs) {
				t.Fatalf("block %d: %d runs, want %d", i, len(p.Runs), len(want.Runs))
			}
			for j := range want.Runs {
				if p.Runs[j] != want.Runs[j] {
					t.Errorf("block %d run %d: %+v, want %+v", i, j, p.Runs[j], want.Runs[j])
				}
			}
		case *Image:
			img, ok := got.Body[i].(*Image)
			if !ok || !bytes.Equal(img.Data, want.Data) {
				t.Errorf("block %d: image mismatch", i)
			}
		case *PageBreak:
			if _, ok := got.Body[i].(*PageBreak); !ok {
				t.Errorf("block %d: expected page break, got %T", i, got.Body[i])
			}
		}
	}
}

func TestWriteReplacesControlCharacters(t *testing.T) {
	s := session(1)
	s.Student.Name = "Jane\x01Doe"
	s.Practicals[0].Questions[0].Code = "a\x00b\x0cc\td"

	data, err := Bytes(Build(s), WriteOptions{})
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	doc, err := Read(data)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := doc.Properties.Creator; got != "Jane\uFFFDDoe" {
		t.Errorf("creator = %q", got)
	}
	var found bool
	for _, p := range doc.Paragraphs() {
		if len(p.Runs) == 1 && p.Runs[0].Font == MonoFont {
			found = true
			if got := p.Text(); got != "a\uFFFDb\uFFFDc\td" {
				t.Errorf("code line = %q", got)
			}
		}
	}
	if !found {
		t.Error("no code paragraph")
	}
}

func TestBytesDeterministic(t *testing.T) {
	s := session(2)
	s.Practicals[0].Outputs = []model.Blob{{Data: pngBytes(t)}}

	for _, fix := range []bool{false, true} {
		a, err := Bytes(Build(s), WriteOptions{FixZip: fix})
		if err != nil {
			t.Fatalf("Bytes: %v", err)
		}
		b, err := Bytes(Build(s), WriteOptions{FixZip: fix})
		if err != nil {
			t.Fatalf("Bytes: %v", err)
		}
		if !bytes.Equal(a, b) {
			t.Errorf("fix=%v: output differs between runs", fix)
		}
	}
}

func TestFixZipClearsDataDescriptors(t *testing.T) {
	data, err := Bytes(Build(session(1)), WriteOptions{FixZip: true})
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	if zr.File[0].Name != "[Content_Types].xml" {
		t.Errorf("first entry is %q", zr.File[0].Name)
	}
	for _, f := range zr.File {
		if f.Flags&0x8 != 0 {
			t.Errorf("%s still uses a data descriptor", f.Name)
		}
	}
}

func TestMediaExtensions(t *testing.T) {
	s := session(1)
	s.Practicals[0].Outputs = []model.Blob{{Data: pngBytes(t)}}
	data, err := Bytes(Build(s), WriteOptions{})
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	found := false
	for _, f := range zr.File {
		if f.Name == "word/media/image1.png" {
			found = true
		}
	}
	if !found {
		t.Error("word/media/image1.png not in package")
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	if _, err := Read([]byte("hello")); err == nil {
		t.Error("expected error for non-zip input")
	}
}

func TestEncodeText(t *testing.T) {
	data, err := Bytes(Build(session(2)), WriteOptions{FixZip: true})
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	enc := EncodeText(data)
	dec, err := DecodeText(enc + "\n")
	if err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if !bytes.Equal(dec, data) {
		t.Error("base64 round trip changed bytes")
	}
	if _, err := DecodeText("@@@"); err == nil {
		t.Error("expected error for invalid text")
	}
}
