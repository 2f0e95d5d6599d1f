package handler

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/practicals/internal/docx"
	"github.com/pavelanni/practicals/internal/generator"
	"github.com/pavelanni/practicals/internal/i18n"
	"github.com/pavelanni/practicals/internal/model"
	"github.com/pavelanni/practicals/internal/preview"
	"github.com/pavelanni/practicals/internal/transport"
)

type testServer struct {
	*httptest.Server
	reg *preview.Registry
}

func newTestServer(t *testing.T, cfg model.ServiceConfig) *testServer {
	t.Helper()
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	reg := preview.NewRegistry(cfg.MaxRefs)
	live := preview.NewLive(reg, ObjectsPath)
	h := New(generator.New(docx.WriteOptions{FixZip: true}, nil), live, cfg)

	r := chi.NewRouter()
	r.Use(i18n.Middleware("en"))
	h.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, reg: reg}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	return pngSized(t, 3)
}

func pngSized(t *testing.T, n int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, n, n))); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func sampleSession(t *testing.T) model.Session {
	t.Helper()
	return model.Session{
		Student: model.StudentData{Name: "Jane Doe", RollNo: "42", Course: "CS101"},
		Practicals: []model.Practical{{
			PracticalNo: "1",
			Aim:         "Test sort",
			Questions:   []model.Question{{Number: "1", QuestionText: "Sort an array", Code: "x"}},
			Outputs:     []model.Blob{{Data: pngBytes(t)}, {Data: pngBytes(t)}},
			Conclusion:  "Works",
		}},
	}
}

func (ts *testServer) send(t *testing.T, method, path string, form *transport.Form) *http.Response {
	t.Helper()
	var body bytes.Buffer
	ct := "text/plain"
	if form != nil {
		var err error
		if ct, err = transport.WriteMultipart(&body, form); err != nil {
			t.Fatalf("WriteMultipart: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", ct)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return data
}

func TestGenerate(t *testing.T) {
	ts := newTestServer(t, model.ServiceConfig{})
	resp := ts.send(t, http.MethodPost, "/api/v1/generate", transport.Flatten(sampleSession(t)))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, readBody(t, resp))
	}
	data, err := docx.DecodeText(string(readBody(t, resp)))
	if err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	doc, err := docx.Read(data)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(doc.Images()) != 2 {
		t.Errorf("expected 2 images, got %d", len(doc.Images()))
	}
}

func TestDownload(t *testing.T) {
	ts := newTestServer(t, model.ServiceConfig{})
	resp := ts.send(t, http.MethodPost, "/api/v1/generate/download", transport.Flatten(sampleSession(t)))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != docx.MIMEType {
		t.Errorf("unexpected content type %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename=practicals.docx` {
		t.Errorf("unexpected disposition %q", cd)
	}
	if _, err := docx.Read(readBody(t, resp)); err != nil {
		t.Errorf("Read: %v", err)
	}
}

func TestGenerateStatusMapping(t *testing.T) {
	invalid := transport.Flatten(sampleSession(t))
	invalid.Fields[0].Value = ""

	broken := &transport.Form{}
	broken.AddField("name", "a")

	tests := []struct {
		name   string
		cfg    model.ServiceConfig
		form   *transport.Form
		status int
		text   string
	}{
		{"structure", model.ServiceConfig{}, broken, http.StatusBadRequest, "incomplete"},
		{"invalid", model.ServiceConfig{}, invalid, http.StatusBadRequest, "Name is required"},
		{"too large", model.ServiceConfig{MaxUploadBytes: 16}, transport.Flatten(sampleSession(t)), http.StatusRequestEntityTooLarge, "too large"},
		{"not multipart", model.ServiceConfig{}, nil, http.StatusBadRequest, "incomplete"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.cfg)
			resp := ts.send(t, http.MethodPost, "/api/v1/generate", tt.form)
			if resp.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, resp.StatusCode)
			}
			if body := string(readBody(t, resp)); !strings.Contains(body, tt.text) {
				t.Errorf("body %q does not mention %q", body, tt.text)
			}
		})
	}
}

func TestPreviewDataURIs(t *testing.T) {
	ts := newTestServer(t, model.ServiceConfig{ThumbWidth: 2, ThumbHeight: 2})
	resp := ts.send(t, http.MethodPost, "/api/v1/preview", transport.Flatten(sampleSession(t)))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	body := string(readBody(t, resp))
	if strings.Count(body, `src="data:image/png;base64,`) != 2 {
		t.Errorf("expected 2 data URI images in %s", body)
	}
	if ts.reg.Len() != 0 {
		t.Errorf("data URI preview created %d refs", ts.reg.Len())
	}
}

var objectSrc = regexp.MustCompile(`src="(/api/v1/objects/[^"]+)"`)

func TestLivePreview(t *testing.T) {
	ts := newTestServer(t, model.ServiceConfig{})
	s := sampleSession(t)

	var last []string
	for i := range 5 {
		resp := ts.send(t, http.MethodPut, "/api/v1/previews/p1", transport.Flatten(s))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d", resp.StatusCode)
		}
		last = nil
		for _, m := range objectSrc.FindAllStringSubmatch(string(readBody(t, resp)), -1) {
			last = append(last, m[1])
		}
		// Drop the first output so every round changes the list.
		s.Practicals[0].Outputs = append(s.Practicals[0].Outputs[1:], model.Blob{Data: pngSized(t, 4+i)})
	}
	if len(last) != 2 {
		t.Fatalf("expected 2 object refs, got %d", len(last))
	}
	if ts.reg.Len() != 2 {
		t.Errorf("registry holds %d refs after repeated updates", ts.reg.Len())
	}

	resp := ts.send(t, http.MethodGet, last[0], nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Errorf("object fetch: status %d type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	resp = ts.send(t, http.MethodDelete, "/api/v1/previews/p1", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status %d", resp.StatusCode)
	}
	if ts.reg.Len() != 0 {
		t.Errorf("registry holds %d refs after delete", ts.reg.Len())
	}
	resp = ts.send(t, http.MethodGet, last[0], nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("revoked object status %d", resp.StatusCode)
	}
}

func TestDropUnknownPreview(t *testing.T) {
	ts := newTestServer(t, model.ServiceConfig{})
	s := sampleSession(t)
	s.Practicals[0].Outputs = nil

	resp := ts.send(t, http.MethodPut, "/api/v1/previews/p2", transport.Flatten(s))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if ts.reg.Len() != 0 {
		t.Errorf("preview without outputs created %d refs", ts.reg.Len())
	}

	for _, id := range []string{"p2", "never-seen"} {
		resp = ts.send(t, http.MethodDelete, "/api/v1/previews/"+id, nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", id, resp.StatusCode)
		}
		if body := string(readBody(t, resp)); !strings.Contains(body, "Preview not found") {
			t.Errorf("%s: unexpected body %q", id, body)
		}
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, model.ServiceConfig{})
	resp := ts.send(t, http.MethodGet, "/api/v1/health", nil)
	var got map[string]any
	if err := json.Unmarshal(readBody(t, resp), &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got["status"] != "ok" {
		t.Errorf("unexpected health %v", got)
	}
}
