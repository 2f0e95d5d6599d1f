package transport

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// WriteMultipart writes the form as multipart/form-data: fields first, then
// parts, each group in form order. It returns the content type header value.
func WriteMultipart(w io.Writer, f *Form) (string, error) {
	mw := multipart.NewWriter(w)
	for _, fl := range f.Fields {
		if err := mw.WriteField(fl.Name, fl.Value); err != nil {
			return "", fmt.Errorf("write field %s: %w", fl.Name, err)
		}
	}
	for _, p := range f.Parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(p.Name), escapeQuotes(p.Filename)))
		ct := p.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		pw, err := mw.CreatePart(h)
		if err != nil {
			return "", fmt.Errorf("create part %s: %w", p.Name, err)
		}
		if _, err := pw.Write(p.Data); err != nil {
			return "", fmt.Errorf("write part %s: %w", p.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}
	return mw.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// ReadMultipart reads every part of a multipart/form-data stream into memory.
// Parts carrying a filename become binary parts, the rest become fields.
// Reading fails with ErrTooLarge once more than limit bytes of part content
// have been seen; limit <= 0 disables the check.
func ReadMultipart(r *multipart.Reader, limit int64) (*Form, error) {
	f := &Form{}
	var total int64
	for {
		p, err := r.NextPart()
		if errors.Is(err, io.EOF) {
			return f, nil
		}
		if err != nil {
			return nil, fmt.Errorf("next part: %w", err)
		}

		var src io.Reader = p
		if limit > 0 {
			src = io.LimitReader(p, limit-total+1)
		}
		data, err := io.ReadAll(src)
		p.Close()
		if err != nil {
			return nil, fmt.Errorf("read part %s: %w", p.FormName(), err)
		}
		total += int64(len(data))
		if limit > 0 && total > limit {
			return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
		}

		name := p.FormName()
		if p.FileName() == "" {
			f.AddField(name, string(data))
			continue
		}
		f.AddPart(Part{
			Name:        name,
			Filename:    p.FileName(),
			ContentType: p.Header.Get("Content-Type"),
			Data:        data,
		})
	}
}
