package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/spf13/afero"

	"github.com/pavelanni/practicals/internal/docx"
	"github.com/pavelanni/practicals/internal/model"
	"github.com/pavelanni/practicals/internal/transport"
)

var (
	// ErrBusy is returned when an export is started while another one is
	// still running on the same Exporter.
	ErrBusy = errors.New("export already in progress")
	// ErrExportFailed wraps every other export failure.
	ErrExportFailed = errors.New("export failed")
	// ErrExists is returned by FileSink when the target exists and
	// overwriting is off.
	ErrExists = errors.New("file already exists")
)

// Sink receives the finished document.
type Sink interface {
	Deliver(filename, mimeType string, data []byte) (string, error)
}

// Exporter runs one export at a time.
type Exporter struct {
	transport Transport
	sink      Sink
	logger    *slog.Logger
	busy      atomic.Bool
}

// NewExporter creates an Exporter. A nil logger means slog.Default().
func NewExporter(t Transport, sink Sink, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{transport: t, sink: sink, logger: logger}
}

// Busy reports whether an export is running.
func (e *Exporter) Busy() bool { return e.busy.Load() }

// Export validates s, sends it for generation and delivers the result. It
// returns where the document was delivered.
func (e *Exporter) Export(ctx context.Context, s model.Session) (string, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return "", ErrBusy
	}
	defer e.busy.Store(false)

	loc, err := e.export(ctx, s)
	if err != nil {
		e.logger.Error("export failed", "error", err)
		return "", fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	e.logger.Info("exported document", "path", loc, "practicals", len(s.Practicals))
	return loc, nil
}

func (e *Exporter) export(ctx context.Context, s model.Session) (string, error) {
	if err := s.Student.Validate(); err != nil {
		return "", err
	}
	text, err := e.transport.Generate(ctx, transport.Flatten(s))
	if err != nil {
		return "", err
	}
	data, err := docx.DecodeText(text)
	if err != nil {
		return "", err
	}
	return e.sink.Deliver(docx.DefaultFilename, docx.MIMEType, data)
}

// FileSink writes documents into a directory.
type FileSink struct {
	Fs        afero.Fs
	Dir       string
	Overwrite bool
}

// NewFileSink creates a sink writing to dir on the OS filesystem.
func NewFileSink(dir string, overwrite bool) *FileSink {
	return &FileSink{Fs: afero.NewOsFs(), Dir: dir, Overwrite: overwrite}
}

// Deliver writes data to a temporary file in Dir and renames it into place.
// The temporary file never survives a failure.
func (s *FileSink) Deliver(filename, _ string, data []byte) (path string, err error) {
	fs := s.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	target := filepath.Join(s.Dir, filename)
	if !s.Overwrite {
		ok, err := afero.Exists(fs, target)
		if err != nil {
			return "", fmt.Errorf("check target: %w", err)
		}
		if ok {
			return "", fmt.Errorf("%w: %s", ErrExists, target)
		}
	}

	tmp, err := afero.TempFile(fs, s.Dir, "."+filename+".*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = fs.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err = fs.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("chmod temp file: %w", err)
	}
	if err = fs.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("rename into place: %w", err)
	}
	return target, nil
}
