// Package generator turns a submitted practical-record form into a finished
// word-processing document.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pavelanni/practicals/internal/docx"
	"github.com/pavelanni/practicals/internal/model"
	"github.com/pavelanni/practicals/internal/transport"
)

var (
	// ErrInvalid is returned when the submission is well formed but the
	// student data fails validation.
	ErrInvalid = errors.New("invalid submission")
	// ErrGeneration is returned for any failure while laying out or
	// packaging the document.
	ErrGeneration = errors.New("document generation failed")
)

// Generator runs the pipeline Reconstruct, validate, Build, serialize.
type Generator struct {
	opts   docx.WriteOptions
	logger *slog.Logger
}

// New creates a Generator. A nil logger means slog.Default().
func New(opts docx.WriteOptions, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{opts: opts, logger: logger}
}

// Generate returns the document for form encoded as base64 text.
func (g *Generator) Generate(ctx context.Context, form *transport.Form) (string, error) {
	data, err := g.GenerateBytes(ctx, form)
	if err != nil {
		return "", err
	}
	return docx.EncodeText(data), nil
}

// GenerateBytes returns the raw document bytes for form.
func (g *Generator) GenerateBytes(ctx context.Context, form *transport.Form) ([]byte, error) {
	s, err := transport.Reconstruct(form)
	if err != nil {
		g.logger.Warn("rejected submission", "error", err)
		return nil, err
	}
	if err := s.Student.Validate(); err != nil {
		g.logger.Warn("invalid student data", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	return g.Render(ctx, s)
}

// Render builds and serializes an already reconstructed session.
func (g *Generator) Render(ctx context.Context, s model.Session) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("panic during generation", "panic", r)
			data, err = nil, fmt.Errorf("%w: %v", ErrGeneration, r)
		}
	}()

	doc := docx.Build(s)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	data, err = docx.Bytes(doc, g.opts)
	if err != nil {
		g.logger.Error("serialize document", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	g.logger.Debug("generated document",
		"student", s.Student.Name,
		"practicals", len(s.Practicals),
		"bytes", len(data))
	return data, nil
}
