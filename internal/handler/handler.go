package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/practicals/internal/docx"
	"github.com/pavelanni/practicals/internal/generator"
	"github.com/pavelanni/practicals/internal/i18n"
	"github.com/pavelanni/practicals/internal/model"
	"github.com/pavelanni/practicals/internal/preview"
	"github.com/pavelanni/practicals/internal/transport"
)

// ObjectsPath is where live preview references are served, relative to the
// router root.
const ObjectsPath = "/api/v1/objects/"

const xhtmlType = "application/xhtml+xml; charset=utf-8"

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	gen    *generator.Generator
	live   *preview.Live
	config model.ServiceConfig
}

// New creates a new Handler.
func New(gen *generator.Generator, live *preview.Live, cfg model.ServiceConfig) *Handler {
	return &Handler{gen: gen, live: live, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.handleHealth)
		r.Post("/generate", h.handleGenerate)
		r.Post("/generate/download", h.handleDownload)
		r.Post("/preview", h.handlePreview)
		r.Put("/previews/{previewID}", h.handleLivePreview)
		r.Delete("/previews/{previewID}", h.handleDropPreview)
		r.Get("/objects/{ref}", h.handleObject)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"refs":   h.live.Registry().Len(),
	})
}

// readForm decodes a multipart/form-data request body.
func (h *Handler) readForm(r *http.Request) (*transport.Form, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, &transport.StructureError{Key: "Content-Type", Reason: err.Error()}
	}
	return transport.ReadMultipart(mr, h.config.MaxUploadBytes)
}

// fail maps a pipeline error to a status code and a localized message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, transport.ErrTooLarge):
		http.Error(w, i18n.T(ctx, "SubmissionTooLarge"), http.StatusRequestEntityTooLarge)
	case errors.Is(err, transport.ErrStructure), errors.Is(err, generator.ErrInvalid):
		http.Error(w, i18n.Td(ctx, "InvalidSubmission", map[string]any{"Reason": err.Error()}), http.StatusBadRequest)
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		http.Error(w, i18n.T(ctx, "GenerationFailed"), http.StatusInternalServerError)
	}
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	form, err := h.readForm(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	text, err := h.gen.Generate(r.Context(), form)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte(text)); err != nil {
		slog.Error("write response", "error", err)
	}
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	form, err := h.readForm(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	data, err := h.gen.GenerateBytes(r.Context(), form)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", docx.MIMEType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": docx.DefaultFilename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		slog.Error("write response", "error", err)
	}
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	form, err := h.readForm(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := transport.Reconstruct(form)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := preview.Bytes(r.Context(), s, preview.DataURIs{
		MaxWidth:  h.config.ThumbWidth,
		MaxHeight: h.config.ThumbHeight,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xhtmlType)
	if _, err := w.Write(page); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleLivePreview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "previewID")
	form, err := h.readForm(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := transport.Reconstruct(form)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := preview.Bytes(r.Context(), s, h.live.Source(id))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.live.Trim(id, len(s.Practicals)); err != nil {
		slog.Warn("release preview references", "preview", id, "error", err)
	}
	w.Header().Set("Content-Type", xhtmlType)
	if _, err := w.Write(page); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleDropPreview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "previewID")
	err := h.live.Drop(id)
	switch {
	case errors.Is(err, preview.ErrUnknownPreview):
		http.Error(w, i18n.T(r.Context(), "PreviewNotFound"), http.StatusNotFound)
		return
	case err != nil:
		slog.Warn("release preview references", "preview", id, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleObject(w http.ResponseWriter, r *http.Request) {
	blob, ok := h.live.Registry().Get(chi.URLParam(r, "ref"))
	if !ok {
		http.Error(w, i18n.T(r.Context(), "ObjectNotFound"), http.StatusNotFound)
		return
	}
	ct := blob.ContentType
	if ct == "" {
		ct = model.SniffImageType(blob.Data)
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(blob.Data); err != nil {
		slog.Error("write response", "error", err)
	}
}
