// Package client exports a session to a finished document, either through a
// remote generation service or in process.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pavelanni/practicals/internal/generator"
	"github.com/pavelanni/practicals/internal/transport"
)

// GeneratePath is the service endpoint returning the document as base64 text.
const GeneratePath = "/api/v1/generate"

// Transport delivers a flattened submission and returns the encoded document.
type Transport interface {
	Generate(ctx context.Context, form *transport.Form) (string, error)
}

// HTTPTransport posts submissions to a generation service.
type HTTPTransport struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPTransport creates a transport for the service at baseURL.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

// Generate implements Transport.
func (t *HTTPTransport) Generate(ctx context.Context, form *transport.Form) (string, error) {
	var body bytes.Buffer
	ct, err := transport.WriteMultipart(&body, form)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+GeneratePath, &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Accept", "text/plain")

	c := t.Client
	if c == nil {
		c = http.DefaultClient
	}
	resp, err := c.Do(req)
	if err != nil {
		return "", fmt.Errorf("post submission: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("service returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return string(data), nil
}

// LocalTransport runs the generator in process.
type LocalTransport struct {
	Generator *generator.Generator
}

// Generate implements Transport.
func (t LocalTransport) Generate(ctx context.Context, form *transport.Form) (string, error) {
	return t.Generator.Generate(ctx, form)
}
