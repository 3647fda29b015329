package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"coursedocs-backend/internal/shared/storage/object"
)

const (
	MimePDF  = "application/pdf"
	MimeText = "text/plain"
)

// ErrUnsupportedMime is returned when no extractor is registered for a mime type.
var ErrUnsupportedMime = errors.New("unsupported mime type")

// Extractor turns the raw bytes of one format into plain text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// Func adapts a function to the Extractor interface.
type Func func(ctx context.Context, data []byte) (string, error)

// Extract calls f.
func (f Func) Extract(ctx context.Context, data []byte) (string, error) {
	return f(ctx, data)
}

// Registry maps normalized mime types to extractors.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[string]Extractor)}
}

// DefaultRegistry returns a registry with the PDF and plain text extractors.
// Libraries used: github.com/ledongthuc/pdf (PDF).
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(MimePDF, PDF{})
	r.Register(MimeText, PlainText{})
	return r
}

// Register binds an extractor to a mime type, replacing any previous binding.
func (r *Registry) Register(mimeType string, e Extractor) {
	r.extractors[normalizeMimeType(mimeType)] = e
}

// Lookup returns the extractor for mimeType.
func (r *Registry) Lookup(mimeType string) (Extractor, bool) {
	e, ok := r.extractors[normalizeMimeType(mimeType)]
	return e, ok
}

// MimeTypes lists the registered mime types in sorted order.
func (r *Registry) MimeTypes() []string {
	out := make([]string, 0, len(r.extractors))
	for m := range r.extractors {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// ExtractBytes dispatches an in-memory payload by mime type.
func (r *Registry) ExtractBytes(ctx context.Context, data []byte, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e, ok := r.Lookup(mimeType)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMime, mimeType)
	}
	text, err := e.Extract(ctx, data)
	if err != nil {
		return "", err
	}
	return stripNUL(text), nil
}

// stripNUL drops U+0000, which is valid UTF-8 but cannot be stored in a
// Postgres text column.
func stripNUL(s string) string {
	if strings.IndexByte(s, 0) < 0 {
		return s
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// Extract reads a stored object and extracts its text.
func (r *Registry) Extract(ctx context.Context, store object.ObjectStore, key string, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, ok := r.Lookup(mimeType); !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMime, mimeType)
	}

	body, err := store.Open(ctx, key)
	if err != nil {
		return "", fmt.Errorf("extract text key=%s mime=%s: %w", key, mimeType, err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("extract text key=%s mime=%s: read: %w", key, mimeType, err)
	}

	text, err := r.ExtractBytes(ctx, raw, mimeType)
	if err != nil {
		return "", fmt.Errorf("extract text key=%s mime=%s: %w", key, mimeType, err)
	}
	return text, nil
}

func normalizeMimeType(mimeType string) string {
	return strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
}
