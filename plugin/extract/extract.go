// Package extract turns document bytes into plain text for chunking.
// Markdown and HTML are handled natively, PDF and Office formats are
// delegated to Apache Tika when it is configured.
package extract

import (
	"context"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Result represents the extraction result with metadata.
type Result struct {
	Text        string            `json:"text"`
	Title       string            `json:"title,omitempty"`
	ContentType string            `json:"content_type"`
	WordCount   int               `json:"word_count,omitempty"`
	CharCount   int               `json:"char_count,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// calculateStats calculates word and character counts.
func (r *Result) calculateStats() {
	r.CharCount = len(r.Text)
	r.WordCount = len(strings.Fields(r.Text))
}

// extensionContentTypes maps extensions the mime package misses.
var extensionContentTypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".log":      "text/plain",
}

// Extractor dispatches extraction by content type.
type Extractor struct {
	tika *TikaClient
}

// NewExtractor creates an extractor. The tika client may be nil, in which
// case only native formats are supported.
func NewExtractor(tika *TikaClient) *Extractor {
	return &Extractor{tika: tika}
}

// Extract converts document bytes to plain text.
func (e *Extractor) Extract(ctx context.Context, data []byte, contentType string) (*Result, error) {
	mediaType := NormalizeContentType(contentType)

	switch {
	case mediaType == "text/markdown":
		return ExtractMarkdown(data)
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return ExtractHTML(data)
	case strings.HasPrefix(mediaType, "text/"):
		result := &Result{
			Text:        string(data),
			ContentType: mediaType,
		}
		result.calculateStats()
		return result, nil
	}

	if e.tika != nil && e.tika.IsSupported(mediaType) {
		return e.tika.ExtractText(ctx, data, mediaType)
	}

	return nil, errors.Errorf("unsupported content type: %s", mediaType)
}

// IsSupported reports whether the extractor can handle a content type.
func (e *Extractor) IsSupported(contentType string) bool {
	mediaType := NormalizeContentType(contentType)
	switch {
	case mediaType == "text/markdown",
		mediaType == "text/html",
		mediaType == "application/xhtml+xml",
		strings.HasPrefix(mediaType, "text/"):
		return true
	}
	return e.tika != nil && e.tika.IsSupported(mediaType)
}

// NormalizeContentType strips parameters like charset and lowercases the type.
func NormalizeContentType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return mediaType
	}
	return strings.ToLower(contentType)
}

// DetectContentType detects the content type of a file by extension,
// falling back to content sniffing.
func DetectContentType(filename string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ct, ok := extensionContentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return NormalizeContentType(ct)
	}
	return NormalizeContentType(http.DetectContentType(data))
}
