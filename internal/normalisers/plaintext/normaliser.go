// Package plaintext decodes .txt files.
package plaintext

import (
	"context"
	"strings"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

const utf8BOM = "\uFEFF"

// Normaliser handles plain text documents.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedExtensions returns the extensions this normaliser handles.
func (n *Normaliser) SupportedExtensions() []string {
	return []string{".txt", ".text"}
}

// Normalise returns the whole file as a single block with line endings
// normalised to \n.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) ([]domain.Block, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	content := strings.TrimPrefix(string(raw.Content), utf8BOM)
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	return []domain.Block{{
		Text:     content,
		Metadata: sourceMetadata(raw, "text"),
	}}, nil
}

// sourceMetadata builds the src metadata shared by every block of raw.
func sourceMetadata(raw *domain.RawDocument, format string) map[string]any {
	src := make(map[string]any, len(raw.Metadata)+2)
	for k, v := range raw.Metadata {
		src[k] = v
	}
	src[domain.MetaFilePath] = raw.Path
	src["format"] = format
	return map[string]any{domain.MetaSource: src}
}
