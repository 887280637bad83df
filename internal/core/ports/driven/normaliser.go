package driven

import (
	"context"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
)

// Normaliser decodes one kind of file into ordered text blocks.
// Each normaliser handles specific file extensions (e.g., .pdf, .md).
type Normaliser interface {
	// SupportedExtensions returns the lower-case extensions handled, with leading dot.
	SupportedExtensions() []string

	// Normalise decodes raw content into blocks. Each block carries
	// src.file_path metadata pointing at raw.Path.
	Normalise(ctx context.Context, raw *domain.RawDocument) ([]domain.Block, error)
}

// NormaliserRegistry selects a normaliser by file extension.
type NormaliserRegistry interface {
	// Load reads the file at path and decodes it. An unsupported extension
	// yields nil blocks and a nil error: "no content", not a failure.
	Load(ctx context.Context, path string) ([]domain.Block, error)

	// Supports reports whether a normaliser handles the path's extension.
	Supports(path string) bool
}
