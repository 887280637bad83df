package normalisers

import (
	"github.com/custodia-labs/ragpipe/internal/normalisers/docx"
	"github.com/custodia-labs/ragpipe/internal/normalisers/eml"
	"github.com/custodia-labs/ragpipe/internal/normalisers/html"
	"github.com/custodia-labs/ragpipe/internal/normalisers/markdown"
	"github.com/custodia-labs/ragpipe/internal/normalisers/pdf"
	"github.com/custodia-labs/ragpipe/internal/normalisers/plaintext"
)

// NewDefaultRegistry returns a registry with the built-in normalisers.
func NewDefaultRegistry() *Registry {
	return NewRegistry(
		plaintext.New(),
		markdown.New(),
		pdf.New(),
		html.New(),
		docx.New(),
		eml.New(),
	)
}
