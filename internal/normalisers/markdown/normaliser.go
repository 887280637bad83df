// Package markdown decodes .md files, keeping heading structure and
// dropping inline formatting.
package markdown

import (
	"context"
	"regexp"
	"strings"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles Markdown documents.
type Normaliser struct{}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedExtensions returns the extensions this normaliser handles.
func (n *Normaliser) SupportedExtensions() []string {
	return []string{".md", ".markdown"}
}

// Normalise returns the document as one block. Heading lines are kept so
// heading-aware splitters can use them; the first H1 becomes the title.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) ([]domain.Block, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	content := strings.ReplaceAll(string(raw.Content), "\r\n", "\n")

	src := make(map[string]any, len(raw.Metadata)+3)
	for k, v := range raw.Metadata {
		src[k] = v
	}
	src[domain.MetaFilePath] = raw.Path
	src["format"] = "markdown"
	if title := extractTitle(content); title != "" {
		src["title"] = title
	}

	return []domain.Block{{
		Text:     stripMarkdown(content),
		Metadata: map[string]any{domain.MetaSource: src},
	}}, nil
}

// Pre-compiled regular expressions.
var (
	codeFence    = regexp.MustCompile("(?m)^```[a-zA-Z0-9_-]*\\s*$")
	inlineCode   = regexp.MustCompile("`([^`]+)`")
	images       = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	links        = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	emphasis     = regexp.MustCompile(`(\*\*|__|\*|_)([^*_\n]+)(\*\*|__|\*|_)`)
	blockquote   = regexp.MustCompile(`(?m)^>\s?`)
	horizontal   = regexp.MustCompile(`(?m)^\s*([-*_]\s*){3,}$`)
	listMarker   = regexp.MustCompile(`(?m)^(\s*)[-*+]\s+`)
	htmlComments = regexp.MustCompile(`(?s)<!--.*?-->`)
	manyNewlines = regexp.MustCompile(`\n{3,}`)
)

// extractTitle returns the text of the first H1 heading.
func extractTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}

// stripMarkdown removes inline formatting. Code blocks keep their content,
// only the fences go.
func stripMarkdown(content string) string {
	content = htmlComments.ReplaceAllString(content, "")
	content = codeFence.ReplaceAllString(content, "")
	content = inlineCode.ReplaceAllString(content, "$1")
	content = images.ReplaceAllString(content, "$1")
	content = links.ReplaceAllString(content, "$1")
	content = emphasis.ReplaceAllString(content, "$2")
	content = blockquote.ReplaceAllString(content, "")
	content = horizontal.ReplaceAllString(content, "")
	content = listMarker.ReplaceAllString(content, "$1")
	content = manyNewlines.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}
