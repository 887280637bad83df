// Package html decodes HTML pages into readable text.
package html

import (
	"bytes"
	"context"
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles HTML documents.
type Normaliser struct{}

// New creates a new HTML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedExtensions returns the extensions this normaliser handles.
func (n *Normaliser) SupportedExtensions() []string {
	return []string{".html", ".htm", ".xhtml"}
}

// Normalise returns the page text as one block. The <title> goes into the
// source metadata rather than the text.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) ([]domain.Block, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	title, text := Extract(raw.Content)

	src := make(map[string]any, len(raw.Metadata)+3)
	for k, v := range raw.Metadata {
		src[k] = v
	}
	src[domain.MetaFilePath] = raw.Path
	src["format"] = "html"
	if title != "" {
		src["title"] = title
	}

	return []domain.Block{{
		Text:     text,
		Metadata: map[string]any{domain.MetaSource: src},
	}}, nil
}

// Elements whose content is never text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Svg:      true,
	atom.Template: true,
}

// Elements that start or end a line.
var lineBreaks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Hr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Li: true, atom.Ul: true, atom.Ol: true, atom.Tr: true, atom.Table: true,
	atom.Blockquote: true, atom.Pre: true, atom.Section: true, atom.Article: true,
	atom.Header: true, atom.Footer: true, atom.Main: true, atom.Nav: true,
}

// Extract returns the document title and its readable text, one line per
// block element with entities decoded and runs of spaces collapsed.
func Extract(content []byte) (title, text string) {
	z := xhtml.NewTokenizer(bytes.NewReader(content))

	var body, head strings.Builder
	depth := 0
	inTitle := false
	for {
		tt := z.Next()
		switch tt {
		case xhtml.ErrorToken:
			return strings.Join(strings.Fields(head.String()), " "), tidy(body.String())

		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			switch {
			case skipped[a]:
				if tt == xhtml.StartTagToken {
					depth++
				}
			case a == atom.Title:
				inTitle = tt == xhtml.StartTagToken
			case a == atom.Td || a == atom.Th:
				body.WriteByte(' ')
			case lineBreaks[a]:
				body.WriteByte('\n')
			}

		case xhtml.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			switch {
			case skipped[a]:
				if depth > 0 {
					depth--
				}
			case a == atom.Title:
				inTitle = false
			case lineBreaks[a]:
				body.WriteByte('\n')
			}

		case xhtml.TextToken:
			switch {
			case inTitle:
				head.Write(z.Text())
			case depth == 0:
				body.Write(z.Text())
			}
		}
	}
}

// tidy collapses spaces within lines and drops blank lines.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
