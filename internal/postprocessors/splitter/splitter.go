// Package splitter provides a recursive character text splitter.
//
// Text is split on the first separator it contains, pieces that still
// exceed the chunk size are split again on the next separator, and the
// resulting pieces are merged greedily into chunks with a sliding overlap.
// A piece that contains none of the separators is an atomic unit and is
// kept whole even when it exceeds the chunk size.
package splitter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
)

// Ensure Splitter implements the interface.
var _ driven.Splitter = (*Splitter)(nil)

// Name is the default splitter name.
const Name = "recursive"

// DefaultSeparators splits on paragraphs, then lines, then words.
var DefaultSeparators = []string{"\n\n", "\n", " "}

// MarkdownSeparators prefers heading boundaries before paragraphs.
var MarkdownSeparators = []string{"\n## ", "\n### ", "\n#### ", "\n\n", "\n", " "}

// Splitter splits blocks into bounded chunks.
type Splitter struct {
	name       string
	separators []string
}

// Option configures the splitter.
type Option func(*Splitter)

// WithSeparators sets the separators, most significant first.
func WithSeparators(separators ...string) Option {
	return func(s *Splitter) {
		if len(separators) > 0 {
			s.separators = separators
		}
	}
}

// WithName overrides the name reported by Name.
func WithName(name string) Option {
	return func(s *Splitter) {
		if name != "" {
			s.name = name
		}
	}
}

// New creates a splitter with the given options.
func New(opts ...Option) *Splitter {
	s := &Splitter{
		name:       Name,
		separators: DefaultSeparators,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the splitter name.
func (s *Splitter) Name() string {
	return s.name
}

// Split splits every non-blank block and returns the pieces in order.
// Each piece carries a copy of its block's metadata.
func (s *Splitter) Split(blocks []domain.Block, chunkSize, overlap int) ([]domain.Split, error) {
	if chunkSize <= 0 || overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be less than chunk size %d",
			domain.ErrInvalidInput, overlap, chunkSize)
	}

	var splits []domain.Split //nolint:prealloc // size unknown until split
	for _, block := range blocks {
		if strings.TrimSpace(block.Text) == "" {
			continue
		}
		for _, text := range s.splitText(block.Text, s.separators, chunkSize, overlap) {
			splits = append(splits, domain.Split{
				Text:     text,
				Metadata: domain.CopyMetadata(block.Metadata),
			})
		}
	}
	return splits, nil
}

// splitText splits text on the most significant separator it contains.
func (s *Splitter) splitText(text string, separators []string, size, overlap int) []string {
	sep := separators[len(separators)-1]
	var finer []string
	for i, candidate := range separators {
		if strings.Contains(text, candidate) {
			sep = candidate
			finer = separators[i+1:]
			break
		}
	}

	var chunks, pending []string
	flush := func() {
		if len(pending) > 0 {
			chunks = append(chunks, merge(pending, sep, size, overlap)...)
			pending = nil
		}
	}

	for _, piece := range strings.Split(text, sep) {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		if utf8.RuneCountInString(piece) <= size {
			pending = append(pending, piece)
			continue
		}

		flush()
		if len(finer) == 0 {
			// Atomic unit larger than the chunk size.
			chunks = append(chunks, piece)
			continue
		}
		chunks = append(chunks, s.splitText(piece, finer, size, overlap)...)
	}
	flush()

	return chunks
}

// merge joins pieces into chunks of at most size runes. After each chunk
// the window keeps trailing pieces totalling at most overlap runes.
func merge(pieces []string, sep string, size, overlap int) []string {
	sepLen := utf8.RuneCountInString(sep)

	var (
		chunks []string
		window []string
		total  int
	)
	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)
		if len(window) > 0 && total+sepLen+n > size {
			chunks = appendJoined(chunks, window, sep)
			for len(window) > 0 && (total > overlap || total+sepLen+n > size) {
				total -= utf8.RuneCountInString(window[0])
				if len(window) > 1 {
					total -= sepLen
				}
				window = window[1:]
			}
		}
		if len(window) > 0 {
			total += sepLen
		}
		total += n
		window = append(window, piece)
	}
	return appendJoined(chunks, window, sep)
}

func appendJoined(chunks, window []string, sep string) []string {
	if len(window) == 0 {
		return chunks
	}
	text := strings.TrimSpace(strings.Join(window, sep))
	if text == "" {
		return chunks
	}
	return append(chunks, text)
}
