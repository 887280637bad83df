package driven

import "github.com/custodia-labs/ragpipe/internal/core/domain"

// Splitter turns decoded blocks into bounded, overlapping pieces of text.
// Implementations must be deterministic.
type Splitter interface {
	// Name returns the splitter name for logging and configuration.
	Name() string

	// Split drops empty blocks and splits the rest into pieces of at most
	// chunkSize characters, overlapping by overlap characters. Returns
	// domain.ErrInvalidInput unless 0 <= overlap < chunkSize.
	Split(blocks []domain.Block, chunkSize, overlap int) ([]domain.Split, error)
}
