package driven

import (
	"context"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
)

// ChunkStore persists chunks, keyed by owning project.
type ChunkStore interface {
	// InsertMany writes chunks in batches of batchSize and returns the count
	// written. Batches are independent: on error the returned count reflects
	// the batches that completed before it.
	InsertMany(ctx context.Context, chunks []domain.Chunk, batchSize int) (int, error)

	// GetByID retrieves a chunk. Returns domain.ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*domain.Chunk, error)

	// DeleteByProject removes all chunks of a project and returns the count removed.
	DeleteByProject(ctx context.Context, projectRef string) (int, error)

	// ListBySource returns the chunks of one source file in ordinal order.
	ListBySource(ctx context.Context, projectRef, sourcePath string) ([]domain.Chunk, error)

	// DeleteBySource removes the chunks of one source file and returns the count removed.
	DeleteBySource(ctx context.Context, projectRef, sourcePath string) (int, error)

	// CountByProject returns the number of chunks a project holds.
	CountByProject(ctx context.Context, projectRef string) (int, error)
}

// DefaultInsertBatchSize bounds each insert request when callers pass zero.
const DefaultInsertBatchSize = 100
