package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
)

// Ensure ChunkStore implements the interface.
var _ driven.ChunkStore = (*ChunkStore)(nil)

// ChunkStore is an in-memory implementation of driven.ChunkStore.
type ChunkStore struct {
	mu     sync.RWMutex
	chunks map[string]domain.Chunk
}

// NewChunkStore creates a new in-memory chunk store.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{
		chunks: make(map[string]domain.Chunk),
	}
}

// InsertMany stores chunks. An existing chunk with the same ID is an
// ErrAlreadyExists for the batch containing it.
func (s *ChunkStore) InsertMany(ctx context.Context, chunks []domain.Chunk, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = driven.DefaultInsertBatchSize
	}

	inserted := 0
	for start := 0; start < len(chunks); start += batchSize {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}
		end := min(start+batchSize, len(chunks))
		if err := s.insertBatch(chunks[start:end]); err != nil {
			return inserted, err
		}
		inserted += end - start
	}
	return inserted, nil
}

func (s *ChunkStore) insertBatch(batch []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range batch {
		if _, ok := s.chunks[c.ID]; ok {
			return domain.ErrAlreadyExists
		}
	}
	now := time.Now().UTC()
	for _, c := range batch {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.Metadata = domain.CopyMetadata(c.Metadata)
		s.chunks[c.ID] = c
	}
	return nil
}

// GetByID retrieves a chunk.
func (s *ChunkStore) GetByID(_ context.Context, id string) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

// DeleteByProject removes all chunks of a project.
func (s *ChunkStore) DeleteByProject(_ context.Context, projectRef string) (int, error) {
	return s.deleteWhere(func(c domain.Chunk) bool {
		return c.ProjectRef == projectRef
	}), nil
}

// ListBySource returns the chunks of one file in ordinal order.
func (s *ChunkStore) ListBySource(_ context.Context, projectRef, sourcePath string) ([]domain.Chunk, error) {
	s.mu.RLock()
	var out []domain.Chunk
	for _, c := range s.chunks {
		if c.ProjectRef == projectRef && c.SourcePath == sourcePath {
			out = append(out, c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

// DeleteBySource removes the chunks of one file.
func (s *ChunkStore) DeleteBySource(_ context.Context, projectRef, sourcePath string) (int, error) {
	return s.deleteWhere(func(c domain.Chunk) bool {
		return c.ProjectRef == projectRef && c.SourcePath == sourcePath
	}), nil
}

// CountByProject returns the number of chunks a project holds.
func (s *ChunkStore) CountByProject(_ context.Context, projectRef string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.chunks {
		if c.ProjectRef == projectRef {
			n++
		}
	}
	return n, nil
}

func (s *ChunkStore) deleteWhere(match func(domain.Chunk) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, c := range s.chunks {
		if match(c) {
			delete(s.chunks, id)
			n++
		}
	}
	return n
}
