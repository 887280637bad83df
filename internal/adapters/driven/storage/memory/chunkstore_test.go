package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
)

func makeChunks(projectRef, source string, n int) []domain.Chunk {
	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		chunks[i] = domain.Chunk{
			ID:         fmt.Sprintf("%s-%s-%d", projectRef, source, i),
			ProjectRef: projectRef,
			Text:       fmt.Sprintf("chunk %d", i),
			Ordinal:    i,
			SourcePath: source,
			Metadata: map[string]any{
				domain.MetaSource: map[string]any{domain.MetaFilePath: source},
			},
		}
	}
	return chunks
}

func TestChunkStore_InsertMany(t *testing.T) {
	store := NewChunkStore()
	ctx := context.Background()

	n, err := store.InsertMany(ctx, makeChunks("p1", "a.txt", 7), 3)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	count, err := store.CountByProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestChunkStore_InsertMany_Empty(t *testing.T) {
	n, err := NewChunkStore().InsertMany(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestChunkStore_InsertMany_DuplicateStopsAtBatch(t *testing.T) {
	store := NewChunkStore()
	ctx := context.Background()

	chunks := makeChunks("p1", "a.txt", 4)
	_, err := store.InsertMany(ctx, chunks[2:3], 0)
	require.NoError(t, err)

	n, err := store.InsertMany(ctx, chunks, 2)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.Equal(t, 2, n)
}

func TestChunkStore_GetByID(t *testing.T) {
	store := NewChunkStore()
	ctx := context.Background()
	chunks := makeChunks("p1", "a.txt", 2)
	_, err := store.InsertMany(ctx, chunks, 0)
	require.NoError(t, err)

	got, err := store.GetByID(ctx, chunks[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "chunk 1", got.Text)
	assert.Equal(t, "a.txt", domain.SourceFilePath(got.Metadata))
	assert.False(t, got.CreatedAt.IsZero())

	_, err = store.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChunkStore_SourceOperations(t *testing.T) {
	store := NewChunkStore()
	ctx := context.Background()

	_, err := store.InsertMany(ctx, makeChunks("p1", "a.txt", 3), 0)
	require.NoError(t, err)
	_, err = store.InsertMany(ctx, makeChunks("p1", "b.txt", 2), 0)
	require.NoError(t, err)

	listed, err := store.ListBySource(ctx, "p1", "a.txt")
	require.NoError(t, err)
	require.Len(t, listed, 3)
	for i, c := range listed {
		assert.Equal(t, i, c.Ordinal)
	}

	removed, err := store.DeleteBySource(ctx, "p1", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	count, err := store.CountByProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestChunkStore_DeleteByProject(t *testing.T) {
	store := NewChunkStore()
	ctx := context.Background()

	_, err := store.InsertMany(ctx, makeChunks("p1", "a.txt", 3), 0)
	require.NoError(t, err)
	_, err = store.InsertMany(ctx, makeChunks("p2", "a.txt", 2), 0)
	require.NoError(t, err)

	removed, err := store.DeleteByProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	count, err := store.CountByProject(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
