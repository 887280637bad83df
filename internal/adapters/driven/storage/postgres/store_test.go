package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
)

// setupTestStore connects to RAGPIPE_TEST_POSTGRES_DSN or skips.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("RAGPIPE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("RAGPIPE_TEST_POSTGRES_DSN not set, skipping postgres tests")
	}

	store, err := NewStore(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

// uniqueProjectID keeps test runs isolated on a shared database.
func uniqueProjectID() string {
	return "t" + uuid.NewString()[:8]
}

func TestProjectStore_FindOrCreate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	id := uniqueProjectID()

	first, err := store.ProjectStore().FindOrCreate(ctx, id)
	require.NoError(t, err)
	second, err := store.ProjectStore().FindOrCreate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = store.ProjectStore().Get(ctx, uniqueProjectID())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChunkStore_RoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p, err := store.ProjectStore().FindOrCreate(ctx, uniqueProjectID())
	require.NoError(t, err)

	chunks := make([]domain.Chunk, 3)
	for i := range chunks {
		chunks[i] = domain.Chunk{
			ID:         uuid.NewString(),
			ProjectRef: p.ID,
			Text:       fmt.Sprintf("chunk %d", i),
			Ordinal:    i,
			SourcePath: "a.txt",
			Metadata:   map[string]any{domain.MetaSource: map[string]any{domain.MetaFilePath: "a.txt"}},
		}
	}

	n, err := store.ChunkStore().InsertMany(ctx, chunks, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = store.ChunkStore().InsertMany(ctx, chunks[:1], 0)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	listed, err := store.ChunkStore().ListBySource(ctx, p.ID, "a.txt")
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, "a.txt", domain.SourceFilePath(listed[0].Metadata))

	removed, err := store.ChunkStore().DeleteByProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
}

func TestTaskBroker_Lifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	broker := store.TaskBroker()
	queue := "test_" + uuid.NewString()[:8]

	task := &domain.Task{Name: domain.TaskChunkFile, Queue: queue, Payload: []byte(`{}`)}
	require.NoError(t, broker.Enqueue(ctx, task))

	got, err := broker.Dequeue(ctx, queue, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)

	empty, err := broker.Dequeue(ctx, queue, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, empty)

	require.NoError(t, broker.Ack(ctx, task.ID, domain.TaskResult{Signal: domain.SignalFileProcessSuccess}))
	info, err := broker.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskDone, info.State)
	require.NotNil(t, info.Result)
	assert.Equal(t, domain.SignalFileProcessSuccess, info.Result.Signal)

	assert.ErrorIs(t, broker.Ack(ctx, "missing", domain.TaskResult{}), domain.ErrNotFound)
	assert.NoError(t, broker.Ping(ctx))
}
