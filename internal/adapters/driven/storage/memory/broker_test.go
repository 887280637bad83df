package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
)

// fakeClock lets tests move broker time forward.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBroker() (*TaskBroker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := NewTaskBroker()
	b.now = clock.now
	return b, clock
}

func TestTaskBroker_EnqueueAssignsFields(t *testing.T) {
	b, _ := newTestBroker()
	task := &domain.Task{Name: domain.TaskChunkFile, Payload: []byte(`{}`)}

	require.NoError(t, b.Enqueue(context.Background(), task))

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, domain.QueueFileProcessing, task.Queue)
	assert.False(t, task.EnqueuedAt.IsZero())
}

func TestTaskBroker_EnqueueInvalid(t *testing.T) {
	b, _ := newTestBroker()
	assert.ErrorIs(t, b.Enqueue(context.Background(), nil), domain.ErrInvalidInput)
	assert.ErrorIs(t, b.Enqueue(context.Background(), &domain.Task{}), domain.ErrInvalidInput)
}

func TestTaskBroker_DequeueFIFO(t *testing.T) {
	b, _ := newTestBroker()
	ctx := context.Background()

	first := &domain.Task{Name: domain.TaskChunkFile}
	second := &domain.Task{Name: domain.TaskEmbedChunks}
	require.NoError(t, b.Enqueue(ctx, first))
	require.NoError(t, b.Enqueue(ctx, second))

	got, err := b.Dequeue(ctx, domain.QueueFileProcessing, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, 1, got.Attempts)

	got, err = b.Dequeue(ctx, domain.QueueFileProcessing, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	got, err = b.Dequeue(ctx, domain.QueueFileProcessing, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTaskBroker_LeaseExpiryRedelivers(t *testing.T) {
	b, clock := newTestBroker()
	ctx := context.Background()

	task := &domain.Task{Name: domain.TaskChunkFile}
	require.NoError(t, b.Enqueue(ctx, task))

	_, err := b.Dequeue(ctx, domain.QueueFileProcessing, time.Minute)
	require.NoError(t, err)

	clock.advance(30 * time.Second)
	got, err := b.Dequeue(ctx, domain.QueueFileProcessing, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, got)

	clock.advance(31 * time.Second)
	got, err = b.Dequeue(ctx, domain.QueueFileProcessing, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, 2, got.Attempts)
}

func TestTaskBroker_AckAndGet(t *testing.T) {
	b, _ := newTestBroker()
	ctx := context.Background()

	task := &domain.Task{Name: domain.TaskChunkFile}
	require.NoError(t, b.Enqueue(ctx, task))

	info, err := b.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskPending, info.State)
	assert.Nil(t, info.Result)

	_, err = b.Dequeue(ctx, domain.QueueFileProcessing, time.Minute)
	require.NoError(t, err)

	info, err = b.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskActive, info.State)

	require.NoError(t, b.Ack(ctx, task.ID, domain.TaskResult{
		TaskID: task.ID,
		Signal: domain.SignalFileProcessSuccess,
	}))

	info, err = b.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskDone, info.State)
	require.NotNil(t, info.Result)
	assert.Equal(t, domain.SignalFileProcessSuccess, info.Result.Signal)
	assert.False(t, info.Result.FinishedAt.IsZero())

	got, err := b.Dequeue(ctx, domain.QueueFileProcessing, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTaskBroker_AckUnknown(t *testing.T) {
	b, _ := newTestBroker()
	err := b.Ack(context.Background(), "missing", domain.TaskResult{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTaskBroker_PurgeResults(t *testing.T) {
	b, clock := newTestBroker()
	ctx := context.Background()

	done := &domain.Task{Name: domain.TaskChunkFile}
	pending := &domain.Task{Name: domain.TaskChunkFile}
	require.NoError(t, b.Enqueue(ctx, done))
	require.NoError(t, b.Enqueue(ctx, pending))
	require.NoError(t, b.Ack(ctx, done.ID, domain.TaskResult{Signal: domain.SignalFileProcessSuccess}))

	clock.advance(2 * time.Hour)
	n, err := b.PurgeResults(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = b.Get(ctx, done.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = b.Get(ctx, pending.ID)
	assert.NoError(t, err)
}

func TestTaskBroker_Ping(t *testing.T) {
	b, _ := newTestBroker()
	assert.NoError(t, b.Ping(context.Background()))
}
