package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragpipe/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ragpipe/internal/core/domain"
)

// flakyBroker fails Dequeue and Ack a set number of times before
// delegating to the in-memory broker.
type flakyBroker struct {
	*memory.TaskBroker
	dequeueFailures atomic.Int32
	ackFailures     atomic.Int32
	acks            atomic.Int32
}

func (b *flakyBroker) Dequeue(ctx context.Context, queue string, lease time.Duration) (*domain.Task, error) {
	if b.dequeueFailures.Add(-1) >= 0 {
		return nil, errors.New("connection reset by peer")
	}
	return b.TaskBroker.Dequeue(ctx, queue, lease)
}

func (b *flakyBroker) Ack(ctx context.Context, taskID string, result domain.TaskResult) error {
	if b.ackFailures.Add(-1) >= 0 {
		return errors.New("connection reset by peer")
	}
	b.acks.Add(1)
	return b.TaskBroker.Ack(ctx, taskID, result)
}

func testWorkerSettings() domain.WorkerSettings {
	return domain.WorkerSettings{
		Concurrency:   2,
		TaskTimeLimit: time.Second,
		Lease:         time.Minute,
		MaxReconnects: 3,
		PollInterval:  5 * time.Millisecond,
	}
}

func enqueue(t *testing.T, broker *memory.TaskBroker, name domain.TaskName) string {
	t.Helper()
	task := &domain.Task{Name: name, Payload: []byte("{}")}
	require.NoError(t, broker.Enqueue(context.Background(), task))
	return task.ID
}

func okHandler(context.Context, *domain.Task) domain.TaskResult {
	return domain.TaskResult{Signal: domain.SignalFileProcessSuccess}
}

func TestWorkerPool_Queues(t *testing.T) {
	pool := NewWorkerPool(memory.NewTaskBroker(), testWorkerSettings())
	assert.Empty(t, pool.Queues())

	pool.Register(domain.TaskChunkFile, okHandler)
	pool.Register(domain.TaskEmbedChunks, okHandler)
	pool.Register("reports.nightly", okHandler)
	assert.Equal(t, []string{domain.QueueDefault, domain.QueueFileProcessing}, pool.Queues())

	limited := NewWorkerPool(memory.NewTaskBroker(), testWorkerSettings(), WithQueues("custom"))
	assert.Equal(t, []string{"custom"}, limited.Queues())
}

func TestWorkerPool_Run_NoHandlers(t *testing.T) {
	pool := NewWorkerPool(memory.NewTaskBroker(), testWorkerSettings())

	err := pool.Run(context.Background())

	assert.ErrorIs(t, err, domain.ErrNotProvisioned)
}

func TestWorkerPool_RunTask(t *testing.T) {
	tests := []struct {
		name       string
		handler    Handler
		taskName   domain.TaskName
		wantSignal domain.Signal
		wantStage  domain.Stage
		wantErr    string
	}{
		{
			name:       "success",
			handler:    okHandler,
			taskName:   domain.TaskChunkFile,
			wantSignal: domain.SignalFileProcessSuccess,
		},
		{
			name:       "unknown task",
			taskName:   "nobody.handles",
			wantSignal: domain.SignalTaskUnknown,
			wantErr:    "unknown task",
		},
		{
			name: "time limit",
			handler: func(ctx context.Context, _ *domain.Task) domain.TaskResult {
				<-ctx.Done()
				time.Sleep(50 * time.Millisecond)
				return domain.TaskResult{Signal: domain.SignalChunkEmbeddingSuccess}
			},
			taskName:   domain.TaskEmbedChunks,
			wantSignal: domain.SignalTaskTimeLimit,
			wantStage:  domain.StageEmbed,
			wantErr:    domain.ErrTaskTimeLimit.Error(),
		},
		{
			name: "panic",
			handler: func(context.Context, *domain.Task) domain.TaskResult {
				panic("index out of range")
			},
			taskName:   domain.TaskChunkFile,
			wantSignal: domain.SignalFileProcessFailed,
			wantStage:  domain.StageChunk,
			wantErr:    "index out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := testWorkerSettings()
			settings.TaskTimeLimit = 20 * time.Millisecond
			pool := NewWorkerPool(memory.NewTaskBroker(), settings)
			if tt.handler != nil {
				pool.Register(tt.taskName, tt.handler)
			}
			task := &domain.Task{ID: "t1", Name: tt.taskName}

			result, ok := pool.runTask(context.Background(), task)

			require.True(t, ok)
			assert.Equal(t, "t1", result.TaskID)
			assert.Equal(t, tt.taskName, result.Name)
			assert.Equal(t, tt.wantSignal, result.Signal)
			assert.Equal(t, tt.wantStage, result.FailedStage)
			assert.Contains(t, result.Error, tt.wantErr)
			assert.False(t, result.FinishedAt.IsZero())
		})
	}
}

func TestWorkerPool_RunTask_ContractViolationPropagates(t *testing.T) {
	violation := domain.ContractViolation{Component: "embedder", Reason: "Embed called before SetEmbeddingModel"}
	pool := NewWorkerPool(memory.NewTaskBroker(), testWorkerSettings())
	pool.Register(domain.TaskEmbedChunks, func(context.Context, *domain.Task) domain.TaskResult {
		panic(violation)
	})

	assert.PanicsWithValue(t, violation, func() {
		pool.runTask(context.Background(), &domain.Task{ID: "t1", Name: domain.TaskEmbedChunks})
	})
}

func TestWorkerPool_RunTask_ParentCancelled(t *testing.T) {
	pool := NewWorkerPool(memory.NewTaskBroker(), testWorkerSettings())
	ctx, cancel := context.WithCancel(context.Background())
	pool.Register(domain.TaskChunkFile, func(hctx context.Context, _ *domain.Task) domain.TaskResult {
		cancel()
		<-hctx.Done()
		time.Sleep(50 * time.Millisecond)
		return domain.TaskResult{}
	})

	_, ok := pool.runTask(ctx, &domain.Task{ID: "t1", Name: domain.TaskChunkFile})

	assert.False(t, ok, "cancelled runs are not acked")
}

func TestWorkerPool_Run_ProcessesTasks(t *testing.T) {
	broker := memory.NewTaskBroker()
	pool := NewWorkerPool(broker, testWorkerSettings())
	var handled atomic.Int32
	pool.Register(domain.TaskChunkFile, func(ctx context.Context, task *domain.Task) domain.TaskResult {
		handled.Add(1)
		return okHandler(ctx, task)
	})

	ids := make([]string, 5)
	for i := range ids {
		ids[i] = enqueue(t, broker, domain.TaskChunkFile)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	allDone := func() bool {
		for _, id := range ids {
			info, err := broker.Get(context.Background(), id)
			if err != nil || info.State != domain.TaskDone {
				return false
			}
		}
		return true
	}
	assert.Eventually(t, allDone, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, int32(5), handled.Load())
	for _, id := range ids {
		info, err := broker.Get(context.Background(), id)
		require.NoError(t, err)
		require.NotNil(t, info.Result)
		assert.Equal(t, id, info.Result.TaskID)
	}
}

func TestWorkerPool_Run_BrokerUnavailable(t *testing.T) {
	broker := &flakyBroker{TaskBroker: memory.NewTaskBroker()}
	broker.dequeueFailures.Store(1000)
	pool := NewWorkerPool(broker, testWorkerSettings(), WithBackoff(time.Millisecond))
	pool.Register(domain.TaskChunkFile, okHandler)

	err := pool.Run(context.Background())

	assert.ErrorIs(t, err, domain.ErrBrokerUnavailable)
}

func TestWorkerPool_Run_RecoversFromTransientErrors(t *testing.T) {
	broker := &flakyBroker{TaskBroker: memory.NewTaskBroker()}
	broker.dequeueFailures.Store(2)
	broker.ackFailures.Store(2)
	settings := testWorkerSettings()
	settings.Concurrency = 1
	pool := NewWorkerPool(broker, settings, WithBackoff(time.Millisecond))
	pool.Register(domain.TaskChunkFile, okHandler)
	id := enqueue(t, broker.TaskBroker, domain.TaskChunkFile)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	assert.Eventually(t, func() bool { return broker.acks.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	info, err := broker.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskDone, info.State)
}

func TestWorkerPool_DrainQueue_RunsChainedStages(t *testing.T) {
	env := newTestEnv(t)
	env.writeUpload(t, "zoo", "animals.txt", animalText)
	payload, err := json.Marshal(domain.ChunkFileRequest{ProjectID: "zoo", Filename: "animals.txt"})
	require.NoError(t, err)
	task := &domain.Task{Name: domain.TaskChunkFile, Payload: payload}
	require.NoError(t, env.broker.Enqueue(context.Background(), task))

	n, err := env.pool.DrainQueue(context.Background(), domain.QueueFileProcessing)

	require.NoError(t, err)
	assert.Equal(t, 2, n)

	info, err := env.broker.Get(context.Background(), task.ID)
	require.NoError(t, err)
	require.NotNil(t, info.Result)
	embed, err := env.broker.Get(context.Background(), info.Result.EmbedTaskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskDone, embed.State)
	assert.Equal(t, domain.SignalChunkEmbeddingSuccess, embed.Result.Signal)
}
