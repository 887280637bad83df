package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
)

// Ensure TaskBroker implements the interface.
var _ driven.TaskBroker = (*TaskBroker)(nil)

type brokerEntry struct {
	task       domain.Task
	state      domain.TaskState
	leaseUntil time.Time
	result     *domain.TaskResult
	doneAt     time.Time
}

// TaskBroker is an in-memory implementation of driven.TaskBroker.
// Tasks do not survive a restart; use the sqlite or postgres broker when
// the worker runs in a separate process.
type TaskBroker struct {
	mu      sync.Mutex
	entries map[string]*brokerEntry
	queues  map[string][]string
	now     func() time.Time
}

// NewTaskBroker creates a new in-memory broker.
func NewTaskBroker() *TaskBroker {
	return &TaskBroker{
		entries: make(map[string]*brokerEntry),
		queues:  make(map[string][]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue adds a task to its queue.
func (b *TaskBroker) Enqueue(_ context.Context, task *domain.Task) error {
	if task == nil || task.Name == "" {
		return domain.ErrInvalidInput
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if task.ID == "" {
		task.ID = ulid.Make().String()
	}
	if task.Queue == "" {
		task.Queue = domain.QueueFor(task.Name)
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = b.now()
	}
	if _, ok := b.entries[task.ID]; ok {
		return domain.ErrAlreadyExists
	}

	b.entries[task.ID] = &brokerEntry{task: *task, state: domain.TaskPending}
	b.queues[task.Queue] = append(b.queues[task.Queue], task.ID)
	return nil
}

// Dequeue leases the oldest available task on queue. Active tasks whose
// lease has lapsed are delivered again.
func (b *TaskBroker) Dequeue(ctx context.Context, queue string, lease time.Duration) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	for _, id := range b.queues[queue] {
		e := b.entries[id]
		available := e.state == domain.TaskPending ||
			(e.state == domain.TaskActive && !now.Before(e.leaseUntil))
		if !available {
			continue
		}
		e.state = domain.TaskActive
		e.leaseUntil = now.Add(lease)
		e.task.Attempts++
		t := e.task
		return &t, nil
	}
	return nil, nil
}

// Ack marks a task done and stores its result.
func (b *TaskBroker) Ack(_ context.Context, taskID string, result domain.TaskResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	if e.state == domain.TaskDone {
		return nil
	}

	e.state = domain.TaskDone
	e.doneAt = b.now()
	if result.FinishedAt.IsZero() {
		result.FinishedAt = e.doneAt
	}
	e.result = &result

	ids := b.queues[e.task.Queue]
	for i, id := range ids {
		if id == taskID {
			b.queues[e.task.Queue] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns the task with its state and result.
func (b *TaskBroker) Get(_ context.Context, taskID string) (*domain.TaskInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	info := &domain.TaskInfo{Task: e.task, State: e.state}
	if e.result != nil {
		r := *e.result
		info.Result = &r
	}
	return info, nil
}

// PurgeResults deletes finished tasks older than olderThan.
func (b *TaskBroker) PurgeResults(_ context.Context, olderThan time.Duration) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-olderThan)
	n := 0
	for id, e := range b.entries {
		if e.state == domain.TaskDone && e.doneAt.Before(cutoff) {
			delete(b.entries, id)
			n++
		}
	}
	return n, nil
}

// Ping always succeeds.
func (b *TaskBroker) Ping(_ context.Context) error {
	return nil
}
