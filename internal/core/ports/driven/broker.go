package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
)

// TaskBroker is a durable queue with acknowledge-late delivery and a
// result backend.
//
// A dequeued task is leased: it stays invisible to other workers until the
// lease expires, after which it is delivered again. Only Ack removes it from
// the queue, so a worker that dies mid-task causes redelivery.
type TaskBroker interface {
	// Enqueue adds a task to its queue. ID and EnqueuedAt are assigned when empty.
	Enqueue(ctx context.Context, task *domain.Task) error

	// Dequeue leases the oldest available task on queue for the given
	// duration. Returns nil and no error if the queue is empty.
	Dequeue(ctx context.Context, queue string, lease time.Duration) (*domain.Task, error)

	// Ack marks a task done and stores its result.
	Ack(ctx context.Context, taskID string, result domain.TaskResult) error

	// Get returns the task, its state and its result if done.
	// Returns domain.ErrNotFound if the task is unknown or its result expired.
	Get(ctx context.Context, taskID string) (*domain.TaskInfo, error)

	// PurgeResults deletes finished tasks older than the given age and
	// returns the count removed.
	PurgeResults(ctx context.Context, olderThan time.Duration) (int, error)

	// Ping checks the broker connection.
	Ping(ctx context.Context) error
}
