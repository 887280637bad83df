package driving

import "context"

// Worker consumes queued pipeline tasks.
type Worker interface {
	// Run consumes every registered queue until ctx is cancelled.
	Run(ctx context.Context) error

	// DrainQueue processes tasks on queue until it is empty.
	// Returns the number of tasks processed.
	DrainQueue(ctx context.Context, queue string) (int, error)

	// Queues lists the queues the worker consumes.
	Queues() []string
}
