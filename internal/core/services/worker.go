package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driving"
	"github.com/custodia-labs/ragpipe/internal/logger"
)

var _ driving.Worker = (*WorkerPool)(nil)

const (
	defaultBackoff    = 500 * time.Millisecond
	maxBackoff        = 30 * time.Second
	defaultPurgeEvery = 10 * time.Minute
)

// WorkerOption configures a WorkerPool.
type WorkerOption func(*WorkerPool)

// WithBackoff sets the base delay between broker retries. The delay
// doubles with each consecutive failure.
func WithBackoff(d time.Duration) WorkerOption {
	return func(w *WorkerPool) {
		if d > 0 {
			w.backoff = d
		}
	}
}

// WithQueues restricts the pool to the named queues. By default the pool
// consumes every queue a registered handler is routed to.
func WithQueues(queues ...string) WorkerOption {
	return func(w *WorkerPool) {
		w.queues = queues
	}
}

// WorkerPool leases tasks from the broker and runs their handlers on
// parallel workers. Tasks are acked after their handler returns, so a
// worker lost mid-task leaves the task to be redelivered when its lease
// expires.
type WorkerPool struct {
	broker   driven.TaskBroker
	settings domain.WorkerSettings
	backoff  time.Duration
	queues   []string

	mu       sync.RWMutex
	handlers map[domain.TaskName]Handler
}

// NewWorkerPool creates a pool over broker.
func NewWorkerPool(broker driven.TaskBroker, settings domain.WorkerSettings, opts ...WorkerOption) *WorkerPool {
	d := domain.DefaultAppSettings().Worker
	if settings.Concurrency <= 0 {
		settings.Concurrency = 1
	}
	if settings.TaskTimeLimit <= 0 {
		settings.TaskTimeLimit = d.TaskTimeLimit
	}
	if settings.Lease <= 0 {
		settings.Lease = d.Lease
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = d.PollInterval
	}
	if settings.MaxReconnects < 0 {
		settings.MaxReconnects = 0
	}

	w := &WorkerPool{
		broker:   broker,
		settings: settings,
		backoff:  defaultBackoff,
		handlers: make(map[domain.TaskName]Handler),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Register binds a handler to a task name, replacing any previous one.
func (w *WorkerPool) Register(name domain.TaskName, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[name] = h
}

// RegisterAll binds every handler in handlers.
func (w *WorkerPool) RegisterAll(handlers map[domain.TaskName]Handler) {
	for name, h := range handlers {
		w.Register(name, h)
	}
}

// Queues returns the queues the pool consumes, sorted.
func (w *WorkerPool) Queues() []string {
	if len(w.queues) > 0 {
		return w.queues
	}
	w.mu.RLock()
	defer w.mu.RUnlock()

	seen := make(map[string]struct{})
	var queues []string
	for name := range w.handlers {
		q := domain.QueueFor(name)
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		queues = append(queues, q)
	}
	sort.Strings(queues)
	return queues
}

// Run consumes tasks until ctx is cancelled, which returns nil, or until
// the broker stays unreachable past MaxReconnects, which cancels every
// in-flight task and returns ErrBrokerUnavailable.
func (w *WorkerPool) Run(ctx context.Context) error {
	queues := w.Queues()
	if len(queues) == 0 {
		return fmt.Errorf("%w: no task handlers registered", domain.ErrNotProvisioned)
	}

	logger.Info("worker pool started: %d workers on %v", w.settings.Concurrency, queues)
	g, gctx := errgroup.WithContext(ctx)
	for _, queue := range queues {
		for i := 0; i < w.settings.Concurrency; i++ {
			g.Go(func() error {
				return w.work(gctx, queue)
			})
		}
	}
	if w.settings.ResultExpires > 0 {
		g.Go(func() error {
			w.purge(gctx)
			return nil
		})
	}

	err := g.Wait()
	logger.Info("worker pool stopped")
	return err
}

// DrainQueue runs tasks from queue on the calling goroutine until the queue
// is empty, including tasks enqueued by the handlers themselves. It returns
// the number of tasks run.
func (w *WorkerPool) DrainQueue(ctx context.Context, queue string) (int, error) {
	n := 0
	for {
		task, err := w.broker.Dequeue(ctx, queue, w.settings.Lease)
		if err != nil {
			return n, fmt.Errorf("%w: %v", domain.ErrBrokerUnavailable, err)
		}
		if task == nil {
			return n, nil
		}
		result, ok := w.runTask(ctx, task)
		if !ok {
			return n, ctx.Err()
		}
		if err := w.broker.Ack(ctx, task.ID, result); err != nil {
			return n, fmt.Errorf("%w: acking %s: %v", domain.ErrBrokerUnavailable, task.ID, err)
		}
		n++
	}
}

func (w *WorkerPool) work(ctx context.Context, queue string) error {
	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		task, err := w.broker.Dequeue(ctx, queue, w.settings.Lease)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			if err := w.wait(ctx, failures, err); err != nil {
				return err
			}
			continue
		}
		failures = 0

		if task == nil {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.settings.PollInterval):
			}
			continue
		}

		result, ok := w.runTask(ctx, task)
		if !ok {
			return nil
		}
		if err := w.ack(ctx, task.ID, result); err != nil {
			return err
		}
	}
}

// ack retries until the result is stored. A cancelled pool leaves the
// task leased; it is redelivered when the lease expires.
func (w *WorkerPool) ack(ctx context.Context, taskID string, result domain.TaskResult) error {
	for failures := 1; ; failures++ {
		err := w.broker.Ack(ctx, taskID, result)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		if err := w.wait(ctx, failures, err); err != nil {
			return err
		}
	}
}

// wait sleeps before the next broker retry, or gives up once failures
// exceeds MaxReconnects.
func (w *WorkerPool) wait(ctx context.Context, failures int, cause error) error {
	if failures > w.settings.MaxReconnects {
		logger.Error("broker unreachable after %d attempts: %v", failures, cause)
		return fmt.Errorf("%w: %v", domain.ErrBrokerUnavailable, cause)
	}
	delay := w.backoff << (failures - 1)
	if delay <= 0 || delay > maxBackoff {
		delay = maxBackoff
	}
	logger.Warn("broker error (attempt %d/%d), retrying in %s: %v", failures, w.settings.MaxReconnects, delay, cause)
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(delay):
		return nil
	}
}

type outcome struct {
	result    domain.TaskResult
	violation *domain.ContractViolation
}

// runTask runs the task's handler under the hard time limit. The boolean
// is false when ctx was cancelled before the task finished; such tasks
// must not be acked. A ContractViolation raised by the handler is raised
// again on the calling goroutine.
func (w *WorkerPool) runTask(ctx context.Context, task *domain.Task) (domain.TaskResult, bool) {
	w.mu.RLock()
	h, ok := w.handlers[task.Name]
	w.mu.RUnlock()
	if !ok {
		logger.Warn("no handler for task %s (%s)", task.ID, task.Name)
		return finish(task, failedResult(task, domain.SignalTaskUnknown,
			fmt.Errorf("%w: unknown task %q", domain.ErrInvalidInput, task.Name))), true
	}

	logger.Debug("running %s (%s), attempt %d", task.ID, task.Name, task.Attempts)
	runCtx, cancel := context.WithTimeout(ctx, w.settings.TaskTimeLimit)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if cv, ok := r.(domain.ContractViolation); ok {
				done <- outcome{violation: &cv}
				return
			}
			logger.Error("task %s panicked: %v", task.ID, r)
			done <- outcome{result: failedResult(task, stageSignal(task.Name),
				fmt.Errorf("%w: panic: %v", domain.ErrStageFailed, r))}
		}()
		done <- outcome{result: h(runCtx, task)}
	}()

	select {
	case o := <-done:
		return o.finish(task), true
	case <-runCtx.Done():
	}

	// The handler may have finished as the deadline fired.
	select {
	case o := <-done:
		return o.finish(task), true
	default:
	}
	if ctx.Err() != nil {
		return domain.TaskResult{}, false
	}
	logger.Error("task %s exceeded its %s time limit", task.ID, w.settings.TaskTimeLimit)
	return finish(task, failedResult(task, domain.SignalTaskTimeLimit, domain.ErrTaskTimeLimit)), true
}

func (o outcome) finish(task *domain.Task) domain.TaskResult {
	if o.violation != nil {
		panic(*o.violation)
	}
	return finish(task, o.result)
}

func (w *WorkerPool) purge(ctx context.Context) {
	every := min(w.settings.ResultExpires/2, defaultPurgeEvery)
	if every <= 0 {
		every = defaultPurgeEvery
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.broker.PurgeResults(ctx, w.settings.ResultExpires)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("purging task results: %v", err)
				continue
			}
			if n > 0 {
				logger.Debug("purged %d expired task results", n)
			}
		}
	}
}

func finish(task *domain.Task, result domain.TaskResult) domain.TaskResult {
	result.TaskID = task.ID
	if result.Name == "" {
		result.Name = task.Name
	}
	if result.FinishedAt.IsZero() {
		result.FinishedAt = time.Now().UTC()
	}
	return result
}

func failedResult(task *domain.Task, signal domain.Signal, err error) domain.TaskResult {
	return domain.TaskResult{
		Name:        task.Name,
		Signal:      signal,
		FailedStage: taskStage(task.Name),
		Error:       err.Error(),
	}
}

func taskStage(name domain.TaskName) domain.Stage {
	switch name {
	case domain.TaskChunkFile:
		return domain.StageChunk
	case domain.TaskEmbedChunks:
		return domain.StageEmbed
	default:
		return ""
	}
}

func stageSignal(name domain.TaskName) domain.Signal {
	if name == domain.TaskEmbedChunks {
		return domain.SignalChunkEmbeddingFailed
	}
	return domain.SignalFileProcessFailed
}
