package domain

import "time"

// Queue names.
const (
	// QueueDefault receives tasks with no explicit route.
	QueueDefault = "default"

	// QueueFileProcessing isolates ingestion work from other queues.
	QueueFileProcessing = "file_processing"
)

// TaskName identifies a registered task handler.
type TaskName string

// Ingestion task names.
const (
	TaskChunkFile   TaskName = "file_processing.chunk_file"
	TaskEmbedChunks TaskName = "file_processing.embed_chunks"
)

// QueueFor returns the queue a task is routed to.
func QueueFor(name TaskName) string {
	switch name {
	case TaskChunkFile, TaskEmbedChunks:
		return QueueFileProcessing
	default:
		return QueueDefault
	}
}

// Signal is the outcome code a task reports.
type Signal string

// Task and validation signals.
const (
	SignalFileValidated         Signal = "file_validated_success"
	SignalFileTypeNotSupported  Signal = "file_type_not_supported"
	SignalFileSizeExceeded      Signal = "file_size_exceeded"
	SignalFileUploadSuccess     Signal = "file_upload_success"
	SignalFileProcessSuccess    Signal = "file_process_success"
	SignalFileProcessFailed     Signal = "file_process_failed"
	SignalChunkEmbeddingSuccess Signal = "chunk_embedding_success"
	SignalChunkEmbeddingFailed  Signal = "chunk_embedding_failed"
	SignalTaskTimeLimit         Signal = "task_time_limit_exceeded"
	SignalTaskUnknown           Signal = "task_unknown"
)

// Stage names a pipeline stage for failure reporting.
type Stage string

// Pipeline stages.
const (
	StageChunk Stage = "chunk"
	StageEmbed Stage = "embed"
)

// TaskState is the broker-side lifecycle of a task.
type TaskState string

// Task states.
const (
	TaskPending TaskState = "pending"
	TaskActive  TaskState = "active"
	TaskDone    TaskState = "done"
)

// Task is a queued unit of work.
type Task struct {
	// ID is a time-ordered unique identifier.
	ID string

	// Name selects the handler.
	Name TaskName

	// Queue is the queue the task was routed to.
	Queue string

	// Payload is the JSON-encoded request.
	Payload []byte

	// Attempts counts deliveries, including the current one.
	Attempts int

	// EnqueuedAt is when the task was first enqueued.
	EnqueuedAt time.Time
}

// TaskInfo is a task together with its broker state and result, if done.
type TaskInfo struct {
	Task   Task
	State  TaskState
	Result *TaskResult
}

// ItemStatus is the per-chunk outcome of the embed stage.
type ItemStatus string

// Item statuses.
const (
	ItemEmbedded ItemStatus = "embedded"
	ItemSkipped  ItemStatus = "skipped"
	ItemFailed   ItemStatus = "failed"
)

// ItemResult reports what happened to one chunk in the embed stage.
type ItemResult struct {
	ChunkID string     `json:"chunk_id"`
	Ordinal int        `json:"ordinal"`
	Status  ItemStatus `json:"status"`
	Error   string     `json:"error,omitempty"`
}

// TaskResult is the structured outcome every task returns.
// Stage failures are reported here, never as panics.
type TaskResult struct {
	TaskID         string       `json:"task_id"`
	Name           TaskName     `json:"name"`
	Signal         Signal       `json:"signal"`
	InsertedChunks int          `json:"inserted_chunks,omitempty"`
	EmbedTaskID    string       `json:"embed_task_id,omitempty"`
	Items          []ItemResult `json:"items,omitempty"`
	Partial        bool         `json:"partial,omitempty"`
	FailedStage    Stage        `json:"failed_stage,omitempty"`
	Error          string       `json:"error,omitempty"`
	FinishedAt     time.Time    `json:"finished_at"`
}

// Failed reports whether the task ended in a failure signal.
func (r TaskResult) Failed() bool {
	switch r.Signal {
	case SignalFileProcessSuccess, SignalChunkEmbeddingSuccess:
		return false
	default:
		return true
	}
}

// Count returns how many items ended with the given status.
func (r TaskResult) Count(status ItemStatus) int {
	n := 0
	for _, item := range r.Items {
		if item.Status == status {
			n++
		}
	}
	return n
}

// Default chunking parameters.
const (
	DefaultChunkSize    = 100
	DefaultChunkOverlap = 20
)

// ChunkFileRequest is the payload of file_processing.chunk_file.
type ChunkFileRequest struct {
	ProjectID string `json:"project_id"`
	Filename  string `json:"filename"`
	ChunkSize int    `json:"chunk_size"`
	Overlap   int    `json:"overlap"`
}

// WithDefaults fills unset chunking parameters.
func (r ChunkFileRequest) WithDefaults() ChunkFileRequest {
	if r.ChunkSize <= 0 {
		r.ChunkSize = DefaultChunkSize
	}
	if r.Overlap <= 0 {
		r.Overlap = DefaultChunkOverlap
	}
	return r
}

// EmbedChunksRequest is the payload of file_processing.embed_chunks.
type EmbedChunksRequest struct {
	Chunks []ChunkRecord `json:"chunks"`
}
