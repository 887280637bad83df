package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	// Vector collections that were never provisioned also report it.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates a file type no loader understands.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrFileTooLarge indicates an upload exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrNotProvisioned indicates a model, collection or store was required
	// but has not been set up.
	ErrNotProvisioned = errors.New("not provisioned")

	// ErrLLMUnavailable indicates the generation provider is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding provider is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrVectorIndexUnavailable indicates the vector index is not configured.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")

	// Transport Errors.

	// ErrTransport indicates a provider or index backend was unreachable
	// or answered with a non-2xx status.
	ErrTransport = errors.New("transport failure")

	// ErrBrokerUnavailable indicates the task broker could not be reached
	// after the configured number of reconnect attempts.
	ErrBrokerUnavailable = errors.New("task broker unavailable")

	// Pipeline Errors.

	// ErrStageFailed indicates a pipeline stage could not proceed at all.
	ErrStageFailed = errors.New("stage failed")

	// ErrTaskTimeLimit indicates a task exceeded its hard wall-clock limit.
	ErrTaskTimeLimit = errors.New("task time limit exceeded")

	// ErrNoContent indicates a document produced no usable text.
	ErrNoContent = errors.New("no content")

	// ErrDimensionMismatch indicates a vector does not match its collection size.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// Retrieval Errors.

	// ErrEmbeddingFailed indicates the embedding provider produced no vector.
	ErrEmbeddingFailed = errors.New("embedding produced no vector")

	// ErrNoRelevantDocuments indicates retrieval found nothing to answer from.
	ErrNoRelevantDocuments = errors.New("no relevant documents found")
)

// ContractViolation is the panic value raised when a component is used
// before its preconditions are met, such as embedding before a model is set.
// It is the only panic in the module and is never recovered by workers.
type ContractViolation struct {
	Component string
	Reason    string
}

func (c ContractViolation) Error() string {
	return c.Component + ": " + c.Reason
}
