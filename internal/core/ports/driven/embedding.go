// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import (
	"context"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
)

// EmbeddingProvider turns text into a fixed-dimension vector.
//
// Note: This is separate from VectorIndex which stores and searches vectors.
// EmbeddingProvider generates vectors; VectorIndex stores them.
//
// Implementations may include:
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
//   - Ollama (nomic-embed-text, all-minilm)
type EmbeddingProvider interface {
	// SetEmbeddingModel selects the model and its vector size.
	// Embed panics with domain.ContractViolation until this has been called.
	SetEmbeddingModel(modelID string, size int)

	// Embed generates a vector for text. Text longer than the configured
	// maximum input length is truncated, not rejected.
	// Transport failures wrap domain.ErrTransport.
	Embed(ctx context.Context, text string, purpose domain.EmbedPurpose) ([]float32, error)

	// EmbeddingSize returns the configured vector size.
	// This must match the dimension of the collections vectors are written to.
	EmbeddingSize() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
