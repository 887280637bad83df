package driven

import (
	"context"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
)

// GenerationProvider turns a prompt plus chat history into text.
// This is an optional service - when nil, answer is disabled.
//
// Implementations may include:
//   - OpenAI (GPT-4o, GPT-4o-mini)
//   - Anthropic (Claude)
//   - Ollama (local models)
type GenerationProvider interface {
	// SetGenerationModel selects the model.
	// Generate panics with domain.ContractViolation until this has been called.
	SetGenerationModel(modelID string)

	// Generate appends prompt as a user turn to history and returns the reply.
	// The prompt is truncated to the configured maximum input length.
	// Transport failures wrap domain.ErrTransport.
	Generate(ctx context.Context, prompt string, history []domain.ChatMessage, opts GenerateOptions) (string, error)

	// ModelName returns the name of the model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// GenerateOptions configures text generation behaviour.
// Zero values fall back to the provider's configured defaults.
type GenerateOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64
}
