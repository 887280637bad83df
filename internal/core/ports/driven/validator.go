package driven

import (
	"context"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
)

// AIConfigValidator checks provider settings by contacting the provider.
// Unconfigured providers are not an error.
type AIConfigValidator interface {
	ValidateEmbedding(ctx context.Context, settings domain.EmbeddingSettings) error
	ValidateGeneration(ctx context.Context, settings domain.GenerationSettings) error
}
