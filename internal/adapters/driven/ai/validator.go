package ai

import (
	"context"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
)

// Ensure ConfigValidator implements the interface.
var _ driven.AIConfigValidator = (*ConfigValidator)(nil)

// ConfigValidator checks AI provider configurations by creating each
// provider and pinging it.
type ConfigValidator struct{}

// NewConfigValidator creates a new AI config validator.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{}
}

// ValidateEmbedding pings the configured embedding provider.
// An unconfigured provider is not an error.
func (v *ConfigValidator) ValidateEmbedding(ctx context.Context, settings domain.EmbeddingSettings) error {
	p, err := CreateAndValidateEmbeddingProvider(ctx, settings)
	if p != nil {
		p.Close()
	}
	return err
}

// ValidateGeneration pings the configured generation provider.
// An unconfigured provider is not an error.
func (v *ConfigValidator) ValidateGeneration(ctx context.Context, settings domain.GenerationSettings) error {
	p, err := CreateAndValidateGenerationProvider(ctx, settings)
	if p != nil {
		p.Close()
	}
	return err
}
