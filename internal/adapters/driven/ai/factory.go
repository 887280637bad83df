// Package ai provides factory functions for creating AI provider adapters.
package ai

import (
	"context"
	"fmt"
	"time"

	ollamaembed "github.com/custodia-labs/ragpipe/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/ragpipe/internal/adapters/driven/embedding/openai"
	anthropicllm "github.com/custodia-labs/ragpipe/internal/adapters/driven/llm/anthropic"
	ollamallm "github.com/custodia-labs/ragpipe/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/ragpipe/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// CreateAndValidateEmbeddingProvider creates an embedding provider and validates connectivity.
// Returns nil and no error if the provider is not configured.
func CreateAndValidateEmbeddingProvider(ctx context.Context, settings domain.EmbeddingSettings) (driven.EmbeddingProvider, error) {
	p, err := CreateEmbeddingProvider(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	if p == nil {
		return nil, nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := p.Ping(pingCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w)", domain.ErrEmbeddingUnavailable, err)
	}
	return p, nil
}

// CreateAndValidateGenerationProvider creates a generation provider and validates connectivity.
// Returns nil and no error if the provider is not configured.
func CreateAndValidateGenerationProvider(ctx context.Context, settings domain.GenerationSettings) (driven.GenerationProvider, error) {
	p, err := CreateGenerationProvider(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrLLMUnavailable, err)
	}
	if p == nil {
		return nil, nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := p.Ping(pingCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w)", domain.ErrLLMUnavailable, err)
	}
	return p, nil
}

// CreateEmbeddingProvider creates the embedding provider named by settings with
// its model already selected. Returns nil if the provider is not configured.
func CreateEmbeddingProvider(settings domain.EmbeddingSettings) (driven.EmbeddingProvider, error) {
	if !settings.IsConfigured() {
		return nil, nil
	}

	model := settings.Model
	if model == "" {
		model = domain.DefaultEmbeddingModels()[settings.Provider]
	}

	var p driven.EmbeddingProvider
	switch settings.Provider {
	case domain.AIProviderOllama:
		p = ollamaembed.New(ollamaembed.Config{
			BaseURL:       settings.BaseURL,
			MaxInputChars: settings.MaxInputChars,
		})

	case domain.AIProviderOpenAI:
		svc, err := openaiembed.New(openaiembed.Config{
			APIKey:        settings.APIKey,
			BaseURL:       settings.BaseURL,
			MaxInputChars: settings.MaxInputChars,
		})
		if err != nil {
			return nil, err
		}
		p = svc

	case domain.AIProviderAnthropic:
		// Anthropic does not support embeddings.
		return nil, fmt.Errorf("%w: anthropic does not support embeddings, use ollama or openai", domain.ErrInvalidInput)

	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider: %s", domain.ErrInvalidInput, settings.Provider)
	}

	p.SetEmbeddingModel(model, settings.Size)
	return p, nil
}

// CreateGenerationProvider creates the generation provider named by settings
// with its model already selected. Returns nil if the provider is not configured.
func CreateGenerationProvider(settings domain.GenerationSettings) (driven.GenerationProvider, error) {
	if !settings.IsConfigured() {
		return nil, nil
	}

	model := settings.Model
	if model == "" {
		model = domain.DefaultGenerationModels()[settings.Provider]
	}

	var p driven.GenerationProvider
	switch settings.Provider {
	case domain.AIProviderOllama:
		p = ollamallm.New(ollamallm.Config{
			BaseURL:         settings.BaseURL,
			MaxInputChars:   settings.MaxInputChars,
			MaxOutputTokens: settings.MaxOutputTokens,
			Temperature:     settings.Temperature,
		})

	case domain.AIProviderOpenAI:
		svc, err := openaillm.New(openaillm.Config{
			APIKey:          settings.APIKey,
			BaseURL:         settings.BaseURL,
			MaxInputChars:   settings.MaxInputChars,
			MaxOutputTokens: settings.MaxOutputTokens,
			Temperature:     settings.Temperature,
		})
		if err != nil {
			return nil, err
		}
		p = svc

	case domain.AIProviderAnthropic:
		svc, err := anthropicllm.New(anthropicllm.Config{
			APIKey:          settings.APIKey,
			BaseURL:         settings.BaseURL,
			MaxInputChars:   settings.MaxInputChars,
			MaxOutputTokens: settings.MaxOutputTokens,
			Temperature:     settings.Temperature,
		})
		if err != nil {
			return nil, err
		}
		p = svc

	default:
		return nil, fmt.Errorf("%w: unsupported generation provider: %s", domain.ErrInvalidInput, settings.Provider)
	}

	p.SetGenerationModel(model)
	return p, nil
}
