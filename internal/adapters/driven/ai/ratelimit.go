package ai

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
)

// Ensure the decorators implement their interfaces.
var (
	_ driven.EmbeddingProvider  = (*RateLimitedEmbedding)(nil)
	_ driven.GenerationProvider = (*RateLimitedGeneration)(nil)
)

// newLimiter returns nil when settings disable limiting.
func newLimiter(settings domain.RateLimitSettings) *rate.Limiter {
	if settings.RequestsPerSecond <= 0 {
		return nil
	}
	burst := settings.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(settings.RequestsPerSecond), burst)
}

// RateLimitedEmbedding throttles Embed calls with a token bucket shared by
// every worker holding the same provider.
type RateLimitedEmbedding struct {
	driven.EmbeddingProvider
	limiter *rate.Limiter
}

// WithEmbeddingRateLimit wraps p when settings enable limiting, otherwise returns p.
func WithEmbeddingRateLimit(p driven.EmbeddingProvider, settings domain.RateLimitSettings) driven.EmbeddingProvider {
	limiter := newLimiter(settings)
	if p == nil || limiter == nil {
		return p
	}
	return &RateLimitedEmbedding{EmbeddingProvider: p, limiter: limiter}
}

// Embed waits for a token, then delegates.
func (r *RateLimitedEmbedding) Embed(ctx context.Context, text string, purpose domain.EmbedPurpose) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.EmbeddingProvider.Embed(ctx, text, purpose)
}

// RateLimitedGeneration throttles Generate calls.
type RateLimitedGeneration struct {
	driven.GenerationProvider
	limiter *rate.Limiter
}

// WithGenerationRateLimit wraps p when settings enable limiting, otherwise returns p.
func WithGenerationRateLimit(p driven.GenerationProvider, settings domain.RateLimitSettings) driven.GenerationProvider {
	limiter := newLimiter(settings)
	if p == nil || limiter == nil {
		return p
	}
	return &RateLimitedGeneration{GenerationProvider: p, limiter: limiter}
}

// Generate waits for a token, then delegates.
func (r *RateLimitedGeneration) Generate(
	ctx context.Context,
	prompt string,
	history []domain.ChatMessage,
	opts driven.GenerateOptions,
) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.GenerationProvider.Generate(ctx, prompt, history, opts)
}
