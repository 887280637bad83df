package ai

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
)

type countingEmbedder struct {
	calls atomic.Int32
}

func (c *countingEmbedder) SetEmbeddingModel(string, int) {}
func (c *countingEmbedder) Embed(context.Context, string, domain.EmbedPurpose) ([]float32, error) {
	c.calls.Add(1)
	return []float32{1}, nil
}
func (c *countingEmbedder) EmbeddingSize() int         { return 1 }
func (c *countingEmbedder) ModelName() string          { return "counting" }
func (c *countingEmbedder) Ping(context.Context) error { return nil }
func (c *countingEmbedder) Close() error               { return nil }

type echoGenerator struct{}

func (echoGenerator) SetGenerationModel(string) {}
func (echoGenerator) Generate(_ context.Context, prompt string, _ []domain.ChatMessage, _ driven.GenerateOptions) (string, error) {
	return prompt, nil
}
func (echoGenerator) ModelName() string          { return "echo" }
func (echoGenerator) Ping(context.Context) error { return nil }
func (echoGenerator) Close() error               { return nil }

func TestWithEmbeddingRateLimit_Disabled(t *testing.T) {
	inner := &countingEmbedder{}
	got := WithEmbeddingRateLimit(inner, domain.RateLimitSettings{})
	assert.Same(t, inner, got)
}

func TestWithEmbeddingRateLimit_Delegates(t *testing.T) {
	inner := &countingEmbedder{}
	p := WithEmbeddingRateLimit(inner, domain.RateLimitSettings{RequestsPerSecond: 1000, Burst: 5})
	require.IsType(t, &RateLimitedEmbedding{}, p)

	for range 3 {
		_, err := p.Embed(context.Background(), "x", domain.PurposeDocument)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), inner.calls.Load())
	assert.Equal(t, "counting", p.ModelName())
}

func TestRateLimitedEmbedding_CancelledContext(t *testing.T) {
	inner := &countingEmbedder{}
	p := WithEmbeddingRateLimit(inner, domain.RateLimitSettings{RequestsPerSecond: 0.001, Burst: 1})

	_, err := p.Embed(context.Background(), "first", domain.PurposeDocument)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Embed(ctx, "second", domain.PurposeDocument)
	assert.Error(t, err)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestWithGenerationRateLimit(t *testing.T) {
	assert.Nil(t, WithGenerationRateLimit(nil, domain.RateLimitSettings{RequestsPerSecond: 1}))

	p := WithGenerationRateLimit(echoGenerator{}, domain.RateLimitSettings{RequestsPerSecond: 100})
	out, err := p.Generate(context.Background(), "hello", nil, driven.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}
