package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := New(Config{APIKey: "sk-ant", BaseURL: server.URL})
	require.NoError(t, err)
	p.SetGenerationModel(DefaultModel)
	return p
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGenerate_PanicsWithoutModel(t *testing.T) {
	p, err := New(Config{APIKey: "k"})
	require.NoError(t, err)

	assert.Panics(t, func() {
		_, _ = p.Generate(context.Background(), "hi", nil, driven.GenerateOptions{})
	})
}

func TestGenerate_ExtractsSystemMessages(t *testing.T) {
	var got messagesRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Hello, "},{"type":"tool_use"},{"type":"text","text":"world"}]}`))
	})

	history := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "rule one"},
		{Role: domain.RoleUser, Content: "earlier"},
		{Role: domain.RoleAssistant, Content: "reply"},
		{Role: domain.RoleSystem, Content: "rule two"},
	}
	out, err := p.Generate(context.Background(), "now", history, driven.GenerateOptions{MaxTokens: 64})

	require.NoError(t, err)
	assert.Equal(t, "Hello, world", out)
	assert.Equal(t, "rule one\nrule two", got.System)
	assert.Equal(t, 64, got.MaxTokens)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "assistant", got.Messages[1].Role)
	assert.Equal(t, messagesMessage{Role: "user", Content: "now"}, got.Messages[2])
}

func TestGenerate_TransportErrors(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	})

	_, err := p.Generate(context.Background(), "q", nil, driven.GenerateOptions{})
	require.ErrorIs(t, err, domain.ErrTransport)
	assert.Contains(t, err.Error(), "status 429")
}

func TestGenerate_EmptyContent(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	})
	_, err := p.Generate(context.Background(), "q", nil, driven.GenerateOptions{})
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("x-api-key"))
	})
	assert.NoError(t, p.Ping(context.Background()))
}
