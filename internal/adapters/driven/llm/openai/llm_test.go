package openai

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

	p, err := New(Config{APIKey: "sk-test", BaseURL: server.URL + "/", MaxInputChars: 8})
	require.NoError(t, err)
	p.SetGenerationModel("gpt-4o-mini")
	return p
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGenerate_PanicsWithoutModel(t *testing.T) {
	p, err := New(Config{APIKey: "k"})
	require.NoError(t, err)

	assert.PanicsWithValue(t, domain.ContractViolation{
		Component: componentName,
		Reason:    missingModelMsg,
	}, func() {
		_, _ = p.Generate(context.Background(), "hi", nil, driven.GenerateOptions{})
	})
}

func TestGenerate_SendsHistoryAndTruncatedPrompt(t *testing.T) {
	var got chatCompletionRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"forty two"},"finish_reason":"stop"}]}`))
	})

	history := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "be brief"},
		{Role: domain.RoleAssistant, Content: "ok"},
	}
	out, err := p.Generate(context.Background(), "what is the answer", history, driven.GenerateOptions{})

	require.NoError(t, err)
	assert.Equal(t, "forty two", out)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, domain.DefaultMaxOutputTokens, got.MaxTokens)
	assert.InDelta(t, domain.DefaultTemperature, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[2].Role)
	assert.Equal(t, "what is ", got.Messages[2].Content)
}

func TestGenerate_OptionsOverrideDefaults(t *testing.T) {
	var got chatCompletionRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"x"}}]}`))
	})

	_, err := p.Generate(context.Background(), "q", nil, driven.GenerateOptions{MaxTokens: 50, Temperature: 0.7})

	require.NoError(t, err)
	assert.Equal(t, 50, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, `boom`, domain.ErrTransport},
		{"api error", http.StatusOK, `{"error":{"message":"bad","type":"invalid"}}`, domain.ErrTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := p.Generate(context.Background(), "q", nil, driven.GenerateOptions{})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGenerate_NoChoices(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	_, err := p.Generate(context.Background(), "q", nil, driven.GenerateOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no response choices")
}

func TestPing(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	assert.NoError(t, p.Ping(context.Background()))
	assert.NoError(t, p.Close())
}

func TestPing_Unauthorised(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	assert.ErrorIs(t, p.Ping(context.Background()), domain.ErrTransport)
}
