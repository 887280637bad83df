// Package openai provides a generation provider adapter using the OpenAI API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.GenerationProvider = (*Provider)(nil)

// Default configuration values.
const (
	DefaultBaseURL  = "https://api.openai.com/v1"
	DefaultModel    = "gpt-4o-mini"
	DefaultTimeout  = 120 * time.Second
	componentName   = "openai generation"
	missingModelMsg = "Generate called before SetGenerationModel"
)

// Config holds configuration for the OpenAI generation provider.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	// Can be changed for Azure OpenAI or compatible APIs.
	BaseURL string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration

	// MaxInputChars truncates longer prompts (default: 1000).
	MaxInputChars int

	// MaxOutputTokens is used when GenerateOptions.MaxTokens is zero (default: 1000).
	MaxOutputTokens int

	// Temperature is used when GenerateOptions.Temperature is zero (default: 0.1).
	Temperature float64
}

// Provider generates text using the OpenAI chat completions API.
type Provider struct {
	client *http.Client
	apiKey string
	cfg    Config

	mu    sync.RWMutex
	model string
}

// chatCompletionRequest is the OpenAI /chat/completions request format.
type chatCompletionRequest struct {
	Model       string              `json:"model"`
	Messages    []chatCompletionMsg `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature"`
}

// chatCompletionMsg is the OpenAI chat message format.
type chatCompletionMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionResponse is the OpenAI /chat/completions response format.
type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// New creates a new OpenAI generation provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai: API key is required", domain.ErrInvalidInput)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxInputChars == 0 {
		cfg.MaxInputChars = domain.DefaultMaxInputChars
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = domain.DefaultMaxOutputTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = domain.DefaultTemperature
	}

	return &Provider{
		client: &http.Client{Timeout: cfg.Timeout},
		apiKey: cfg.APIKey,
		cfg:    cfg,
	}, nil
}

// SetGenerationModel selects the model.
func (p *Provider) SetGenerationModel(modelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.model = modelID
}

// Generate sends history followed by prompt as a user turn.
func (p *Provider) Generate(
	ctx context.Context,
	prompt string,
	history []domain.ChatMessage,
	opts driven.GenerateOptions,
) (string, error) {
	model := p.ModelName()
	if model == "" {
		panic(domain.ContractViolation{Component: componentName, Reason: missingModelMsg})
	}

	messages := make([]chatCompletionMsg, 0, len(history)+1)
	for _, msg := range history {
		messages = append(messages, chatCompletionMsg{Role: string(msg.Role), Content: msg.Content})
	}
	messages = append(messages, chatCompletionMsg{
		Role:    string(domain.RoleUser),
		Content: domain.Truncate(prompt, p.cfg.MaxInputChars),
	})

	reqBody := chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   p.cfg.MaxOutputTokens,
		Temperature: p.cfg.Temperature,
	}
	if opts.MaxTokens > 0 {
		reqBody.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		reqBody.Temperature = opts.Temperature
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: openai: send request: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: openai: read response: %v", domain.ErrTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: openai error (status %d): %s", domain.ErrTransport, resp.StatusCode, string(body))
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("%w: openai error: %s", domain.ErrTransport, chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("openai: no response choices returned")
	}

	return chatResp.Choices[0].Message.Content, nil
}

// ModelName returns the name of the model being used.
func (p *Provider) ModelName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

// Ping validates the service is reachable by checking the /models endpoint.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/models", http.NoBody)
	if err != nil {
		return fmt.Errorf("openai: failed to create ping request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: openai: ping failed: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: openai: API returned status %d: %s", domain.ErrTransport, resp.StatusCode, string(body))
	}
	return nil
}

// Close releases resources.
func (p *Provider) Close() error {
	return nil
}
