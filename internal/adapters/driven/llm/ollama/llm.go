// Package ollama provides a generation provider adapter using Ollama.
package ollama

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
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.2"
	DefaultTimeout = 120 * time.Second
)

// Config holds configuration for the Ollama generation provider.
type Config struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration

	// MaxInputChars truncates longer prompts (default: 1000).
	MaxInputChars int

	// MaxOutputTokens maps to num_predict when GenerateOptions.MaxTokens is zero.
	MaxOutputTokens int

	// Temperature is used when GenerateOptions.Temperature is zero.
	Temperature float64
}

// Provider generates text using the Ollama chat API.
type Provider struct {
	client *http.Client
	cfg    Config

	mu    sync.RWMutex
	model string
}

// options holds generation parameters.
type options struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature"`
}

// chatRequest is the Ollama /api/chat request format.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *options      `json:"options,omitempty"`
}

// chatMessage is the Ollama chat message format.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the Ollama /api/chat response format.
type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

// New creates a new Ollama generation provider.
func New(cfg Config) *Provider {
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
		cfg:    cfg,
	}
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
		panic(domain.ContractViolation{Component: "ollama generation", Reason: "Generate called before SetGenerationModel"})
	}

	messages := make([]chatMessage, 0, len(history)+1)
	for _, msg := range history {
		messages = append(messages, chatMessage{Role: string(msg.Role), Content: msg.Content})
	}
	messages = append(messages, chatMessage{
		Role:    string(domain.RoleUser),
		Content: domain.Truncate(prompt, p.cfg.MaxInputChars),
	})

	opt := &options{NumPredict: p.cfg.MaxOutputTokens, Temperature: p.cfg.Temperature}
	if opts.MaxTokens > 0 {
		opt.NumPredict = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		opt.Temperature = opts.Temperature
	}

	jsonBody, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options:  opt,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: ollama: send request: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: ollama error (status %d): %s", domain.ErrTransport, resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if chatResp.Error != "" {
		return "", fmt.Errorf("%w: ollama error: %s", domain.ErrTransport, chatResp.Error)
	}

	return chatResp.Message.Content, nil
}

// ModelName returns the name of the model being used.
func (p *Provider) ModelName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

// Ping validates the service is reachable by checking the /api/tags endpoint.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("ollama: failed to create ping request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: ollama: ping failed: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: ollama: API returned status %d: %s", domain.ErrTransport, resp.StatusCode, string(body))
	}
	return nil
}

// Close releases resources.
func (p *Provider) Close() error {
	return nil
}
