// Package ollama provides an embedding provider adapter using Ollama.
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
var _ driven.EmbeddingProvider = (*Provider)(nil)

// Default configuration values.
const (
	DefaultBaseURL    = "http://localhost:11434"
	DefaultModel      = "nomic-embed-text"
	DefaultTimeout    = 30 * time.Second
	DefaultDimensions = 768 // nomic-embed-text default
)

// Task prefixes nomic embedding models were trained with.
const (
	queryPrefix    = "search_query: "
	documentPrefix = "search_document: "
)

// Config holds configuration for the Ollama embedding provider.
type Config struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Timeout is the request timeout (default: 30s).
	Timeout time.Duration

	// MaxInputChars truncates longer inputs (default: 1000).
	MaxInputChars int
}

// Provider generates embeddings using Ollama.
type Provider struct {
	client        *http.Client
	baseURL       string
	maxInputChars int

	mu    sync.RWMutex
	model string
	size  int
}

// embedRequest is the Ollama API request format.
type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// embedResponse is the Ollama API response format.
type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// New creates a new Ollama embedding provider.
func New(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxInputChars == 0 {
		cfg.MaxInputChars = domain.DefaultMaxInputChars
	}

	return &Provider{
		client:        &http.Client{Timeout: cfg.Timeout},
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		maxInputChars: cfg.MaxInputChars,
	}
}

// SetEmbeddingModel selects the model and its vector size.
func (p *Provider) SetEmbeddingModel(modelID string, size int) {
	if size <= 0 {
		size = DefaultDimensions
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.model = modelID
	p.size = size
}

// Embed generates a vector embedding for text.
func (p *Provider) Embed(ctx context.Context, text string, purpose domain.EmbedPurpose) ([]float32, error) {
	model, _ := p.current()
	if model == "" {
		panic(domain.ContractViolation{Component: "ollama embedding", Reason: "Embed called before SetEmbeddingModel"})
	}

	reqBody := embedRequest{
		Model:  model,
		Prompt: withPurposePrefix(model, domain.Truncate(text, p.maxInputChars), purpose),
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama: send request: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: ollama error (status %d): %s", domain.ErrTransport, resp.StatusCode, string(body))
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	embedding := make([]float32, len(embedResp.Embedding))
	for i, v := range embedResp.Embedding {
		embedding[i] = float32(v)
	}
	return embedding, nil
}

// withPurposePrefix adds the nomic task prefix. Other models get text unchanged.
func withPurposePrefix(model, text string, purpose domain.EmbedPurpose) string {
	if !strings.Contains(model, "nomic") {
		return text
	}
	if purpose == domain.PurposeQuery {
		return queryPrefix + text
	}
	return documentPrefix + text
}

// EmbeddingSize returns the configured vector size.
func (p *Provider) EmbeddingSize() int {
	_, size := p.current()
	return size
}

// ModelName returns the name of the embedding model being used.
func (p *Provider) ModelName() string {
	model, _ := p.current()
	return model
}

func (p *Provider) current() (string, int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model, p.size
}

// Ping validates the service is reachable by checking the /api/tags endpoint.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", http.NoBody)
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
