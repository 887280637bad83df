// Package qdrant provides a vector index backed by the Qdrant REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Default configuration values.
const (
	DefaultURL     = "http://localhost:6333"
	DefaultTimeout = 30 * time.Second
)

// Config holds configuration for the Qdrant index.
type Config struct {
	// URL is the Qdrant REST endpoint (default: http://localhost:6333).
	URL string

	// APIKey authenticates against Qdrant Cloud. Optional.
	APIKey string

	// Timeout is the request timeout (default: 30s).
	Timeout time.Duration
}

// Index is a driven.VectorIndex over Qdrant collections.
// Collection parameters are cached after first use since they never change.
type Index struct {
	client *http.Client
	url    string
	apiKey string

	mu    sync.RWMutex
	known map[string]domain.VectorCollection
}

// envelope is the common Qdrant response wrapper.
type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

type vectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

type scoredPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// New creates a Qdrant index client. No request is made until first use.
func New(cfg Config) *Index {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Index{
		client: &http.Client{Timeout: cfg.Timeout},
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		known:  make(map[string]domain.VectorCollection),
	}
}

// toQdrantDistance maps a metric to the Qdrant distance name.
func toQdrantDistance(m domain.DistanceMetric) string {
	switch m {
	case domain.DistanceCosine:
		return "Cosine"
	case domain.DistanceEuclid:
		return "Euclid"
	default:
		return "Dot"
	}
}

// fromQdrantDistance is the inverse of toQdrantDistance.
func fromQdrantDistance(s string) domain.DistanceMetric {
	return domain.ParseDistanceMetric(s)
}

// CollectionExists reports whether the named collection has been created.
func (i *Index) CollectionExists(ctx context.Context, name string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	status, err := i.do(ctx, http.MethodGet, i.collectionPath(name)+"/exists", nil, &out)
	if status == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return out.Exists, nil
}

// CreateCollection creates the named collection. A collection that already
// exists is left unchanged.
func (i *Index) CreateCollection(ctx context.Context, name string, dimension int, metric domain.DistanceMetric) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", domain.ErrInvalidInput)
	}
	if !metric.IsValid() {
		return fmt.Errorf("%w: unknown distance metric %q", domain.ErrInvalidInput, metric)
	}

	exists, err := i.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	body := map[string]any{
		"vectors": vectorParams{Size: dimension, Distance: toQdrantDistance(metric)},
	}
	status, err := i.do(ctx, http.MethodPut, i.collectionPath(name), body, nil)
	// A concurrent creator won the race
	if status == http.StatusConflict {
		return nil
	}
	if err != nil {
		return err
	}

	i.remember(domain.VectorCollection{Name: name, Dimension: dimension, Metric: metric})
	return nil
}

// Upsert writes a record, assigning an ID when empty.
func (i *Index) Upsert(ctx context.Context, name string, record domain.VectorRecord) (string, error) {
	info, err := i.collection(ctx, name)
	if err != nil {
		return "", err
	}
	if len(record.Vector) != info.Dimension {
		return "", fmt.Errorf("%w: got %d, collection %q has %d",
			domain.ErrDimensionMismatch, len(record.Vector), name, info.Dimension)
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	body := map[string]any{
		"points": []point{{ID: record.ID, Vector: record.Vector, Payload: record.Payload}},
	}
	status, err := i.do(ctx, http.MethodPut, i.collectionPath(name)+"/points?wait=true", body, nil)
	if status == http.StatusNotFound {
		i.forget(name)
		return "", fmt.Errorf("%w: collection %q", domain.ErrNotFound, name)
	}
	if err != nil {
		return "", err
	}
	return record.ID, nil
}

// Search returns the topK closest records with payloads and without vectors.
func (i *Index) Search(ctx context.Context, name string, vector []float32, topK int) ([]domain.VectorHit, error) {
	info, err := i.collection(ctx, name)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []domain.VectorHit{}, nil
	}

	body := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  false,
	}
	var result []scoredPoint
	status, err := i.do(ctx, http.MethodPost, i.collectionPath(name)+"/points/search", body, &result)
	if status == http.StatusNotFound {
		i.forget(name)
		return nil, fmt.Errorf("%w: collection %q", domain.ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}

	hits := make([]domain.VectorHit, 0, len(result))
	for _, p := range result {
		score := p.Score
		// Qdrant reports the raw euclidean distance
		if info.Metric == domain.DistanceEuclid {
			score = 1 / (1 + p.Score)
		}
		hits = append(hits, domain.VectorHit{
			ID:      fmt.Sprint(p.ID),
			Score:   score,
			Payload: p.Payload,
		})
	}
	return hits, nil
}

// DeleteCollection removes a collection and all its records.
func (i *Index) DeleteCollection(ctx context.Context, name string) error {
	i.forget(name)
	status, err := i.do(ctx, http.MethodDelete, i.collectionPath(name), nil, nil)
	if status == http.StatusNotFound {
		return nil
	}
	return err
}

// DeleteRecord removes one record.
func (i *Index) DeleteRecord(ctx context.Context, name, id string) error {
	body := map[string]any{"points": []string{id}}
	status, err := i.do(ctx, http.MethodPost, i.collectionPath(name)+"/points/delete?wait=true", body, nil)
	if status == http.StatusNotFound {
		return fmt.Errorf("%w: collection %q", domain.ErrNotFound, name)
	}
	return err
}

// CountRecords returns the exact number of records in a collection.
func (i *Index) CountRecords(ctx context.Context, name string) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	status, err := i.do(ctx, http.MethodPost, i.collectionPath(name)+"/points/count", map[string]any{"exact": true}, &out)
	if status == http.StatusNotFound {
		return 0, fmt.Errorf("%w: collection %q", domain.ErrNotFound, name)
	}
	if err != nil {
		return 0, err
	}
	return out.Count, nil
}

// Close releases resources.
func (i *Index) Close() error {
	i.client.CloseIdleConnections()
	return nil
}

// collection returns cached collection parameters, fetching them on first use.
func (i *Index) collection(ctx context.Context, name string) (domain.VectorCollection, error) {
	i.mu.RLock()
	info, ok := i.known[name]
	i.mu.RUnlock()
	if ok {
		return info, nil
	}

	var out struct {
		Config struct {
			Params struct {
				Vectors vectorParams `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	status, err := i.do(ctx, http.MethodGet, i.collectionPath(name), nil, &out)
	if status == http.StatusNotFound {
		return domain.VectorCollection{}, fmt.Errorf("%w: collection %q", domain.ErrNotFound, name)
	}
	if err != nil {
		return domain.VectorCollection{}, err
	}

	info = domain.VectorCollection{
		Name:      name,
		Dimension: out.Config.Params.Vectors.Size,
		Metric:    fromQdrantDistance(out.Config.Params.Vectors.Distance),
	}
	i.remember(info)
	return info, nil
}

func (i *Index) remember(info domain.VectorCollection) {
	i.mu.Lock()
	i.known[info.Name] = info
	i.mu.Unlock()
}

func (i *Index) forget(name string) {
	i.mu.Lock()
	delete(i.known, name)
	i.mu.Unlock()
}

func (i *Index) collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

// do sends a JSON request and decodes the result field into out.
// The HTTP status is returned alongside any error so callers can map 404 and 409.
func (i *Index) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, i.url+path, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if i.apiKey != "" {
		req.Header.Set("api-key", i.apiKey)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: qdrant %s %s: %v", domain.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: qdrant: read response: %v", domain.ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("%w: qdrant %s %s (status %d): %s",
			domain.ErrTransport, method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return resp.StatusCode, nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode result: %w", err)
	}
	return resp.StatusCode, nil
}
