// Package memory provides an in-process vector index.
// It is suitable for tests and single-process deployments; nothing is persisted.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

type collection struct {
	info    domain.VectorCollection
	records map[string]domain.VectorRecord
}

// Index is a brute-force vector index guarded by a single mutex.
type Index struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// New creates an empty index.
func New() *Index {
	return &Index{collections: make(map[string]*collection)}
}

// CollectionExists reports whether the named collection has been created.
func (i *Index) CollectionExists(_ context.Context, name string) (bool, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.collections[name]
	return ok, nil
}

// CreateCollection creates the named collection. Existing collections are left unchanged.
func (i *Index) CreateCollection(_ context.Context, name string, dimension int, metric domain.DistanceMetric) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", domain.ErrInvalidInput)
	}
	if !metric.IsValid() {
		return fmt.Errorf("%w: unknown distance metric %q", domain.ErrInvalidInput, metric)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.collections[name]; ok {
		return nil
	}
	i.collections[name] = &collection{
		info:    domain.VectorCollection{Name: name, Dimension: dimension, Metric: metric},
		records: make(map[string]domain.VectorRecord),
	}
	return nil
}

// Collection returns the stored description of a collection.
func (i *Index) Collection(name string) (domain.VectorCollection, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	c, ok := i.collections[name]
	if !ok {
		return domain.VectorCollection{}, false
	}
	return c.info, true
}

// Upsert writes a record, assigning an ID when empty.
func (i *Index) Upsert(_ context.Context, name string, record domain.VectorRecord) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	c, ok := i.collections[name]
	if !ok {
		return "", fmt.Errorf("%w: collection %q", domain.ErrNotFound, name)
	}
	if len(record.Vector) != c.info.Dimension {
		return "", fmt.Errorf("%w: got %d, collection %q has %d",
			domain.ErrDimensionMismatch, len(record.Vector), name, c.info.Dimension)
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	vec := make([]float32, len(record.Vector))
	copy(vec, record.Vector)
	c.records[record.ID] = domain.VectorRecord{
		ID:      record.ID,
		Vector:  vec,
		Payload: domain.CopyMetadata(record.Payload),
	}
	return record.ID, nil
}

// Search scores every record and returns the best topK.
func (i *Index) Search(_ context.Context, name string, vector []float32, topK int) ([]domain.VectorHit, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	c, ok := i.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: collection %q", domain.ErrNotFound, name)
	}
	if len(vector) != c.info.Dimension {
		return nil, fmt.Errorf("%w: query has %d, collection %q has %d",
			domain.ErrDimensionMismatch, len(vector), name, c.info.Dimension)
	}
	if topK <= 0 {
		return []domain.VectorHit{}, nil
	}

	hits := make([]domain.VectorHit, 0, len(c.records))
	for id, rec := range c.records {
		hits = append(hits, domain.VectorHit{
			ID:      id,
			Score:   Score(c.info.Metric, vector, rec.Vector),
			Payload: domain.CopyMetadata(rec.Payload),
		})
	}

	// Ties break on ID so results are deterministic
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].ID < hits[b].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// DeleteCollection removes a collection. Deleting a missing collection is not an error.
func (i *Index) DeleteCollection(_ context.Context, name string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.collections, name)
	return nil
}

// DeleteRecord removes one record.
func (i *Index) DeleteRecord(_ context.Context, name, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	c, ok := i.collections[name]
	if !ok {
		return fmt.Errorf("%w: collection %q", domain.ErrNotFound, name)
	}
	delete(c.records, id)
	return nil
}

// CountRecords returns the number of records in a collection.
func (i *Index) CountRecords(_ context.Context, name string) (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	c, ok := i.collections[name]
	if !ok {
		return 0, fmt.Errorf("%w: collection %q", domain.ErrNotFound, name)
	}
	return len(c.records), nil
}

// Close releases resources.
func (i *Index) Close() error {
	return nil
}

// Score computes the similarity of a and b under metric. Higher is closer.
// Euclidean distance d maps to 1 / (1 + d).
func Score(metric domain.DistanceMetric, a, b []float32) float64 {
	switch metric {
	case domain.DistanceCosine:
		return cosine(a, b)
	case domain.DistanceEuclid:
		return 1 / (1 + euclidean(a, b))
	default:
		return dot(a, b)
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func cosine(a, b []float32) float64 {
	var dp, normA, normB float64
	for i := range a {
		dp += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dp / (math.Sqrt(normA) * math.Sqrt(normB))
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
