package driven

import (
	"context"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
)

// VectorIndex stores per-project collections of vectors with payloads.
// Every operation is addressed by collection name, which equals the
// project's human id.
type VectorIndex interface {
	// CollectionExists reports whether the named collection has been created.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// CreateCollection creates the named collection. Creating a collection
	// that already exists succeeds without changing it, so concurrent
	// callers racing on a new project all succeed.
	CreateCollection(ctx context.Context, name string, dimension int, metric domain.DistanceMetric) error

	// Upsert writes a record and returns its ID. An empty record ID is
	// assigned a new one. Fails with domain.ErrNotFound if the collection
	// does not exist and domain.ErrDimensionMismatch if the vector size differs.
	Upsert(ctx context.Context, name string, record domain.VectorRecord) (string, error)

	// Search returns at most topK hits ordered by score descending, with
	// payloads and without vectors. Fails with domain.ErrNotFound if the
	// collection does not exist; an empty collection yields no hits.
	Search(ctx context.Context, name string, vector []float32, topK int) ([]domain.VectorHit, error)

	// DeleteCollection removes a collection and all its records.
	DeleteCollection(ctx context.Context, name string) error

	// DeleteRecord removes one record. Deleting a missing record is not an error.
	DeleteRecord(ctx context.Context, name, id string) error

	// CountRecords returns the number of records in a collection.
	CountRecords(ctx context.Context, name string) (int, error)

	// Close releases resources.
	Close() error
}
