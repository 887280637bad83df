// Package pgvector provides a vector index stored in PostgreSQL with the
// pgvector extension. Collections are rows in vector_collections; records of
// every collection share the vector_records table.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS vector_collections (
		name TEXT PRIMARY KEY,
		dimension INTEGER NOT NULL CHECK (dimension > 0),
		metric TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS vector_records (
		collection TEXT NOT NULL REFERENCES vector_collections(name) ON DELETE CASCADE,
		id TEXT NOT NULL,
		embedding vector NOT NULL,
		payload JSONB NOT NULL DEFAULT '{}',
		PRIMARY KEY (collection, id)
	)`,
}

// Index is a driven.VectorIndex over a PostgreSQL pool.
type Index struct {
	db     *sql.DB
	ownsDB bool
}

// New creates an index on an existing pool, usually the one the postgres
// chunk store already holds, and ensures the schema exists.
func New(ctx context.Context, db *sql.DB) (*Index, error) {
	idx := &Index{db: db}
	if err := idx.migrate(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

// NewFromDSN opens a dedicated pool for the index.
func NewFromDSN(ctx context.Context, dsn string) (*Index, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping postgres: %v", domain.ErrTransport, err)
	}

	idx, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	idx.ownsDB = true
	return idx, nil
}

func (i *Index) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := i.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector migrate: %w", err)
		}
	}
	return nil
}

// CollectionExists reports whether the named collection has been created.
func (i *Index) CollectionExists(ctx context.Context, name string) (bool, error) {
	_, err := i.collection(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// CreateCollection creates the named collection. An existing row is left unchanged.
func (i *Index) CreateCollection(ctx context.Context, name string, dimension int, metric domain.DistanceMetric) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", domain.ErrInvalidInput)
	}
	if !metric.IsValid() {
		return fmt.Errorf("%w: unknown distance metric %q", domain.ErrInvalidInput, metric)
	}

	_, err := i.db.ExecContext(ctx, `
		INSERT INTO vector_collections (name, dimension, metric)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING
	`, name, dimension, string(metric))
	if err != nil {
		return fmt.Errorf("create collection %q: %w", name, err)
	}
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
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	_, err = i.db.ExecContext(ctx, `
		INSERT INTO vector_records (collection, id, embedding, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection, id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			payload = EXCLUDED.payload
	`, name, record.ID, pgvector.NewVector(record.Vector), payload)
	if err != nil {
		return "", fmt.Errorf("upsert record: %w", err)
	}
	return record.ID, nil
}

// distanceSQL returns the pgvector operator for metric and the expression
// turning its distance into a higher-is-better score.
func distanceSQL(metric domain.DistanceMetric) (op, score string) {
	switch metric {
	case domain.DistanceCosine:
		return "<=>", "1 - d"
	case domain.DistanceEuclid:
		return "<->", "1 / (1 + d)"
	default:
		// <#> is the negative inner product
		return "<#>", "-d"
	}
}

// Search returns the topK closest records.
func (i *Index) Search(ctx context.Context, name string, vector []float32, topK int) ([]domain.VectorHit, error) {
	info, err := i.collection(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(vector) != info.Dimension {
		return nil, fmt.Errorf("%w: query has %d, collection %q has %d",
			domain.ErrDimensionMismatch, len(vector), name, info.Dimension)
	}
	if topK <= 0 {
		return []domain.VectorHit{}, nil
	}

	op, score := distanceSQL(info.Metric)
	// Operators cannot be bound as parameters; both come from a closed set
	query := fmt.Sprintf(`
		SELECT id, payload, %s AS score FROM (
			SELECT id, payload, embedding %s $2 AS d
			FROM vector_records
			WHERE collection = $1
		) ranked
		ORDER BY d, id
		LIMIT $3
	`, score, op)

	rows, err := i.db.QueryContext(ctx, query, name, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	hits := []domain.VectorHit{}
	for rows.Next() {
		var (
			hit     domain.VectorHit
			payload []byte
		)
		if err := rows.Scan(&hit.ID, &payload, &hit.Score); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		if err := json.Unmarshal(payload, &hit.Payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// DeleteCollection removes a collection; its records go with it.
func (i *Index) DeleteCollection(ctx context.Context, name string) error {
	_, err := i.db.ExecContext(ctx, `DELETE FROM vector_collections WHERE name = $1`, name)
	return err
}

// DeleteRecord removes one record.
func (i *Index) DeleteRecord(ctx context.Context, name, id string) error {
	if _, err := i.collection(ctx, name); err != nil {
		return err
	}
	_, err := i.db.ExecContext(ctx, `DELETE FROM vector_records WHERE collection = $1 AND id = $2`, name, id)
	return err
}

// CountRecords returns the number of records in a collection.
func (i *Index) CountRecords(ctx context.Context, name string) (int, error) {
	if _, err := i.collection(ctx, name); err != nil {
		return 0, err
	}
	var n int
	err := i.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vector_records WHERE collection = $1`, name).Scan(&n)
	return n, err
}

// Close closes the pool when the index opened it.
func (i *Index) Close() error {
	if i.ownsDB {
		return i.db.Close()
	}
	return nil
}

func (i *Index) collection(ctx context.Context, name string) (domain.VectorCollection, error) {
	info := domain.VectorCollection{Name: name}
	var metric string
	err := i.db.QueryRowContext(ctx,
		`SELECT dimension, metric FROM vector_collections WHERE name = $1`, name,
	).Scan(&info.Dimension, &metric)
	if errors.Is(err, sql.ErrNoRows) {
		return info, fmt.Errorf("%w: collection %q", domain.ErrNotFound, name)
	}
	if err != nil {
		return info, fmt.Errorf("get collection %q: %w", name, err)
	}
	info.Metric = domain.DistanceMetric(metric)
	return info, nil
}
