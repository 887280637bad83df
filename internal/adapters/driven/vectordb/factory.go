// Package vectordb selects a vector index backend from settings.
package vectordb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/custodia-labs/ragpipe/internal/adapters/driven/vectordb/memory"
	"github.com/custodia-labs/ragpipe/internal/adapters/driven/vectordb/pgvector"
	"github.com/custodia-labs/ragpipe/internal/adapters/driven/vectordb/qdrant"
	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
	"github.com/custodia-labs/ragpipe/internal/logger"
)

// Open creates the index named by settings. A pgvector index without its own
// DSN reuses shared, the postgres pool of the chunk store, when available.
func Open(ctx context.Context, settings domain.VectorIndexSettings, shared *sql.DB) (driven.VectorIndex, error) {
	switch settings.Provider {
	case domain.VectorProviderMemory, "":
		logger.Debug("vector index: memory")
		return memory.New(), nil

	case domain.VectorProviderQdrant:
		logger.Debug("vector index: qdrant at %s", settings.URL)
		return qdrant.New(qdrant.Config{URL: settings.URL, APIKey: settings.APIKey}), nil

	case domain.VectorProviderPgVector:
		if settings.DSN == "" {
			if shared == nil {
				return nil, fmt.Errorf("%w: pgvector needs vector_index.dsn or a postgres storage driver",
					domain.ErrInvalidInput)
			}
			logger.Debug("vector index: pgvector on the storage pool")
			idx, err := pgvector.New(ctx, shared)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", domain.ErrVectorIndexUnavailable, err)
			}
			return idx, nil
		}
		logger.Debug("vector index: pgvector")
		idx, err := pgvector.NewFromDSN(ctx, settings.DSN)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrVectorIndexUnavailable, err)
		}
		return idx, nil

	default:
		return nil, fmt.Errorf("%w: unknown vector index provider %q", domain.ErrInvalidInput, settings.Provider)
	}
}
