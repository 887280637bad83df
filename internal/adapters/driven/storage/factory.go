// Package storage selects and opens the project store, chunk store and task
// broker backends described by the storage and broker settings.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/ragpipe/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ragpipe/internal/adapters/driven/storage/mongodb"
	"github.com/custodia-labs/ragpipe/internal/adapters/driven/storage/postgres"
	"github.com/custodia-labs/ragpipe/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
	"github.com/custodia-labs/ragpipe/internal/logger"
)

// Backends bundles the opened storage ports.
type Backends struct {
	Projects driven.ProjectStore
	Chunks   driven.ChunkStore
	Broker   driven.TaskBroker

	// SQL is the PostgreSQL pool when one was opened, so the pgvector index
	// can share it. Nil otherwise.
	SQL *sql.DB

	sqliteStores   map[string]*sqlite.Store
	postgresStores map[string]*postgres.Store
	closers        []func() error
}

// Open connects the storage and broker backends. A broker on the same
// driver and DSN as the storage reuses its connection.
func Open(ctx context.Context, storage domain.StorageSettings, broker domain.BrokerSettings) (*Backends, error) {
	b := &Backends{
		sqliteStores:   make(map[string]*sqlite.Store),
		postgresStores: make(map[string]*postgres.Store),
	}

	if err := b.openStorage(ctx, storage); err != nil {
		_ = b.Close()
		return nil, err
	}

	brokerDSN := broker.DSN
	if brokerDSN == "" && broker.Driver == storage.Driver {
		brokerDSN = storage.DSN
	}
	if err := b.openBroker(ctx, broker.Driver, brokerDSN); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backends) openStorage(ctx context.Context, cfg domain.StorageSettings) error {
	logger.Debug("opening %s storage", cfg.Driver)

	switch cfg.Driver {
	case domain.StorageMemory:
		b.Projects = memory.NewProjectStore()
		b.Chunks = memory.NewChunkStore()
	case domain.StorageSQLite:
		store, err := b.sqlite(cfg.DSN)
		if err != nil {
			return err
		}
		b.Projects = store.ProjectStore()
		b.Chunks = store.ChunkStore()
	case domain.StoragePostgres:
		store, err := b.postgres(ctx, cfg.DSN)
		if err != nil {
			return err
		}
		b.Projects = store.ProjectStore()
		b.Chunks = store.ChunkStore()
	case domain.StorageMongo:
		if cfg.DSN == "" {
			return fmt.Errorf("%w: mongo storage requires storage.dsn", domain.ErrInvalidInput)
		}
		store, err := mongodb.NewStore(ctx, cfg.DSN, cfg.Database)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrNotProvisioned, err)
		}
		b.closers = append(b.closers, store.Close)
		b.Projects = store.ProjectStore()
		b.Chunks = store.ChunkStore()
	default:
		return fmt.Errorf("%w: unknown storage driver %q", domain.ErrInvalidInput, cfg.Driver)
	}
	return nil
}

func (b *Backends) openBroker(ctx context.Context, driver domain.StorageDriver, dsn string) error {
	logger.Debug("opening %s broker", driver)

	switch driver {
	case domain.StorageMemory:
		b.Broker = memory.NewTaskBroker()
	case domain.StorageSQLite:
		store, err := b.sqlite(dsn)
		if err != nil {
			return err
		}
		b.Broker = store.TaskBroker()
	case domain.StoragePostgres:
		store, err := b.postgres(ctx, dsn)
		if err != nil {
			return err
		}
		b.Broker = store.TaskBroker()
	default:
		return fmt.Errorf("%w: %q cannot host the task broker", domain.ErrInvalidInput, driver)
	}
	return nil
}

func (b *Backends) sqlite(path string) (*sqlite.Store, error) {
	if store, ok := b.sqliteStores[path]; ok {
		return store, nil
	}
	store, err := sqlite.NewStore(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNotProvisioned, err)
	}
	b.sqliteStores[path] = store
	b.closers = append(b.closers, store.Close)
	return store, nil
}

func (b *Backends) postgres(ctx context.Context, dsn string) (*postgres.Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres requires a dsn", domain.ErrInvalidInput)
	}
	if store, ok := b.postgresStores[dsn]; ok {
		return store, nil
	}
	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNotProvisioned, err)
	}
	b.postgresStores[dsn] = store
	b.closers = append(b.closers, store.Close)
	if b.SQL == nil {
		b.SQL = store.DB()
	}
	return store, nil
}

// Close releases every opened connection.
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
