// Package sqlite provides a unified SQLite-based implementation of the
// ragpipe storage ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements three ports through a
// single database connection:
//
//   - ProjectStore: project registry with a unique human id
//   - ChunkStore: chunk persistence keyed by project and source file
//   - TaskBroker: lease-based task queue and result backend
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory and embedded at compile time.
//
// # Data Location
//
// By default, the database is stored at ~/.ragpipe/data/ragpipe.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode, so the CLI and a worker process can share one file.
package sqlite
