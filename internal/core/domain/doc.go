// Package domain defines the core business entities for ragpipe.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Project: A logical document collection addressed by a human id
//   - Chunk: A bounded span of document text, the unit of retrieval
//   - VectorRecord: The embedding of a chunk plus its payload
//   - Task: A queued unit of ingestion work and its result
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
