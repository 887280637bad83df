// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the ingestion pipeline to function:
//
//   - Normaliser / NormaliserRegistry: Decode uploaded files into text blocks
//   - Splitter: Turn blocks into bounded chunks
//   - ProjectStore: Project find-or-create and listing
//   - ChunkStore: Chunk persistence
//   - TaskBroker: Durable queue with acks-late leasing and a result backend
//   - EmbeddingProvider: Turns text into vectors
//   - VectorIndex: Per-project vector collections
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - GenerationProvider: Without it, answer is disabled but search still works.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven
