package services

import (
	"errors"
	"fmt"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
)

// Setup holds the collaborators shared by every stage and service.
// It is built once per process at bootstrap and passed explicitly.
type Setup struct {
	Settings domain.AppSettings

	Projects driven.ProjectStore
	Chunks   driven.ChunkStore
	Broker   driven.TaskBroker

	Loader   driven.NormaliserRegistry
	Splitter driven.Splitter

	// Embedder and Index are required by the embed stage and retrieval.
	// Generator and Prompts are only needed by Answer.
	Embedder  driven.EmbeddingProvider
	Generator driven.GenerationProvider
	Index     driven.VectorIndex
	Prompts   driven.PromptStore
}

// validateIngest checks the ports the chunk stage and ingest service need.
func (s *Setup) validateIngest() error {
	var missing []error
	if s.Projects == nil {
		missing = append(missing, errors.New("project store"))
	}
	if s.Chunks == nil {
		missing = append(missing, errors.New("chunk store"))
	}
	if s.Broker == nil {
		missing = append(missing, errors.New("task broker"))
	}
	if s.Loader == nil {
		missing = append(missing, errors.New("document loader"))
	}
	if s.Splitter == nil {
		missing = append(missing, errors.New("splitter"))
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: setup is missing %w", domain.ErrNotProvisioned, errors.Join(missing...))
	}
	return nil
}

// insertBatchSize returns the configured chunk insert batch size.
func (s *Setup) insertBatchSize() int {
	if s.Settings.Storage.InsertBatchSize > 0 {
		return s.Settings.Storage.InsertBatchSize
	}
	return driven.DefaultInsertBatchSize
}

// distance returns the metric new collections are created with.
func (s *Setup) distance() domain.DistanceMetric {
	if s.Settings.VectorIndex.Distance.IsValid() {
		return s.Settings.VectorIndex.Distance
	}
	return domain.DistanceDot
}
