package mcp

import (
	"github.com/custodia-labs/ragpipe/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
type Ports struct {
	// Retrieval provides search and answer capabilities.
	Retrieval driving.RetrievalService

	// Ingest accepts documents. Optional; without it the ingest tools are not registered.
	Ingest driving.IngestService

	// Projects lists projects. Optional.
	Projects driving.ProjectService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Retrieval == nil {
		return ErrMissingRetrievalService
	}
	return nil
}
