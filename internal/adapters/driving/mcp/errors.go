// Package mcp provides an MCP (Model Context Protocol) server adapter for ragpipe.
// It lets AI assistants search and query ingested projects.
package mcp

import "errors"

// ErrMissingRetrievalService is returned when the retrieval service is not provided.
var ErrMissingRetrievalService = errors.New("mcp: retrieval service is required")
