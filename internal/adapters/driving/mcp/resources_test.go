package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
)

func readRequest(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{Params: &mcp.ReadResourceParams{URI: uri}}
}

func TestServer_handleProjectsResource(t *testing.T) {
	ctx := context.Background()

	t.Run("no project service returns empty list", func(t *testing.T) {
		server, err := NewServer(&Ports{Retrieval: &mockRetrievalService{}})
		require.NoError(t, err)

		result, err := server.handleProjectsResource(ctx, readRequest("ragpipe://projects"))

		require.NoError(t, err)
		assert.Equal(t, "[]", result.Contents[0].Text)
	})

	t.Run("lists projects", func(t *testing.T) {
		created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		projects := &mockProjectService{projects: []domain.Project{{ID: "uuid-1", ProjectID: "zoo", CreatedAt: created}}}
		server, err := NewServer(&Ports{Retrieval: &mockRetrievalService{}, Projects: projects})
		require.NoError(t, err)

		result, err := server.handleProjectsResource(ctx, readRequest("ragpipe://projects"))

		require.NoError(t, err)
		var infos []map[string]string
		require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &infos))
		require.Len(t, infos, 1)
		assert.Equal(t, "zoo", infos[0]["id"])
		assert.Equal(t, "2024-05-01T12:00:00Z", infos[0]["created_at"])
	})
}

func TestServer_handleTaskResource(t *testing.T) {
	ctx := context.Background()
	ingest := &mockIngestService{status: &domain.IngestStatus{TaskID: "t1", State: domain.IngestChunking}}
	server, err := NewServer(&Ports{Retrieval: &mockRetrievalService{}, Ingest: ingest})
	require.NoError(t, err)

	result, err := server.handleTaskResource(ctx, readRequest("ragpipe://tasks/t1"))

	require.NoError(t, err)
	assert.Contains(t, result.Contents[0].Text, `"state": "chunking"`)

	_, err = server.handleTaskResource(ctx, readRequest("ragpipe://tasks/"))
	assert.Error(t, err)
}

func TestExtractTaskID(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"ragpipe://tasks/01HXYZ", "01HXYZ"},
		{"ragpipe://tasks/", ""},
		{"ragpipe://projects", ""},
		{"other://tasks/1", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractTaskID(tt.uri), tt.uri)
	}
}
