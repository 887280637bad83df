package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const uriScheme = "ragpipe://"

// maxListedProjects bounds the projects resource.
const maxListedProjects = 100

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "projects",
		Name:        "projects",
		Description: "Projects with ingested documents",
		MIMEType:    "application/json",
	}, s.handleProjectsResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "tasks/{taskId}",
		Name:        "ingest-status",
		Description: "Indexing progress of an ingested document",
		MIMEType:    "application/json",
	}, s.handleTaskResource)
}

func (s *Server) handleProjectsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Projects == nil {
		return jsonResult(req.Params.URI, "[]"), nil
	}

	projects, _, err := s.ports.Projects.List(ctx, 1, maxListedProjects)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}

	type projectInfo struct {
		ID        string `json:"id"`
		CreatedAt string `json:"created_at"`
	}
	infos := make([]projectInfo, len(projects))
	for i, p := range projects {
		infos[i] = projectInfo{ID: p.ProjectID, CreatedAt: p.CreatedAt.Format("2006-01-02T15:04:05Z07:00")}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling projects: %w", err)
	}
	return jsonResult(req.Params.URI, string(data)), nil
}

func (s *Server) handleTaskResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Ingest == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	taskID := extractTaskID(req.Params.URI)
	if taskID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	status, err := s.ports.Ingest.Status(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("getting status: %w", err)
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling status: %w", err)
	}
	return jsonResult(req.Params.URI, string(data)), nil
}

func jsonResult(uri, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     text,
		}},
	}
}

// extractTaskID extracts the task ID from a URI like ragpipe://tasks/{taskId}.
func extractTaskID(uri string) string {
	const prefix = uriScheme + "tasks/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}
	return strings.TrimPrefix(uri, prefix)
}
