package mcp

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
)

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Project string `json:"project" jsonschema:"the project to search"`
	Query   string `json:"query" jsonschema:"the text to find similar chunks for"`
	TopK    int    `json:"top_k,omitempty" jsonschema:"maximum number of results to return (default 5)"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []ChunkOutput `json:"results"`
	Count   int           `json:"count"`
}

// ChunkOutput represents a single retrieved chunk.
type ChunkOutput struct {
	ID     string  `json:"id"`
	Score  float64 `json:"score"`
	Source string  `json:"source,omitempty"`
	Text   string  `json:"text"`
}

// AnswerInput is the input schema for the answer tool.
type AnswerInput struct {
	Project string               `json:"project" jsonschema:"the project to answer from"`
	Query   string               `json:"query" jsonschema:"the question to answer"`
	History []domain.ChatMessage `json:"history,omitempty" jsonschema:"earlier conversation turns, oldest first"`
	TopK    int                  `json:"top_k,omitempty" jsonschema:"number of chunks used as context (default 5)"`
}

// AnswerOutput is the output schema for the answer tool.
type AnswerOutput struct {
	Answer  string        `json:"answer"`
	Sources []ChunkOutput `json:"sources"`
}

// IngestInput is the input schema for the ingest tool.
type IngestInput struct {
	Project   string `json:"project" jsonschema:"the project to add the document to"`
	Filename  string `json:"filename" jsonschema:"file name including extension, such as notes.md"`
	Content   string `json:"content" jsonschema:"the document text"`
	ChunkSize int    `json:"chunk_size,omitempty" jsonschema:"maximum chunk length in characters (default 100)"`
	Overlap   int    `json:"overlap,omitempty" jsonschema:"characters shared by consecutive chunks (default 20)"`
}

// IngestOutput is the output schema for the ingest tool.
type IngestOutput struct {
	TaskID   string `json:"task_id"`
	Filename string `json:"filename"`
}

// StatusInput is the input schema for the ingest_status tool.
type StatusInput struct {
	TaskID string `json:"task_id" jsonschema:"the task id returned by ingest"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Find the chunks of a project most similar to a query",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "answer",
		Description: "Answer a question from a project's documents",
	}, s.handleAnswer)

	if s.ports.Ingest == nil {
		return
	}
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ingest",
		Description: "Add a text document to a project and queue it for indexing",
	}, s.handleIngest)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ingest_status",
		Description: "Report the indexing progress of an ingested document",
	}, s.handleStatus)
}

func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	results, err := s.ports.Retrieval.Search(ctx, input.Project, input.Query, input.TopK)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	return nil, SearchOutput{
		Results: chunkOutputs(results),
		Count:   len(results),
	}, nil
}

func (s *Server) handleAnswer(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AnswerInput,
) (*mcp.CallToolResult, AnswerOutput, error) {
	answer, err := s.ports.Retrieval.Answer(ctx, input.Project, input.Query, input.History, input.TopK)
	if err != nil {
		return nil, AnswerOutput{}, err
	}

	return nil, AnswerOutput{
		Answer:  answer.Text,
		Sources: chunkOutputs(answer.Sources),
	}, nil
}

func (s *Server) handleIngest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestInput,
) (*mcp.CallToolResult, IngestOutput, error) {
	name, err := s.ports.Ingest.Upload(ctx, input.Project, input.Filename, strings.NewReader(input.Content))
	if err != nil {
		return nil, IngestOutput{}, err
	}

	taskID, err := s.ports.Ingest.Submit(ctx, domain.ChunkFileRequest{
		ProjectID: input.Project,
		Filename:  name,
		ChunkSize: input.ChunkSize,
		Overlap:   input.Overlap,
	})
	if err != nil {
		return nil, IngestOutput{}, err
	}

	return nil, IngestOutput{TaskID: taskID, Filename: name}, nil
}

func (s *Server) handleStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input StatusInput,
) (*mcp.CallToolResult, domain.IngestStatus, error) {
	status, err := s.ports.Ingest.Status(ctx, input.TaskID)
	if err != nil {
		return nil, domain.IngestStatus{}, err
	}
	return nil, *status, nil
}

func chunkOutputs(chunks []domain.RetrievedChunk) []ChunkOutput {
	out := make([]ChunkOutput, len(chunks))
	for i, c := range chunks {
		out[i] = ChunkOutput{
			ID:     c.ID,
			Score:  c.Score,
			Source: c.SourcePath,
			Text:   c.Text,
		}
	}
	return out
}
