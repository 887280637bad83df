package mcp

import (
	"context"
	"io"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
)

// mockRetrievalService is a mock implementation of driving.RetrievalService.
type mockRetrievalService struct {
	results   []domain.RetrievedChunk
	answer    *domain.Answer
	err       error
	lastTopK  int
	lastQuery string
}

func (m *mockRetrievalService) Search(_ context.Context, _, query string, topK int) ([]domain.RetrievedChunk, error) {
	m.lastQuery = query
	m.lastTopK = topK
	return m.results, m.err
}

func (m *mockRetrievalService) Answer(
	_ context.Context,
	_, query string,
	_ []domain.ChatMessage,
	topK int,
) (*domain.Answer, error) {
	m.lastQuery = query
	m.lastTopK = topK
	return m.answer, m.err
}

// mockIngestService is a mock implementation of driving.IngestService.
type mockIngestService struct {
	uploaded  string
	submitted domain.ChunkFileRequest
	status    *domain.IngestStatus
	err       error
}

func (m *mockIngestService) Upload(_ context.Context, _, filename string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.uploaded = string(data)
	return filename, m.err
}

func (m *mockIngestService) Submit(_ context.Context, req domain.ChunkFileRequest) (string, error) {
	m.submitted = req
	return "task-1", m.err
}

func (m *mockIngestService) Status(_ context.Context, _ string) (*domain.IngestStatus, error) {
	return m.status, m.err
}

// mockProjectService is a mock implementation of driving.ProjectService.
type mockProjectService struct {
	projects []domain.Project
	err      error
}

func (m *mockProjectService) List(_ context.Context, _, _ int) ([]domain.Project, int, error) {
	return m.projects, 1, m.err
}

func (m *mockProjectService) Reset(_ context.Context, _ string) (int, error) {
	return 0, m.err
}
