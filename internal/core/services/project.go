package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driving"
	"github.com/custodia-labs/ragpipe/internal/logger"
)

// Ensure ProjectService implements the interface.
var _ driving.ProjectService = (*ProjectService)(nil)

// ProjectService lists and resets projects.
type ProjectService struct {
	setup *Setup
}

// NewProjectService creates a new project service.
func NewProjectService(setup *Setup) *ProjectService {
	return &ProjectService{setup: setup}
}

// List returns one page of projects and the total number of pages.
func (s *ProjectService) List(ctx context.Context, page, pageSize int) ([]domain.Project, int, error) {
	page, pageSize = domain.NormalisePage(page, pageSize)
	return s.setup.Projects.List(ctx, page, pageSize)
}

// Reset removes a project's chunks and drops its vector collection.
// The project record itself is kept.
func (s *ProjectService) Reset(ctx context.Context, projectID string) (int, error) {
	project, err := s.setup.Projects.Get(ctx, projectID)
	if err != nil {
		return 0, err
	}

	removed, err := s.setup.Chunks.DeleteByProject(ctx, project.ID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks: %w", err)
	}
	if s.setup.Index != nil {
		if err := s.setup.Index.DeleteCollection(ctx, projectID); err != nil {
			return removed, fmt.Errorf("dropping collection: %w", err)
		}
	}
	logger.Info("reset project %s: %d chunks removed", projectID, removed)
	return removed, nil
}
