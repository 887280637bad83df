package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
)

// Ensure ProjectStore implements the interface.
var _ driven.ProjectStore = (*ProjectStore)(nil)

// ProjectStore is an in-memory implementation of driven.ProjectStore.
type ProjectStore struct {
	mu       sync.RWMutex
	projects map[string]domain.Project
}

// NewProjectStore creates a new in-memory project store.
func NewProjectStore() *ProjectStore {
	return &ProjectStore{
		projects: make(map[string]domain.Project),
	}
}

// FindOrCreate returns the project for projectID, creating it if absent.
func (s *ProjectStore) FindOrCreate(_ context.Context, projectID string) (*domain.Project, error) {
	if err := domain.ValidateProjectID(projectID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.projects[projectID]; ok {
		return &p, nil
	}

	now := time.Now().UTC()
	p := domain.Project{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.projects[projectID] = p
	return &p, nil
}

// Get retrieves a project by human id.
func (s *ProjectStore) Get(_ context.Context, projectID string) (*domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

// List returns one page of projects ordered by creation time.
func (s *ProjectStore) List(_ context.Context, page, pageSize int) ([]domain.Project, int, error) {
	page, pageSize = domain.NormalisePage(page, pageSize)

	s.mu.RLock()
	all := make([]domain.Project, 0, len(s.projects))
	for _, p := range s.projects {
		all = append(all, p)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ProjectID < all[j].ProjectID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	total := domain.TotalPages(len(all), pageSize)
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []domain.Project{}, total, nil
	}
	end := min(start+pageSize, len(all))
	return all[start:end], total, nil
}
