package driven

import (
	"context"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
)

// ProjectStore persists projects. Implementations enforce uniqueness of
// ProjectID at the storage layer.
type ProjectStore interface {
	// FindOrCreate returns the project with the given human id, creating it
	// on first reference. Concurrent callers for the same id all receive the
	// same surrogate ID: a duplicate-key error on insert is resolved by
	// re-reading, never surfaced.
	FindOrCreate(ctx context.Context, projectID string) (*domain.Project, error)

	// Get retrieves a project by human id. Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, projectID string) (*domain.Project, error)

	// List returns one page of projects ordered by creation time and the
	// total number of pages. Pages are 1-based.
	List(ctx context.Context, page, pageSize int) ([]domain.Project, int, error)
}
