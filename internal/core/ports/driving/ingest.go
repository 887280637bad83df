package driving

import (
	"context"
	"io"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
)

// IngestService accepts files for ingestion and reports their progress.
type IngestService interface {
	// Upload validates a file's type and size and stores it under the
	// project's upload directory. Returns the stored filename.
	Upload(ctx context.Context, projectID, filename string, r io.Reader) (string, error)

	// Submit validates the request and enqueues the chunk stage.
	// Returns the chunk task ID.
	Submit(ctx context.Context, req domain.ChunkFileRequest) (string, error)

	// Status derives the ingestion state of a submitted file from its tasks.
	Status(ctx context.Context, taskID string) (*domain.IngestStatus, error)
}

// ProjectService manages projects.
type ProjectService interface {
	// List returns one page of projects and the total page count.
	List(ctx context.Context, page, pageSize int) ([]domain.Project, int, error)

	// Reset deletes all chunks and the vector collection of a project.
	// Returns the number of chunks removed.
	Reset(ctx context.Context, projectID string) (int, error)
}
