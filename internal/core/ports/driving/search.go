package driving

import (
	"context"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
)

// RetrievalService answers queries against a project's vector collection.
type RetrievalService interface {
	// Search embeds query and returns at most topK chunks, most relevant first.
	// Returns domain.ErrNotFound if the project has no collection.
	Search(ctx context.Context, projectID, query string, topK int) ([]domain.RetrievedChunk, error)

	// Answer retrieves context for query and asks the generation provider.
	// Returns domain.ErrNoRelevantDocuments, without generating, when
	// retrieval finds nothing.
	Answer(ctx context.Context, projectID, query string, history []domain.ChatMessage, topK int) (*domain.Answer, error)
}
