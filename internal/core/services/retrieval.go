package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driving"
	"github.com/custodia-labs/ragpipe/internal/logger"
)

// Ensure RetrievalService implements the interface.
var _ driving.RetrievalService = (*RetrievalService)(nil)

const contextLinePrefix = "### Content: "

// RetrievalService searches a project's collection and answers queries
// from the retrieved chunks.
type RetrievalService struct {
	setup *Setup
}

// NewRetrievalService creates a new retrieval service.
func NewRetrievalService(setup *Setup) *RetrievalService {
	return &RetrievalService{setup: setup}
}

// Search embeds query and returns at most topK chunks, most relevant first.
// A topK of zero or less uses domain.DefaultTopK.
func (s *RetrievalService) Search(ctx context.Context, projectID, query string, topK int) ([]domain.RetrievedChunk, error) {
	if s.setup.Embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	if s.setup.Index == nil {
		return nil, domain.ErrVectorIndexUnavailable
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	if topK <= 0 {
		topK = domain.DefaultTopK
	}

	exists, err := s.setup.Index.CollectionExists(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: project %s has no collection", domain.ErrNotFound, projectID)
	}

	vector, err := s.setup.Embedder.Embed(ctx, query, domain.PurposeQuery)
	if err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, domain.ErrEmbeddingFailed
	}

	hits, err := s.setup.Index.Search(ctx, projectID, vector, topK)
	if err != nil {
		return nil, err
	}

	results := make([]domain.RetrievedChunk, 0, len(hits))
	for _, hit := range hits {
		text, _ := hit.Payload[domain.PayloadText].(string)
		metadata := domain.CopyMetadata(hit.Payload)
		delete(metadata, domain.PayloadText)
		results = append(results, domain.RetrievedChunk{
			ID:         hit.ID,
			Score:      hit.Score,
			Text:       text,
			SourcePath: domain.SourceFilePath(hit.Payload),
			Metadata:   metadata,
		})
	}
	logger.Debug("search %s: %d hits for %q", projectID, len(results), query)
	return results, nil
}

// Answer retrieves context for query and generates an answer with the
// conversation history. Nothing is generated when retrieval comes back empty.
func (s *RetrievalService) Answer(
	ctx context.Context,
	projectID, query string,
	history []domain.ChatMessage,
	topK int,
) (*domain.Answer, error) {
	if s.setup.Generator == nil {
		return nil, domain.ErrLLMUnavailable
	}

	sources, err := s.Search(ctx, projectID, query, topK)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNoRelevantDocuments
	}
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, domain.ErrNoRelevantDocuments
	}

	prompt := s.buildPrompt(query, sources)
	turns := history
	if system := s.prompt(driven.PromptSystem, ""); strings.TrimSpace(system) != "" {
		turns = make([]domain.ChatMessage, 0, len(history)+1)
		turns = append(turns, domain.ChatMessage{Role: domain.RoleSystem, Content: system})
		turns = append(turns, history...)
	}

	gen := s.setup.Settings.Generation
	text, err := s.setup.Generator.Generate(ctx, prompt, turns, driven.GenerateOptions{
		MaxTokens:   gen.MaxOutputTokens,
		Temperature: gen.Temperature,
	})
	if err != nil {
		return nil, err
	}

	return &domain.Answer{
		Text:    text,
		Sources: sources,
		Prompt:  prompt,
	}, nil
}

// buildPrompt fills the answer template with the retrieved context.
func (s *RetrievalService) buildPrompt(query string, sources []domain.RetrievedChunk) string {
	lines := make([]string, len(sources))
	for i, src := range sources {
		lines[i] = contextLinePrefix + src.Text
	}
	template := s.prompt(driven.PromptAnswer, driven.DefaultAnswerPrompt)
	return strings.NewReplacer(
		driven.PlaceholderContext, strings.Join(lines, "\n"),
		driven.PlaceholderQuery, query,
	).Replace(template)
}

func (s *RetrievalService) prompt(name, fallback string) string {
	if s.setup.Prompts == nil {
		return fallback
	}
	text, err := s.setup.Prompts.Load(name)
	if err != nil {
		logger.Debug("prompt %s unavailable, using default: %v", name, err)
		return fallback
	}
	if name == driven.PromptAnswer && strings.TrimSpace(text) == "" {
		return fallback
	}
	return text
}
