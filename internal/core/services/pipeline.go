package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/logger"
)

// chunkNamespace seeds the deterministic chunk ids.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("ragpipe/chunk"))

// Handler runs one task and reports its outcome.
type Handler func(ctx context.Context, task *domain.Task) domain.TaskResult

// Pipeline implements the chunk and embed ingestion stages.
type Pipeline struct {
	setup *Setup
	now   func() time.Time
}

// NewPipeline creates the ingestion stages over setup.
func NewPipeline(setup *Setup) *Pipeline {
	return &Pipeline{
		setup: setup,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Handlers returns the task handlers keyed by task name.
func (p *Pipeline) Handlers() map[domain.TaskName]Handler {
	return map[domain.TaskName]Handler{
		domain.TaskChunkFile:   p.handleChunkFile,
		domain.TaskEmbedChunks: p.handleEmbedChunks,
	}
}

func (p *Pipeline) handleChunkFile(ctx context.Context, task *domain.Task) domain.TaskResult {
	var req domain.ChunkFileRequest
	if err := json.Unmarshal(task.Payload, &req); err != nil {
		return p.chunkFailure(fmt.Errorf("%w: decoding payload: %v", domain.ErrInvalidInput, err))
	}
	return p.ChunkFile(ctx, req)
}

func (p *Pipeline) handleEmbedChunks(ctx context.Context, task *domain.Task) domain.TaskResult {
	var req domain.EmbedChunksRequest
	if err := json.Unmarshal(task.Payload, &req); err != nil {
		return p.embedFailure(fmt.Errorf("%w: decoding payload: %v", domain.ErrInvalidInput, err))
	}
	return p.EmbedChunks(ctx, req)
}

// ChunkFile loads an uploaded file, splits it, replaces the file's chunks
// and schedules the embed stage. Failures are returned as a result with
// signal file_process_failed; nothing is retried and the embed stage is
// not scheduled.
func (p *Pipeline) ChunkFile(ctx context.Context, req domain.ChunkFileRequest) domain.TaskResult {
	if err := p.setup.validateIngest(); err != nil {
		return p.chunkFailure(err)
	}
	req = req.WithDefaults()

	if err := domain.ValidateProjectID(req.ProjectID); err != nil {
		return p.chunkFailure(err)
	}
	if req.Filename == "" || filepath.Base(req.Filename) != req.Filename {
		return p.chunkFailure(fmt.Errorf("%w: filename %q must be a plain file name", domain.ErrInvalidInput, req.Filename))
	}

	path := filepath.Join(p.setup.Settings.Files.UploadDir, req.ProjectID, req.Filename)
	if !p.setup.Loader.Supports(path) {
		return p.chunkFailure(fmt.Errorf("%w: %s", domain.ErrUnsupportedType, filepath.Ext(path)))
	}
	blocks, err := p.setup.Loader.Load(ctx, path)
	if err != nil {
		return p.chunkFailure(err)
	}

	project, err := p.setup.Projects.FindOrCreate(ctx, req.ProjectID)
	if err != nil {
		return p.chunkFailure(fmt.Errorf("resolving project: %w", err))
	}
	if project == nil || project.ID == "" {
		return p.chunkFailure(fmt.Errorf("%w: project %s has no id", domain.ErrNotFound, req.ProjectID))
	}

	splits, err := p.setup.Splitter.Split(blocks, req.ChunkSize, req.Overlap)
	if err != nil {
		return p.chunkFailure(err)
	}
	chunks := p.buildChunks(project, path, splits)
	if len(chunks) == 0 {
		return p.chunkFailure(fmt.Errorf("%w: %s produced no chunks", domain.ErrNoContent, req.Filename))
	}

	stale, err := p.replaceChunks(ctx, project.ID, path, chunks)
	if err != nil {
		return p.chunkFailure(err)
	}
	p.deleteStaleVectors(ctx, req.ProjectID, stale)

	records := make([]domain.ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = c.Record()
	}
	payload, err := json.Marshal(domain.EmbedChunksRequest{Chunks: records})
	if err != nil {
		return p.chunkFailure(fmt.Errorf("encoding embed payload: %w", err))
	}
	embedTask := &domain.Task{Name: domain.TaskEmbedChunks, Payload: payload}
	if err := p.setup.Broker.Enqueue(ctx, embedTask); err != nil {
		return p.chunkFailure(fmt.Errorf("scheduling embed stage: %w", err))
	}

	logger.Info("chunked %s/%s into %d chunks", req.ProjectID, req.Filename, len(chunks))
	return domain.TaskResult{
		Name:           domain.TaskChunkFile,
		Signal:         domain.SignalFileProcessSuccess,
		InsertedChunks: len(chunks),
		EmbedTaskID:    embedTask.ID,
		FinishedAt:     p.now(),
	}
}

// buildChunks turns splits into chunks. Blank splits are dropped and the
// remaining ordinals stay dense.
func (p *Pipeline) buildChunks(project *domain.Project, path string, splits []domain.Split) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, len(splits))
	now := p.now()
	for _, s := range splits {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		ordinal := len(chunks)
		metadata := domain.CopyMetadata(s.Metadata)
		metadata[domain.MetaProjectID] = project.ProjectID
		metadata[domain.MetaOrdinal] = ordinal
		if _, ok := metadata[domain.MetaSource].(map[string]any); !ok {
			metadata[domain.MetaSource] = map[string]any{domain.MetaFilePath: path}
		}
		chunks = append(chunks, domain.Chunk{
			ID:         ChunkID(project.ID, path, ordinal),
			ProjectRef: project.ID,
			Text:       s.Text,
			Ordinal:    ordinal,
			SourcePath: path,
			Metadata:   metadata,
			CreatedAt:  now,
		})
	}
	return chunks
}

// replaceChunks deletes the chunks previously stored for the file and
// inserts the new ones. It returns the ids that no longer exist.
func (p *Pipeline) replaceChunks(ctx context.Context, projectRef, path string, chunks []domain.Chunk) ([]string, error) {
	previous, err := p.setup.Chunks.ListBySource(ctx, projectRef, path)
	if err != nil {
		return nil, fmt.Errorf("listing previous chunks: %w", err)
	}
	if len(previous) > 0 {
		if _, err := p.setup.Chunks.DeleteBySource(ctx, projectRef, path); err != nil {
			return nil, fmt.Errorf("deleting previous chunks: %w", err)
		}
		logger.Debug("replacing %d chunks of %s", len(previous), filepath.Base(path))
	}

	inserted, err := p.setup.Chunks.InsertMany(ctx, chunks, p.setup.insertBatchSize())
	if err != nil {
		return nil, fmt.Errorf("persisting chunks (%d of %d written): %w", inserted, len(chunks), err)
	}

	current := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		current[c.ID] = struct{}{}
	}
	var stale []string
	for _, c := range previous {
		if _, ok := current[c.ID]; !ok {
			stale = append(stale, c.ID)
		}
	}
	return stale, nil
}

// deleteStaleVectors removes vectors of chunks that a re-ingest dropped.
// Failures are logged only; the records are unreachable once their chunks are gone.
func (p *Pipeline) deleteStaleVectors(ctx context.Context, collection string, ids []string) {
	if p.setup.Index == nil || len(ids) == 0 {
		return
	}
	for _, id := range ids {
		err := p.setup.Index.DeleteRecord(ctx, collection, id)
		if errors.Is(err, domain.ErrNotFound) {
			return
		}
		if err != nil {
			logger.Warn("deleting stale vector %s: %v", id, err)
		}
	}
}

// EmbedChunks embeds each chunk and upserts it into its project's
// collection, creating the collection on first use. One chunk failing
// does not stop the others.
func (p *Pipeline) EmbedChunks(ctx context.Context, req domain.EmbedChunksRequest) domain.TaskResult {
	if p.setup.Embedder == nil {
		return p.embedFailure(domain.ErrEmbeddingUnavailable)
	}
	if p.setup.Index == nil {
		return p.embedFailure(domain.ErrVectorIndexUnavailable)
	}

	items := make([]domain.ItemResult, 0, len(req.Chunks))
	ensured := make(map[string]bool)
	for _, record := range req.Chunks {
		item := domain.ItemResult{ChunkID: record.ID, Ordinal: record.Ordinal}
		if err := ctx.Err(); err != nil {
			item.Status = domain.ItemFailed
			item.Error = err.Error()
			items = append(items, item)
			continue
		}
		if strings.TrimSpace(record.Text) == "" {
			item.Status = domain.ItemSkipped
			items = append(items, item)
			continue
		}
		if err := p.embedOne(ctx, record, ensured); err != nil {
			logger.Warn("embedding chunk %s: %v", record.ID, err)
			item.Status = domain.ItemFailed
			item.Error = err.Error()
		} else {
			item.Status = domain.ItemEmbedded
		}
		items = append(items, item)
	}

	result := domain.TaskResult{
		Name:       domain.TaskEmbedChunks,
		Signal:     domain.SignalChunkEmbeddingSuccess,
		Items:      items,
		FinishedAt: p.now(),
	}
	embedded, failed := result.Count(domain.ItemEmbedded), result.Count(domain.ItemFailed)
	switch {
	case failed > 0 && embedded == 0:
		result.Signal = domain.SignalChunkEmbeddingFailed
		result.FailedStage = domain.StageEmbed
		result.Error = fmt.Sprintf("%s: all %d chunks failed", domain.ErrStageFailed, failed)
	case failed > 0:
		result.Partial = true
	}
	logger.Info("embedded %d chunks (%d skipped, %d failed)", embedded, result.Count(domain.ItemSkipped), failed)
	return result
}

func (p *Pipeline) embedOne(ctx context.Context, record domain.ChunkRecord, ensured map[string]bool) error {
	collection, _ := record.Metadata[domain.MetaProjectID].(string)
	if collection == "" {
		return fmt.Errorf("%w: chunk has no %s metadata", domain.ErrInvalidInput, domain.MetaProjectID)
	}

	vector, err := p.setup.Embedder.Embed(ctx, record.Text, domain.PurposeDocument)
	if err != nil {
		return err
	}
	if len(vector) == 0 {
		return domain.ErrEmbeddingFailed
	}

	if !ensured[collection] {
		dimension := p.setup.Embedder.EmbeddingSize()
		if dimension <= 0 {
			dimension = len(vector)
		}
		if err := p.ensureCollection(ctx, collection, dimension); err != nil {
			return err
		}
		ensured[collection] = true
	}

	payload := domain.CopyMetadata(record.Metadata)
	payload[domain.PayloadText] = record.Text
	_, err = p.setup.Index.Upsert(ctx, collection, domain.VectorRecord{
		ID:      record.ID,
		Vector:  vector,
		Payload: payload,
	})
	return err
}

// ensureCollection creates the collection if absent. Create is idempotent,
// so concurrent workers racing on a new project all succeed.
func (p *Pipeline) ensureCollection(ctx context.Context, name string, dimension int) error {
	exists, err := p.setup.Index.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	logger.Debug("creating collection %s (%d dims)", name, dimension)
	return p.setup.Index.CreateCollection(ctx, name, dimension, p.setup.distance())
}

func (p *Pipeline) chunkFailure(err error) domain.TaskResult {
	logger.Error("chunk stage failed: %v", err)
	return domain.TaskResult{
		Name:        domain.TaskChunkFile,
		Signal:      domain.SignalFileProcessFailed,
		FailedStage: domain.StageChunk,
		Error:       err.Error(),
		FinishedAt:  p.now(),
	}
}

func (p *Pipeline) embedFailure(err error) domain.TaskResult {
	logger.Error("embed stage failed: %v", err)
	return domain.TaskResult{
		Name:        domain.TaskEmbedChunks,
		Signal:      domain.SignalChunkEmbeddingFailed,
		FailedStage: domain.StageEmbed,
		Error:       err.Error(),
		FinishedAt:  p.now(),
	}
}

// ChunkID derives the stable id of the chunk at ordinal in a project's file.
// Re-ingesting a file reuses the ids, so vector upserts overwrite in place.
func ChunkID(projectRef, sourcePath string, ordinal int) string {
	name := projectRef + "\x00" + sourcePath + "\x00" + strconv.Itoa(ordinal)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}
