package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driving"
	"github.com/custodia-labs/ragpipe/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// IngestService accepts uploads and submits them to the chunk stage.
type IngestService struct {
	setup *Setup
}

// NewIngestService creates a new ingest service.
func NewIngestService(setup *Setup) *IngestService {
	return &IngestService{setup: setup}
}

// Upload checks the file's extension and size and writes it to
// <upload_dir>/<project_id>/<filename>. Any directory part of filename is
// discarded.
func (s *IngestService) Upload(ctx context.Context, projectID, filename string, r io.Reader) (string, error) {
	if err := domain.ValidateProjectID(projectID); err != nil {
		return "", err
	}
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." {
		return "", fmt.Errorf("%w: empty filename", domain.ErrInvalidInput)
	}
	if err := s.checkExtension(name); err != nil {
		return "", err
	}

	dir := filepath.Join(s.setup.Settings.Files.UploadDir, projectID)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("creating upload directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("creating upload file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	limit := s.maxBytes()
	written, err := io.Copy(tmp, io.LimitReader(&ctxReader{ctx: ctx, r: r}, limit+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("writing upload: %w", err)
	}
	if written > limit {
		return "", fmt.Errorf("%w: %s exceeds %d MB", domain.ErrFileTooLarge, name, s.setup.Settings.Files.MaxSizeMB)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return "", fmt.Errorf("storing upload: %w", err)
	}
	logger.Debug("uploaded %s/%s (%d bytes)", projectID, name, written)
	return name, nil
}

// Submit validates req and enqueues the chunk stage for an uploaded file.
func (s *IngestService) Submit(ctx context.Context, req domain.ChunkFileRequest) (string, error) {
	if err := s.setup.validateIngest(); err != nil {
		return "", err
	}
	if err := domain.ValidateProjectID(req.ProjectID); err != nil {
		return "", err
	}
	if req.Filename == "" || filepath.Base(req.Filename) != req.Filename {
		return "", fmt.Errorf("%w: filename %q must be a plain file name", domain.ErrInvalidInput, req.Filename)
	}
	if err := s.checkExtension(req.Filename); err != nil {
		return "", err
	}
	req = req.WithDefaults()
	if req.Overlap >= req.ChunkSize {
		return "", fmt.Errorf("%w: overlap %d must be less than chunk size %d",
			domain.ErrInvalidInput, req.Overlap, req.ChunkSize)
	}

	path := filepath.Join(s.setup.Settings.Files.UploadDir, req.ProjectID, req.Filename)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s has not been uploaded to %s", domain.ErrNotFound, req.Filename, req.ProjectID)
		}
		return "", err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding chunk payload: %w", err)
	}
	task := &domain.Task{Name: domain.TaskChunkFile, Payload: payload}
	if err := s.setup.Broker.Enqueue(ctx, task); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrBrokerUnavailable, err)
	}
	logger.Info("submitted %s/%s as task %s", req.ProjectID, req.Filename, task.ID)
	return task.ID, nil
}

// Status derives the ingestion state of a file from its chunk task and,
// once scheduled, its embed task.
func (s *IngestService) Status(ctx context.Context, taskID string) (*domain.IngestStatus, error) {
	info, err := s.setup.Broker.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if info.Task.Name != domain.TaskChunkFile {
		return nil, fmt.Errorf("%w: task %s is not a chunk task", domain.ErrInvalidInput, taskID)
	}

	status := &domain.IngestStatus{TaskID: taskID}
	switch {
	case info.State == domain.TaskPending:
		status.State = domain.IngestUploaded
		return status, nil
	case info.State == domain.TaskActive || info.Result == nil:
		status.State = domain.IngestChunking
		return status, nil
	case info.Result.Failed():
		status.State = domain.IngestFailed
		status.FailedStage = stageOr(info.Result.FailedStage, domain.StageChunk)
		status.Reason = info.Result.Error
		return status, nil
	}

	status.Chunks = info.Result.InsertedChunks
	status.EmbedTaskID = info.Result.EmbedTaskID
	embed, err := s.setup.Broker.Get(ctx, info.Result.EmbedTaskID)
	if errors.Is(err, domain.ErrNotFound) {
		status.State = domain.IngestChunked
		return status, nil
	}
	if err != nil {
		return nil, err
	}

	if embed.State != domain.TaskDone || embed.Result == nil {
		status.State = domain.IngestEmbeddingQueued
		return status, nil
	}
	status.Embedded = embed.Result.Count(domain.ItemEmbedded)
	status.Failed = embed.Result.Count(domain.ItemFailed)
	if embed.Result.Failed() {
		status.State = domain.IngestFailed
		status.FailedStage = stageOr(embed.Result.FailedStage, domain.StageEmbed)
		status.Reason = embed.Result.Error
		return status, nil
	}
	status.State = domain.IngestReady
	status.Partial = embed.Result.Partial
	return status, nil
}

func (s *IngestService) checkExtension(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	allowed := s.setup.Settings.Files.AllowedExtensions
	if len(allowed) == 0 {
		allowed = domain.DefaultAppSettings().Files.AllowedExtensions
	}
	if ext == "" || !slices.Contains(allowed, ext) {
		return fmt.Errorf("%w: %q (allowed: %s)", domain.ErrUnsupportedType, ext, strings.Join(allowed, ", "))
	}
	return nil
}

func (s *IngestService) maxBytes() int64 {
	mb := s.setup.Settings.Files.MaxSizeMB
	if mb <= 0 {
		mb = domain.DefaultAppSettings().Files.MaxSizeMB
	}
	return int64(mb) << 20
}

func stageOr(stage, fallback domain.Stage) domain.Stage {
	if stage == "" {
		return fallback
	}
	return stage
}

// ctxReader stops a copy once ctx is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
