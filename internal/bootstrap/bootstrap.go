// Package bootstrap assembles the application from its configuration:
// it opens the configured backends, creates the AI providers and builds
// the services the driving adapters use.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/custodia-labs/ragpipe/internal/adapters/driven/ai"
	"github.com/custodia-labs/ragpipe/internal/adapters/driven/config/file"
	"github.com/custodia-labs/ragpipe/internal/adapters/driven/storage"
	"github.com/custodia-labs/ragpipe/internal/adapters/driven/vectordb"
	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/services"
	"github.com/custodia-labs/ragpipe/internal/logger"
	"github.com/custodia-labs/ragpipe/internal/normalisers"
	"github.com/custodia-labs/ragpipe/internal/postprocessors"
)

// Options selects where configuration is read from.
type Options struct {
	// ConfigPath is an explicit config file. Takes precedence over ConfigDir.
	ConfigPath string

	// ConfigDir holds config.toml (or config.yaml) and the prompts directory.
	// Empty means ~/.ragpipe.
	ConfigDir string

	// SettingsOnly skips opening backends and providers. Used by commands
	// that only read or write configuration.
	SettingsOnly bool
}

// App holds the wired services.
type App struct {
	Settings  *services.SettingsService
	Ingest    *services.IngestService
	Projects  *services.ProjectService
	Retrieval *services.RetrievalService
	Worker    *services.WorkerPool

	closers []func() error
}

// New loads configuration and wires every service.
func New(ctx context.Context, opts Options) (*App, error) {
	logger.Section("Bootstrap")
	configStore, err := openConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger.Debug("config: %s", configStore.Path())

	app := &App{
		Settings: services.NewSettingsService(configStore, ai.NewConfigValidator()),
	}
	if opts.SettingsOnly {
		return app, nil
	}

	settings, err := app.Settings.Get()
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	setup, err := app.open(ctx, *settings, filepath.Join(filepath.Dir(configStore.Path()), "prompts"))
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	pipeline := services.NewPipeline(setup)
	app.Worker = services.NewWorkerPool(setup.Broker, settings.Worker)
	app.Worker.RegisterAll(pipeline.Handlers())

	app.Ingest = services.NewIngestService(setup)
	app.Projects = services.NewProjectService(setup)
	app.Retrieval = services.NewRetrievalService(setup)
	return app, nil
}

func openConfig(opts Options) (*file.ConfigStore, error) {
	if opts.ConfigPath != "" {
		return file.NewConfigStoreFromPath(opts.ConfigPath)
	}
	return file.NewConfigStore(opts.ConfigDir)
}

// open connects the backends and providers named by settings.
func (a *App) open(ctx context.Context, settings domain.AppSettings, promptDir string) (*services.Setup, error) {
	if err := settings.CheckVectorIndex(); err != nil {
		return nil, err
	}

	backends, err := storage.Open(ctx, settings.Storage, settings.Broker)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	a.closers = append(a.closers, backends.Close)

	index, err := vectordb.Open(ctx, settings.VectorIndex, backends.SQL)
	if err != nil {
		return nil, fmt.Errorf("opening vector index: %w", err)
	}
	if c, ok := index.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	embedder, err := ai.CreateEmbeddingProvider(settings.Embedding)
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}
	if embedder == nil {
		logger.Warn("embedding provider not configured; chunks will not be embedded")
	} else {
		embedder = ai.WithEmbeddingRateLimit(embedder, settings.RateLimit)
	}

	generator, err := ai.CreateGenerationProvider(settings.Generation)
	if err != nil {
		return nil, fmt.Errorf("creating generation provider: %w", err)
	}
	if generator != nil {
		generator = ai.WithGenerationRateLimit(generator, settings.RateLimit)
	}

	prompts, err := file.NewPromptStore(promptDir)
	if err != nil {
		return nil, err
	}

	splitters := postprocessors.NewRegistry()
	postprocessors.RegisterDefaults(splitters)
	split, err := splitters.Build(settings.Chunking.Splitter, map[string]any{
		"separators": settings.Chunking.Separators,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	return &services.Setup{
		Settings:  settings,
		Projects:  backends.Projects,
		Chunks:    backends.Chunks,
		Broker:    backends.Broker,
		Loader:    normalisers.NewDefaultRegistry(),
		Splitter:  split,
		Embedder:  embedder,
		Generator: generator,
		Index:     index,
		Prompts:   prompts,
	}, nil
}

// Close releases backends in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
