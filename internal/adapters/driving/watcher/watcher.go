// Package watcher ingests files as they appear in a directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driving"
	"github.com/custodia-labs/ragpipe/internal/logger"
)

// DefaultDebounce is how long a file must stay unchanged before it is ingested.
const DefaultDebounce = 500 * time.Millisecond

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a changed file is ingested.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithChunking sets the chunk size and overlap of submitted files.
func WithChunking(size, overlap int) Option {
	return func(w *Watcher) {
		w.chunkSize = size
		w.overlap = overlap
	}
}

// WithInitialScan ingests the files already in the directory on start.
func WithInitialScan() Option {
	return func(w *Watcher) { w.scan = true }
}

// WithSubmitHook is called after each successful submit.
func WithSubmitHook(fn func(path, taskID string)) Option {
	return func(w *Watcher) { w.onSubmit = fn }
}

// Watcher uploads and submits every file created or written in dir.
// Sub-directories are not watched.
type Watcher struct {
	ingest    driving.IngestService
	projectID string
	dir       string
	debounce  time.Duration
	chunkSize int
	overlap   int
	scan      bool
	onSubmit  func(path, taskID string)

	// submitted holds the size and mtime of each file as last submitted.
	// Only touched from the Run goroutine.
	submitted map[string]stamp
}

type stamp struct {
	size    int64
	modTime time.Time
}

func stampOf(info os.FileInfo) stamp {
	return stamp{size: info.Size(), modTime: info.ModTime()}
}

func (s stamp) same(o stamp) bool {
	return s.size == o.size && s.modTime.Equal(o.modTime)
}

// New creates a watcher feeding files in dir into projectID.
func New(ingest driving.IngestService, projectID, dir string, opts ...Option) *Watcher {
	w := &Watcher{
		ingest:    ingest,
		projectID: projectID,
		dir:       dir,
		debounce:  DefaultDebounce,
		submitted: make(map[string]stamp),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.dir)
	if err != nil {
		return fmt.Errorf("watch directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidInput, w.dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	logger.Info("watching %s for project %s", w.dir, w.projectID)

	if w.scan {
		w.scanExisting(ctx)
	}

	ready := make(chan string, 16)
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if ignored(event.Name) {
				continue
			}
			path := event.Name
			if t, exists := timers[path]; exists {
				t.Reset(w.debounce)
				continue
			}
			timers[path] = time.AfterFunc(w.debounce, func() {
				select {
				case ready <- path:
				case <-ctx.Done():
				}
			})

		case path := <-ready:
			delete(timers, path)
			w.submit(ctx, path)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error: %v", err)
		}
	}
}

func (w *Watcher) scanExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logger.Warn("scanning %s: %v", w.dir, err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || ignored(e.Name()) {
			continue
		}
		w.submit(ctx, filepath.Join(w.dir, e.Name()))
	}
}

// submit uploads path and queues it for chunking. Files unchanged since
// their last submit are skipped, which also covers the rename Upload makes
// when dir is the project's own upload directory. Failures are logged; the
// watcher keeps running.
func (w *Watcher) submit(ctx context.Context, path string) {
	f, err := os.Open(path)
	if err != nil {
		logger.Debug("skipping %s: %v", path, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return
	}
	if last, ok := w.submitted[path]; ok && last.same(stampOf(info)) {
		logger.Debug("skipping %s: unchanged since last submit", path)
		return
	}

	name, err := w.ingest.Upload(ctx, w.projectID, filepath.Base(path), f)
	if errors.Is(err, domain.ErrUnsupportedType) {
		logger.Debug("skipping %s: %v", path, err)
		return
	}
	if err != nil {
		logger.Warn("uploading %s: %v", path, err)
		return
	}

	taskID, err := w.ingest.Submit(ctx, domain.ChunkFileRequest{
		ProjectID: w.projectID,
		Filename:  name,
		ChunkSize: w.chunkSize,
		Overlap:   w.overlap,
	})
	if err != nil {
		logger.Warn("submitting %s: %v", path, err)
		return
	}
	if info, err := os.Stat(path); err == nil {
		w.submitted[path] = stampOf(info)
	}
	logger.Info("queued %s as task %s", name, taskID)
	if w.onSubmit != nil {
		w.onSubmit(path, taskID)
	}
}

// ignored reports whether a file is hidden or an editor temporary.
func ignored(path string) bool {
	name := filepath.Base(path)
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~") || strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".swp") || strings.HasSuffix(name, ".tmp")
}
