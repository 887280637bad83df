package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragpipe/internal/adapters/driven/storage/memory"
	vectormem "github.com/custodia-labs/ragpipe/internal/adapters/driven/vectordb/memory"
	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
	"github.com/custodia-labs/ragpipe/internal/normalisers"
	"github.com/custodia-labs/ragpipe/internal/postprocessors/splitter"
)

// keywords are the dimensions of keywordEmbedder vectors.
var keywords = []string{"cat", "dog", "fish", "bird"}

// keywordEmbedder maps text to keyword counts plus a constant dimension.
type keywordEmbedder struct {
	mu      sync.Mutex
	failOn  string
	empty   bool
	size    int
	calls   int
	queries int
}

func (e *keywordEmbedder) SetEmbeddingModel(string, int) {}

func (e *keywordEmbedder) Embed(_ context.Context, text string, purpose domain.EmbedPurpose) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	if purpose == domain.PurposeQuery {
		e.queries++
	}
	e.mu.Unlock()

	if e.failOn != "" && strings.Contains(text, e.failOn) {
		return nil, fmt.Errorf("%w: refused %q", domain.ErrTransport, e.failOn)
	}
	if e.empty {
		return nil, nil
	}
	lower := strings.ToLower(text)
	vector := make([]float32, len(keywords)+1)
	for i, kw := range keywords {
		vector[i] = float32(strings.Count(lower, kw))
	}
	vector[len(keywords)] = 1
	return vector, nil
}

func (e *keywordEmbedder) EmbeddingSize() int {
	if e.size != 0 {
		return e.size
	}
	return len(keywords) + 1
}

func (e *keywordEmbedder) ModelName() string            { return "keywords" }
func (e *keywordEmbedder) Ping(_ context.Context) error { return nil }
func (e *keywordEmbedder) Close() error                 { return nil }

func (e *keywordEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *keywordEmbedder) queryCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queries
}

// recordingGenerator returns a fixed answer and records its inputs.
type recordingGenerator struct {
	mu      sync.Mutex
	calls   int
	prompt  string
	history []domain.ChatMessage
	opts    driven.GenerateOptions
	err     error
}

func (g *recordingGenerator) SetGenerationModel(string) {}

func (g *recordingGenerator) Generate(_ context.Context, prompt string, history []domain.ChatMessage, opts driven.GenerateOptions) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.prompt = prompt
	g.history = history
	g.opts = opts
	if g.err != nil {
		return "", g.err
	}
	return "generated answer", nil
}

func (g *recordingGenerator) ModelName() string            { return "recording" }
func (g *recordingGenerator) Ping(_ context.Context) error { return nil }
func (g *recordingGenerator) Close() error                 { return nil }

// mapPrompts serves prompts from a map.
type mapPrompts map[string]string

func (m mapPrompts) Load(name string) (string, error) {
	text, ok := m[name]
	if !ok {
		return "", domain.ErrNotFound
	}
	return text, nil
}

func (m mapPrompts) Reload() {}

type testEnv struct {
	setup     *Setup
	projects  *memory.ProjectStore
	chunks    *memory.ChunkStore
	broker    *memory.TaskBroker
	index     *vectormem.Index
	embedder  *keywordEmbedder
	generator *recordingGenerator
	pipeline  *Pipeline
	pool      *WorkerPool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	settings := domain.DefaultAppSettings()
	settings.Files.UploadDir = t.TempDir()
	settings.Worker.TaskTimeLimit = 5 * time.Second
	settings.Worker.PollInterval = 5 * time.Millisecond

	env := &testEnv{
		projects:  memory.NewProjectStore(),
		chunks:    memory.NewChunkStore(),
		broker:    memory.NewTaskBroker(),
		index:     vectormem.New(),
		embedder:  &keywordEmbedder{},
		generator: &recordingGenerator{},
	}
	env.setup = &Setup{
		Settings:  settings,
		Projects:  env.projects,
		Chunks:    env.chunks,
		Broker:    env.broker,
		Loader:    normalisers.NewDefaultRegistry(),
		Splitter:  splitter.New(),
		Embedder:  env.embedder,
		Generator: env.generator,
		Index:     env.index,
	}
	env.pipeline = NewPipeline(env.setup)
	env.pool = NewWorkerPool(env.broker, settings.Worker, WithBackoff(time.Millisecond))
	env.pool.RegisterAll(env.pipeline.Handlers())
	return env
}

// writeUpload places a file where the chunk stage expects it.
func (e *testEnv) writeUpload(t *testing.T, projectID, name, content string) string {
	t.Helper()
	dir := filepath.Join(e.setup.Settings.Files.UploadDir, projectID)
	require.NoError(t, os.MkdirAll(dir, 0750))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// ingest uploads content and runs both stages to completion.
func (e *testEnv) ingest(t *testing.T, projectID, name, content string) {
	t.Helper()
	e.writeUpload(t, projectID, name, content)
	result := e.pipeline.ChunkFile(context.Background(), domain.ChunkFileRequest{
		ProjectID: projectID,
		Filename:  name,
		ChunkSize: 60,
		Overlap:   10,
	})
	require.False(t, result.Failed(), result.Error)
	embed := e.pipeline.EmbedChunks(context.Background(), e.embedRequest(t, result.EmbedTaskID))
	require.False(t, embed.Failed(), embed.Error)
}

// embedRequest decodes the payload of an enqueued embed task.
func (e *testEnv) embedRequest(t *testing.T, taskID string) domain.EmbedChunksRequest {
	t.Helper()
	info, err := e.broker.Get(context.Background(), taskID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskEmbedChunks, info.Task.Name)
	var req domain.EmbedChunksRequest
	require.NoError(t, json.Unmarshal(info.Task.Payload, &req))
	return req
}

const animalText = "The cat sat on the mat and watched the bird outside.\n\n" +
	"A dog barked at the mail carrier every single morning.\n\n" +
	"The fish swam in circles while the dog slept by the bowl.\n\n" +
	"Nobody remembered to feed the bird that week."
