package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	content := `
[files]
upload_dir = "` + filepath.ToSlash(filepath.Join(dir, "uploads")) + `"

[storage]
driver = "memory"

[broker]
driver = "memory"

[vector_index]
provider = "memory"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestNew_WiresMemoryBackends(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	app, err := New(ctx, Options{ConfigPath: writeConfig(t, dir)})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, app.Close()) })

	require.NotNil(t, app.Settings)
	require.NotNil(t, app.Ingest)
	require.NotNil(t, app.Projects)
	require.NotNil(t, app.Retrieval)
	require.NotNil(t, app.Worker)
	assert.Contains(t, app.Worker.Queues(), domain.QueueFileProcessing)
	assert.Equal(t, filepath.Join(dir, "config.toml"), app.Settings.ConfigPath())

	name, err := app.Ingest.Upload(ctx, "zoo", "notes.md", strings.NewReader("# Cats\n\nCats sleep a lot."))
	require.NoError(t, err)
	taskID, err := app.Ingest.Submit(ctx, domain.ChunkFileRequest{ProjectID: "zoo", Filename: name})
	require.NoError(t, err)

	n, err := app.Worker.DrainQueue(ctx, domain.QueueFileProcessing)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)

	status, err := app.Ingest.Status(ctx, taskID)
	require.NoError(t, err)
	assert.NotEqual(t, domain.IngestUploaded, status.State)

	projects, pages, err := app.Projects.List(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, pages)
	require.Len(t, projects, 1)
	assert.Equal(t, "zoo", projects[0].ProjectID)
}

func TestNew_SettingsOnly(t *testing.T) {
	dir := t.TempDir()

	app, err := New(context.Background(), Options{ConfigPath: writeConfig(t, dir), SettingsOnly: true})
	require.NoError(t, err)

	assert.NotNil(t, app.Settings)
	assert.Nil(t, app.Ingest)
	assert.Nil(t, app.Worker)
	assert.NoError(t, app.Close())
}

func TestNew_ConfigDir(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir)

	app, err := New(context.Background(), Options{ConfigDir: dir, SettingsOnly: true})
	require.NoError(t, err)

	settings, err := app.Settings.Get()
	require.NoError(t, err)
	assert.Equal(t, domain.StorageMemory, settings.Storage.Driver)
}

func TestNew_InvalidBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := "[storage]\ndriver = \"memory\"\n\n[broker]\ndriver = \"memory\"\n\n[vector_index]\nprovider = \"pgvector\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	_, err := New(context.Background(), Options{ConfigPath: path})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNew_RejectsMemoryIndexWithDurableStorage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := "[storage]\ndriver = \"sqlite\"\ndsn = \"" + filepath.ToSlash(filepath.Join(dir, "ragpipe.db")) + "\"\n\n" +
		"[broker]\ndriver = \"sqlite\"\n\n[vector_index]\nprovider = \"memory\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	_, err := New(context.Background(), Options{ConfigPath: path})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "vector_index.provider")
}

func TestNew_UnknownSplitter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := "[storage]\ndriver = \"memory\"\n\n[broker]\ndriver = \"memory\"\n\n[chunking]\nsplitter = \"sentences\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	_, err := New(context.Background(), Options{ConfigPath: path})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "unknown splitter: sentences")
}
