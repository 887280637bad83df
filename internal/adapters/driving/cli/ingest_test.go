package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestIngestCmd_RequiresProjectAndFile(t *testing.T) {
	setupTestServices(t)

	_, err := execute(t, "", "ingest", "zoo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 2 arg(s)")
}

func TestIngestCmd_UploadsAndSubmits(t *testing.T) {
	ts := setupTestServices(t)
	cats := writeFile(t, "cats.md", "# Cats")
	dogs := writeFile(t, "dogs.txt", "Dogs")

	out, err := execute(t, "", "ingest", "--chunk-size", "200", "--overlap", "40", "zoo", cats, dogs)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"zoo/cats.md": "# Cats", "zoo/dogs.txt": "Dogs"}, ts.ingest.uploads)
	assert.Equal(t, []domain.ChunkFileRequest{
		{ProjectID: "zoo", Filename: "cats.md", ChunkSize: 200, Overlap: 40},
		{ProjectID: "zoo", Filename: "dogs.txt", ChunkSize: 200, Overlap: 40},
	}, ts.ingest.requests)
	assert.Contains(t, out, "Queued cats.md as task task-cats.md")
	assert.Contains(t, out, "Queued dogs.txt as task task-dogs.txt")
	assert.Empty(t, ts.worker.drained)
}

func TestIngestCmd_DefaultChunking(t *testing.T) {
	ts := setupTestServices(t)

	_, err := execute(t, "", "ingest", "zoo", writeFile(t, "cats.md", "# Cats"))
	require.NoError(t, err)

	require.Len(t, ts.ingest.requests, 1)
	assert.Equal(t, domain.DefaultChunkSize, ts.ingest.requests[0].ChunkSize)
	assert.Equal(t, domain.DefaultChunkOverlap, ts.ingest.requests[0].Overlap)
}

func TestIngestCmd_WaitDrainsQueue(t *testing.T) {
	ts := setupTestServices(t)
	ts.ingest.status["task-cats.md"] = &domain.IngestStatus{
		TaskID: "task-cats.md", State: domain.IngestReady, Chunks: 3, Embedded: 3,
	}

	out, err := execute(t, "", "ingest", "--wait", "zoo", writeFile(t, "cats.md", "# Cats"))
	require.NoError(t, err)

	assert.Equal(t, []string{domain.QueueFileProcessing}, ts.worker.drained)
	assert.Contains(t, out, "Processed 2 tasks")
	assert.Contains(t, out, "task-cats.md: ready")
	assert.Contains(t, out, "Chunks: 3 (embedded 3, failed 0)")
}

func TestIngestCmd_JSON(t *testing.T) {
	ts := setupTestServices(t)
	ts.ingest.status["task-cats.md"] = &domain.IngestStatus{TaskID: "task-cats.md", State: domain.IngestChunking}
	path := writeFile(t, "cats.md", "# Cats")

	out, err := execute(t, "", "ingest", "--json", "--wait", "zoo", path)
	require.NoError(t, err)

	var results []ingestResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, path, results[0].File)
	assert.Equal(t, "task-cats.md", results[0].TaskID)
	require.NotNil(t, results[0].Status)
	assert.Equal(t, domain.IngestChunking, results[0].Status.State)
}

func TestIngestCmd_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		setupTestServices(t)
		_, err := execute(t, "", "ingest", "zoo", filepath.Join(t.TempDir(), "missing.md"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "opening")
	})

	t.Run("upload rejected", func(t *testing.T) {
		ts := setupTestServices(t)
		ts.ingest.err = domain.ErrUnsupportedType
		_, err := execute(t, "", "ingest", "zoo", writeFile(t, "image.png", "png"))
		require.ErrorIs(t, err, domain.ErrUnsupportedType)
	})

	t.Run("service not configured", func(t *testing.T) {
		err := runIngest(ingestCmd, []string{"zoo", "cats.md"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ingest service not configured")
	})
}

func TestStatusCmd(t *testing.T) {
	ts := setupTestServices(t)
	ts.ingest.status["t1"] = &domain.IngestStatus{
		TaskID:      "t1",
		State:       domain.IngestFailed,
		FailedStage: domain.StageEmbed,
		Reason:      "embedding provider unavailable",
	}

	out, err := execute(t, "", "status", "t1")
	require.NoError(t, err)
	assert.Contains(t, out, "t1: failed")
	assert.Contains(t, out, "Stage: embed")
	assert.Contains(t, out, "Reason: embedding provider unavailable")
}

func TestStatusCmd_JSON(t *testing.T) {
	ts := setupTestServices(t)
	ts.ingest.status["t1"] = &domain.IngestStatus{TaskID: "t1", State: domain.IngestReady, Partial: true, Chunks: 4, Embedded: 3, Failed: 1}

	out, err := execute(t, "", "status", "--json", "t1")
	require.NoError(t, err)

	var status domain.IngestStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, *ts.ingest.status["t1"], status)
}

func TestStatusCmd_UnknownTask(t *testing.T) {
	setupTestServices(t)

	_, err := execute(t, "", "status", "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
