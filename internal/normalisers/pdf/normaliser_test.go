package pdf

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
)

// mockRunner is a test double for CommandRunner.
type mockRunner struct {
	output []byte
	err    error
	name   string
	args   []string
}

func (m *mockRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	m.name = name
	m.args = args
	return m.output, m.err
}

func TestNew(t *testing.T) {
	normaliser := New()
	require.NotNil(t, normaliser)
	assert.IsType(t, execRunner{}, normaliser.runner)
}

func TestSupportedExtensions(t *testing.T) {
	assert.Equal(t, []string{".pdf"}, New().SupportedExtensions())
}

func TestNormalise_NilDocument(t *testing.T) {
	result, err := New().Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, result)
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		path     string
		expected string
	}{
		{
			name:     "first line as title",
			content:  "Document Title\n\nSome content here.",
			path:     "/doc.pdf",
			expected: "Document Title",
		},
		{
			name:     "skip empty lines",
			content:  "\n\n\nActual Title\nContent",
			path:     "/doc.pdf",
			expected: "Actual Title",
		},
		{
			name:     "fallback to filename",
			content:  "",
			path:     "/path/to/my_document.pdf",
			expected: "my document",
		},
		{
			name:     "skip very long first line",
			content:  string(make([]byte, 250)) + "\nShort Title\nContent",
			path:     "/doc.pdf",
			expected: "Short Title",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, extractTitle(tc.content, tc.path))
		})
	}
}

func TestInstallInstructions(t *testing.T) {
	instructions := InstallInstructions()
	assert.Contains(t, instructions, "pdftotext")
	assert.Contains(t, instructions, "brew install poppler")
	assert.Contains(t, instructions, "apt install poppler-utils")
}

func TestInterfaceCompliance(t *testing.T) {
	var _ driven.Normaliser = (*Normaliser)(nil)
}

func TestErrPDFToolNotFound(t *testing.T) {
	assert.Contains(t, ErrPDFToolNotFound.Error(), "pdftotext")
}

func TestNewWithRunner(t *testing.T) {
	runner := &mockRunner{output: []byte("test output")}
	normaliser := NewWithRunner(runner)
	require.NotNil(t, normaliser)
	assert.Equal(t, runner, normaliser.runner)
}

func TestNormalise_PagesBecomeBlocks(t *testing.T) {
	runner := &mockRunner{
		output: []byte("PDF Title\n\nFirst page body.\n\fSecond page body.\n\f\f"),
	}
	raw := &domain.RawDocument{
		Path:     "/uploads/p1/report.pdf",
		MIMEType: "application/pdf",
		Content:  []byte("%PDF-1.4 fake pdf content"),
	}

	blocks, err := NewWithRunner(runner).Normalise(context.Background(), raw)

	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "pdftotext", runner.name)
	assert.Equal(t, "-", runner.args[len(runner.args)-1])

	assert.Equal(t, "PDF Title\n\nFirst page body.", blocks[0].Text)
	assert.Equal(t, "Second page body.", blocks[1].Text)

	for i, b := range blocks {
		src := b.Metadata[domain.MetaSource].(map[string]any)
		assert.Equal(t, "/uploads/p1/report.pdf", src[domain.MetaFilePath])
		assert.Equal(t, i+1, src[domain.MetaPage])
		assert.Equal(t, "pdf", src["format"])
		assert.Equal(t, "PDF Title", src["title"])
	}
}

func TestNormalise_RunnerError(t *testing.T) {
	runner := &mockRunner{err: errors.New("pdftotext crashed")}
	raw := &domain.RawDocument{
		Path:    "/path/to/document.pdf",
		Content: []byte("%PDF-1.4 fake pdf content"),
	}

	result, err := NewWithRunner(runner).Normalise(context.Background(), raw)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext failed")
	assert.Nil(t, result)
}

func TestNormalise_ToolMissing(t *testing.T) {
	runner := &mockRunner{err: ErrPDFToolNotFound}

	_, err := NewWithRunner(runner).Normalise(context.Background(), &domain.RawDocument{Path: "a.pdf"})

	assert.ErrorIs(t, err, ErrPDFToolNotFound)
}

func TestCopyMetadata(t *testing.T) {
	assert.Nil(t, copyMetadata(nil))

	src := map[string]any{"key1": "value1", "key2": 42}
	dst := copyMetadata(src)
	assert.Equal(t, src, dst)
	dst["key1"] = "changed"
	assert.Equal(t, "value1", src["key1"])
}
