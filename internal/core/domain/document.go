package domain

import "time"

// Metadata keys every chunk carries.
const (
	// MetaProjectID holds the human project id the chunk belongs to.
	MetaProjectID = "project_id"

	// MetaOrdinal holds the chunk position within its source file.
	MetaOrdinal = "ordinal"

	// MetaSource holds a nested map describing the origin of the chunk.
	MetaSource = "src"

	// MetaFilePath is the key inside MetaSource naming the source file.
	MetaFilePath = "file_path"

	// MetaPage is the key inside MetaSource naming the 1-based page, when known.
	MetaPage = "page"
)

// RawDocument is the undecoded content of an uploaded file.
type RawDocument struct {
	// Path is the location the content was read from.
	Path string

	// MIMEType is the content type, if known.
	MIMEType string

	// Content is the raw bytes.
	Content []byte

	// Metadata contains loader-independent key-value pairs.
	Metadata map[string]any
}

// Block is one decoded unit of a document, such as a page.
// Loaders produce blocks; the splitter consumes them.
type Block struct {
	// Text is the decoded text.
	Text string

	// Metadata describes where the block came from.
	Metadata map[string]any
}

// Split is a piece of text produced by the splitter, with the metadata
// of the block it came from.
type Split struct {
	Text     string
	Metadata map[string]any
}

// Chunk is a unit of retrievable text owned by exactly one project.
// Chunks are written once and never mutated.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// ProjectRef is the owning project's surrogate ID.
	ProjectRef string

	// Text is the non-empty chunk content.
	Text string

	// Ordinal is the position of the chunk within its source file.
	Ordinal int

	// SourcePath is the file the chunk was split from.
	SourcePath string

	// Metadata contains project_id, ordinal and src plus any loader metadata.
	Metadata map[string]any

	// CreatedAt is when the chunk was persisted.
	CreatedAt time.Time
}

// ChunkRecord is the serialised form of a chunk handed from the chunk stage
// to the embed stage through the task broker.
type ChunkRecord struct {
	ID         string         `json:"id"`
	ProjectRef string         `json:"chunk_project_id"`
	Text       string         `json:"chunk_text"`
	Ordinal    int            `json:"chunk_order"`
	SourcePath string         `json:"source_path"`
	Metadata   map[string]any `json:"chunk_metadata"`
}

// Record converts a chunk to its serialised form.
func (c Chunk) Record() ChunkRecord {
	return ChunkRecord{
		ID:         c.ID,
		ProjectRef: c.ProjectRef,
		Text:       c.Text,
		Ordinal:    c.Ordinal,
		SourcePath: c.SourcePath,
		Metadata:   c.Metadata,
	}
}

// SourceFilePath extracts src.file_path from chunk or payload metadata.
func SourceFilePath(metadata map[string]any) string {
	src, ok := metadata[MetaSource].(map[string]any)
	if !ok {
		return ""
	}
	path, _ := src[MetaFilePath].(string)
	return path
}

// CopyMetadata returns a shallow copy of m. Nested maps are copied one level deep.
func CopyMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			inner := make(map[string]any, len(nested))
			for nk, nv := range nested {
				inner[nk] = nv
			}
			out[k] = inner
			continue
		}
		out[k] = v
	}
	return out
}
