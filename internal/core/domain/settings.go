package domain

import (
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or generation.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	default:
		return unknownDescription
	}
}

// Default provider limits.
const (
	DefaultMaxInputChars   = 1000
	DefaultMaxOutputTokens = 1000
	DefaultTemperature     = 0.1
)

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// Size is the vector dimension. Zero means the model's known default.
	Size int

	// BaseURL is the API endpoint (for Ollama or compatible APIs).
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// MaxInputChars truncates longer inputs.
	MaxInputChars int
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// ResolvedSize returns Size, or the known dimension of Model.
func (e EmbeddingSettings) ResolvedSize() int {
	if e.Size > 0 {
		return e.Size
	}
	return EmbeddingDimensions()[e.Model]
}

// GenerationSettings holds text generation provider configuration.
type GenerationSettings struct {
	// Provider is the generation service provider.
	Provider AIProvider

	// Model is the generation model name.
	Model string

	// BaseURL is the API endpoint (for Ollama or compatible APIs).
	BaseURL string

	// APIKey is the API key (for OpenAI/Anthropic).
	APIKey string

	// MaxInputChars truncates longer prompts.
	MaxInputChars int

	// MaxOutputTokens is the default output budget.
	MaxOutputTokens int

	// Temperature is the default sampling temperature.
	Temperature float64
}

// IsConfigured returns true if the generation provider is set up.
func (g GenerationSettings) IsConfigured() bool {
	if !g.Provider.IsValid() {
		return false
	}
	if g.Provider.RequiresAPIKey() && g.APIKey == "" {
		return false
	}
	return true
}

// VectorProvider identifies a vector index backend.
type VectorProvider string

// Available vector index backends.
const (
	VectorProviderMemory   VectorProvider = "memory"
	VectorProviderQdrant   VectorProvider = "qdrant"
	VectorProviderPgVector VectorProvider = "pgvector"
)

// IsValid returns true if the backend is recognised.
func (p VectorProvider) IsValid() bool {
	switch p {
	case VectorProviderMemory, VectorProviderQdrant, VectorProviderPgVector:
		return true
	default:
		return false
	}
}

// VectorIndexSettings holds vector index configuration.
type VectorIndexSettings struct {
	// Provider selects the backend.
	Provider VectorProvider

	// URL is the Qdrant endpoint.
	URL string

	// APIKey authenticates against Qdrant Cloud.
	APIKey string

	// DSN is the PostgreSQL connection string for pgvector.
	DSN string

	// Distance is the metric new collections are created with.
	Distance DistanceMetric
}

// StorageDriver identifies a chunk and project store backend.
type StorageDriver string

// Available storage backends.
const (
	StorageMemory   StorageDriver = "memory"
	StorageSQLite   StorageDriver = "sqlite"
	StoragePostgres StorageDriver = "postgres"
	StorageMongo    StorageDriver = "mongo"
)

// IsValid returns true if the driver is recognised.
func (d StorageDriver) IsValid() bool {
	switch d {
	case StorageMemory, StorageSQLite, StoragePostgres, StorageMongo:
		return true
	default:
		return false
	}
}

// StorageSettings holds project and chunk store configuration.
type StorageSettings struct {
	// Driver selects the backend.
	Driver StorageDriver

	// DSN is a database file path (sqlite), postgres:// URL or mongodb:// URL.
	DSN string

	// Database is the Mongo database name.
	Database string

	// InsertBatchSize bounds each chunk insert request.
	InsertBatchSize int
}

// BrokerSettings holds task broker configuration.
type BrokerSettings struct {
	// Driver is memory, sqlite or postgres.
	Driver StorageDriver

	// DSN is the broker connection string. Empty reuses the storage DSN.
	DSN string
}

// WorkerSettings holds worker pool configuration.
type WorkerSettings struct {
	// Concurrency is the number of parallel workers.
	Concurrency int

	// TaskTimeLimit is the hard wall-clock limit per task run.
	TaskTimeLimit time.Duration

	// Lease is how long a dequeued task stays invisible before redelivery.
	Lease time.Duration

	// MaxReconnects bounds consecutive broker retries before giving up.
	MaxReconnects int

	// PollInterval is the wait between empty dequeues.
	PollInterval time.Duration

	// ResultExpires is how long finished task results are kept.
	ResultExpires time.Duration
}

// FileSettings holds upload configuration.
type FileSettings struct {
	// UploadDir holds one sub-directory per project.
	UploadDir string

	// MaxSizeMB is the upload size limit.
	MaxSizeMB int

	// AllowedExtensions lists accepted file extensions, with leading dot.
	AllowedExtensions []string
}

// ChunkingSettings selects the splitter used by the chunk stage.
type ChunkingSettings struct {
	// Splitter is a registered splitter name: recursive or markdown.
	Splitter string

	// Separators overrides the splitter's separators, most significant first.
	Separators []string
}

// RateLimitSettings throttles provider requests. Zero disables limiting.
type RateLimitSettings struct {
	RequestsPerSecond float64
	Burst             int
}

// AppSettings holds all application settings.
type AppSettings struct {
	Files       FileSettings
	Storage     StorageSettings
	Broker      BrokerSettings
	Worker      WorkerSettings
	Chunking    ChunkingSettings
	Embedding   EmbeddingSettings
	Generation  GenerationSettings
	VectorIndex VectorIndexSettings
	RateLimit   RateLimitSettings
}

// DefaultAppSettings returns settings with sensible defaults.
// AI providers are left unconfigured; they need credentials or a local endpoint.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Files: FileSettings{
			UploadDir:         "assets/files",
			MaxSizeMB:         10,
			AllowedExtensions: []string{".txt", ".md", ".pdf", ".html", ".htm", ".docx", ".eml"},
		},
		Storage: StorageSettings{
			Driver:          StorageSQLite,
			Database:        "ragpipe",
			InsertBatchSize: 100,
		},
		Broker: BrokerSettings{
			Driver: StorageSQLite,
		},
		Worker: WorkerSettings{
			Concurrency:   2,
			TaskTimeLimit: 10 * time.Minute,
			Lease:         15 * time.Minute,
			MaxReconnects: 10,
			PollInterval:  time.Second,
			ResultExpires: time.Hour,
		},
		Chunking: ChunkingSettings{
			Splitter: "recursive",
		},
		Embedding: EmbeddingSettings{
			MaxInputChars: DefaultMaxInputChars,
		},
		Generation: GenerationSettings{
			MaxInputChars:   DefaultMaxInputChars,
			MaxOutputTokens: DefaultMaxOutputTokens,
			Temperature:     DefaultTemperature,
		},
		VectorIndex: VectorIndexSettings{
			Provider: VectorProviderQdrant,
			URL:      "http://localhost:6333",
			Distance: DistanceDot,
		},
	}
}

// CheckVectorIndex rejects the in-process vector index unless storage and
// broker are in-process too. Vectors must outlive the command that wrote them
// whenever chunks and task results do.
func (s AppSettings) CheckVectorIndex() error {
	if s.VectorIndex.Provider != VectorProviderMemory {
		return nil
	}
	if s.Storage.Driver == StorageMemory && s.Broker.Driver == StorageMemory {
		return nil
	}
	return fmt.Errorf("%w: vector_index.provider %q requires memory storage and broker (have %s and %s); use %s or %s",
		ErrInvalidInput, VectorProviderMemory, s.Storage.Driver, s.Broker.Driver,
		VectorProviderQdrant, VectorProviderPgVector)
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
	}
}

// AllGenerationProviders returns providers that support generation.
func AllGenerationProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderAnthropic,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
	}
}

// DefaultGenerationModels returns default models for each generation provider.
func DefaultGenerationModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}
