package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driving"
)

var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyUploadDir         = "files.upload_dir"
	keyMaxSizeMB         = "files.max_size_mb"
	keyAllowedExts       = "files.allowed_extensions"
	keyStorageDriver     = "storage.driver"
	keyStorageDSN        = "storage.dsn"
	keyStorageDatabase   = "storage.database"
	keyInsertBatchSize   = "storage.insert_batch_size"
	keyBrokerDriver      = "broker.driver"
	keyBrokerDSN         = "broker.dsn"
	keyEmbedProvider     = "embedding.provider"
	keyEmbedModel        = "embedding.model"
	keyEmbedSize         = "embedding.size"
	keyEmbedBaseURL      = "embedding.base_url"
	keyEmbedAPIKey       = "embedding.api_key"
	keyEmbedMaxInput     = "embedding.max_input_chars"
	keyGenProvider       = "generation.provider"
	keyGenModel          = "generation.model"
	keyGenBaseURL        = "generation.base_url"
	keyGenAPIKey         = "generation.api_key"
	keyGenMaxInput       = "generation.max_input_chars"
	keyGenMaxOutput      = "generation.max_output_tokens"
	keyGenTemperature    = "generation.temperature"
	keyVectorProvider    = "vector_index.provider"
	keyVectorURL         = "vector_index.url"
	keyVectorAPIKey      = "vector_index.api_key"
	keyVectorDSN         = "vector_index.dsn"
	keyVectorDistance    = "vector_index.distance"
	keyWorkerConcurrency = "worker.concurrency"
	keyWorkerTimeLimit   = "worker.task_time_limit"
	keyWorkerLease       = "worker.lease"
	keyWorkerReconnects  = "worker.max_reconnects"
	keyWorkerPoll        = "worker.poll_interval"
	keyWorkerExpires     = "worker.result_expires"
	keySplitter          = "chunking.splitter"
	keySeparators        = "chunking.separators"
	keyRateRPS           = "ai.requests_per_second"
	keyRateBurst         = "ai.burst"
)

// SettingsService maps configuration keys onto domain.AppSettings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
}

// NewSettingsService creates a new settings service.
// The aiValidator is optional; without it Validate skips connectivity checks.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
	}
}

// Get retrieves current application settings, with defaults for unset keys.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	d := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Files: domain.FileSettings{
			UploadDir:         s.getString(keyUploadDir, d.Files.UploadDir),
			MaxSizeMB:         s.getInt(keyMaxSizeMB, d.Files.MaxSizeMB),
			AllowedExtensions: s.getExtensions(d.Files.AllowedExtensions),
		},
		Storage: domain.StorageSettings{
			Driver:          s.getDriver(keyStorageDriver, d.Storage.Driver),
			DSN:             s.configStore.GetString(keyStorageDSN),
			Database:        s.getString(keyStorageDatabase, d.Storage.Database),
			InsertBatchSize: s.getInt(keyInsertBatchSize, d.Storage.InsertBatchSize),
		},
		Broker: domain.BrokerSettings{
			Driver: s.getDriver(keyBrokerDriver, d.Broker.Driver),
			DSN:    s.configStore.GetString(keyBrokerDSN),
		},
		Worker: domain.WorkerSettings{
			Concurrency:   s.getInt(keyWorkerConcurrency, d.Worker.Concurrency),
			TaskTimeLimit: s.getDuration(keyWorkerTimeLimit, d.Worker.TaskTimeLimit),
			Lease:         s.getDuration(keyWorkerLease, d.Worker.Lease),
			MaxReconnects: s.getInt(keyWorkerReconnects, d.Worker.MaxReconnects),
			PollInterval:  s.getDuration(keyWorkerPoll, d.Worker.PollInterval),
			ResultExpires: s.getDuration(keyWorkerExpires, d.Worker.ResultExpires),
		},
		Chunking: domain.ChunkingSettings{
			Splitter:   s.getString(keySplitter, d.Chunking.Splitter),
			Separators: s.configStore.GetStringSlice(keySeparators),
		},
		VectorIndex: domain.VectorIndexSettings{
			Provider: s.getVectorProvider(d.VectorIndex.Provider),
			URL:      s.getString(keyVectorURL, d.VectorIndex.URL),
			APIKey:   s.configStore.GetString(keyVectorAPIKey),
			DSN:      s.configStore.GetString(keyVectorDSN),
			Distance: s.getDistance(d.VectorIndex.Distance),
		},
		RateLimit: domain.RateLimitSettings{
			RequestsPerSecond: s.configStore.GetFloat(keyRateRPS),
			Burst:             s.configStore.GetInt(keyRateBurst),
		},
	}

	embedProvider := s.getProvider(keyEmbedProvider, d.Embedding.Provider)
	settings.Embedding = domain.EmbeddingSettings{
		Provider:      embedProvider,
		Model:         s.getString(keyEmbedModel, domain.DefaultEmbeddingModels()[embedProvider]),
		Size:          s.configStore.GetInt(keyEmbedSize),
		BaseURL:       s.getString(keyEmbedBaseURL, s.providerValue(embedProvider, "base_url")),
		APIKey:        s.getString(keyEmbedAPIKey, s.providerValue(embedProvider, "api_key")),
		MaxInputChars: s.getInt(keyEmbedMaxInput, d.Embedding.MaxInputChars),
	}

	genProvider := s.getProvider(keyGenProvider, d.Generation.Provider)
	settings.Generation = domain.GenerationSettings{
		Provider:        genProvider,
		Model:           s.getString(keyGenModel, domain.DefaultGenerationModels()[genProvider]),
		BaseURL:         s.getString(keyGenBaseURL, s.providerValue(genProvider, "base_url")),
		APIKey:          s.getString(keyGenAPIKey, s.providerValue(genProvider, "api_key")),
		MaxInputChars:   s.getInt(keyGenMaxInput, d.Generation.MaxInputChars),
		MaxOutputTokens: s.getInt(keyGenMaxOutput, d.Generation.MaxOutputTokens),
		Temperature:     s.getFloat(keyGenTemperature, d.Generation.Temperature),
	}

	return settings, nil
}

// Set stores a single key. Known keys are checked before they are written.
func (s *SettingsService) Set(key, value string) error {
	var stored any = value
	switch key {
	case keyStorageDriver, keyBrokerDriver:
		if !domain.StorageDriver(value).IsValid() {
			return fmt.Errorf("%w: unknown driver %q", domain.ErrInvalidInput, value)
		}
	case keyEmbedProvider, keyGenProvider:
		if !domain.AIProvider(value).IsValid() {
			return fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidInput, value)
		}
	case keyVectorProvider:
		if !domain.VectorProvider(value).IsValid() {
			return fmt.Errorf("%w: unknown vector index %q", domain.ErrInvalidInput, value)
		}
	case keyVectorDistance:
		if !domain.DistanceMetric(strings.ToLower(value)).IsValid() {
			return fmt.Errorf("%w: unknown distance %q", domain.ErrInvalidInput, value)
		}
	case keyMaxSizeMB, keyInsertBatchSize, keyEmbedSize, keyEmbedMaxInput, keyGenMaxInput,
		keyGenMaxOutput, keyWorkerConcurrency, keyWorkerReconnects, keyRateBurst:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalidInput, key)
		}
		stored = n
	case keyGenTemperature, keyRateRPS:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("%w: %s must be a non-negative number", domain.ErrInvalidInput, key)
		}
		stored = f
	case keyWorkerTimeLimit, keyWorkerLease, keyWorkerPoll, keyWorkerExpires:
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%w: %s must be a duration such as 90s", domain.ErrInvalidInput, key)
		}
	case keyAllowedExts:
		stored = strings.Split(value, ",")
	}
	return s.configStore.Set(key, stored)
}

// Validate checks that the settings are coherent and, when a validator is
// configured, that the AI providers are reachable.
func (s *SettingsService) Validate(ctx context.Context) error {
	settings, err := s.Get()
	if err != nil {
		return err
	}

	var errs []error
	if !settings.Embedding.IsConfigured() {
		errs = append(errs, fmt.Errorf("%w: set embedding.provider (and its API key)", domain.ErrEmbeddingUnavailable))
	}
	if settings.Storage.Driver != domain.StorageMemory && settings.Storage.Driver != domain.StorageSQLite &&
		settings.Storage.DSN == "" {
		errs = append(errs, fmt.Errorf("%w: storage.dsn is required for %s", domain.ErrInvalidInput, settings.Storage.Driver))
	}
	if settings.Broker.Driver == domain.StorageMongo {
		errs = append(errs, fmt.Errorf("%w: broker.driver cannot be mongo", domain.ErrInvalidInput))
	}
	if err := settings.CheckVectorIndex(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if s.aiValidator == nil {
		return nil
	}
	if err := s.aiValidator.ValidateEmbedding(ctx, settings.Embedding); err != nil {
		errs = append(errs, err)
	}
	if err := s.aiValidator.ValidateGeneration(ctx, settings.Generation); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ConfigPath returns where settings are stored.
func (s *SettingsService) ConfigPath() string {
	return s.configStore.Path()
}

// providerValue reads a provider-wide key such as openai.api_key, shared by
// the embedding and generation sections.
func (s *SettingsService) providerValue(provider domain.AIProvider, field string) string {
	if provider == "" {
		return ""
	}
	return s.configStore.GetString(string(provider) + "." + field)
}

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

// getDuration accepts a Go duration string or a number of seconds.
func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := s.configStore.GetString(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			return d
		}
	}
	if secs := s.configStore.GetInt(key); secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}

func (s *SettingsService) getExtensions(defaultVal []string) []string {
	exts := s.configStore.GetStringSlice(keyAllowedExts)
	if len(exts) == 0 {
		return defaultVal
	}
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	provider := domain.AIProvider(s.configStore.GetString(key))
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

func (s *SettingsService) getDriver(key string, defaultVal domain.StorageDriver) domain.StorageDriver {
	driver := domain.StorageDriver(s.configStore.GetString(key))
	if !driver.IsValid() {
		return defaultVal
	}
	return driver
}

func (s *SettingsService) getVectorProvider(defaultVal domain.VectorProvider) domain.VectorProvider {
	provider := domain.VectorProvider(s.configStore.GetString(keyVectorProvider))
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

func (s *SettingsService) getDistance(defaultVal domain.DistanceMetric) domain.DistanceMetric {
	val := s.configStore.GetString(keyVectorDistance)
	if val == "" {
		return defaultVal
	}
	return domain.ParseDistanceMetric(val)
}
