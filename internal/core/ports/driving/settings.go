package driving

import (
	"context"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
)

// SettingsService reads and updates application configuration.
type SettingsService interface {
	// Get returns the current settings with defaults applied.
	Get() (*domain.AppSettings, error)

	// Set validates and persists a single dotted key.
	Set(key, value string) error

	// Validate checks the settings for consistency and, where a validator
	// is available, pings the configured AI providers.
	Validate(ctx context.Context) error

	// ConfigPath returns the path of the backing config file.
	ConfigPath() string
}
