package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
)

var settingsAnnotations = map[string]string{annotationSetup: setupSettings}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and change storage, broker, vector index and AI provider settings.

Settings are stored in the config file and may be overridden with
RAGPIPE_* environment variables.`,
	Annotations: settingsAnnotations,
	RunE:        runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Show current settings",
	Annotations: settingsAnnotations,
	RunE:        runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a setting",
	Long: `Set a single setting by its dotted key, for example:

  ragpipe settings set embedding.provider ollama
  ragpipe settings set storage.driver postgres
  ragpipe settings set storage.dsn postgres://localhost/ragpipe
  ragpipe settings set worker.task_time_limit 5m
  ragpipe settings set files.allowed_extensions .txt,.md`,
	Args:        cobra.ExactArgs(2),
	Annotations: settingsAnnotations,
	RunE:        runSettingsSet,
}

var settingsCheckCmd = &cobra.Command{
	Use:         "check",
	Short:       "Validate settings and ping AI providers",
	Annotations: settingsAnnotations,
	RunE:        runSettingsCheck,
}

var settingsKeyCmd = &cobra.Command{
	Use:   "key [provider]",
	Short: "Store an API key for a provider",
	Long: `Prompts for an API key without echoing it and stores it as
<provider>.api_key. Supported providers: openai, anthropic, qdrant.`,
	Args:        cobra.ExactArgs(1),
	Annotations: settingsAnnotations,
	RunE:        runSettingsKey,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsCheckCmd)
	settingsCmd.AddCommand(settingsKeyCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println(titleStyle.Render("Current Settings"))
	cmd.Printf("  Config: %s\n", settingsService.ConfigPath())
	cmd.Println()

	cmd.Println(subtitleStyle.Render("[Files]"))
	cmd.Printf("  Upload dir: %s\n", settings.Files.UploadDir)
	cmd.Printf("  Max size: %d MB\n", settings.Files.MaxSizeMB)
	cmd.Printf("  Extensions: %s\n", strings.Join(settings.Files.AllowedExtensions, ", "))
	cmd.Println()

	cmd.Println(subtitleStyle.Render("[Storage]"))
	cmd.Printf("  Driver: %s\n", settings.Storage.Driver)
	if settings.Storage.DSN != "" {
		cmd.Printf("  DSN: %s\n", maskDSN(settings.Storage.DSN))
	}
	cmd.Printf("  Broker: %s\n", settings.Broker.Driver)
	cmd.Println()

	cmd.Println(subtitleStyle.Render("[Embedding]"))
	printProvider(cmd, settings.Embedding.Provider, settings.Embedding.Model,
		settings.Embedding.BaseURL, settings.Embedding.APIKey, settings.Embedding.IsConfigured())
	if size := settings.Embedding.ResolvedSize(); size > 0 {
		cmd.Printf("  Dimensions: %d\n", size)
	}
	cmd.Println()

	cmd.Println(subtitleStyle.Render("[Generation]"))
	printProvider(cmd, settings.Generation.Provider, settings.Generation.Model,
		settings.Generation.BaseURL, settings.Generation.APIKey, settings.Generation.IsConfigured())
	cmd.Printf("  Temperature: %.2f\n", settings.Generation.Temperature)
	cmd.Printf("  Max output tokens: %d\n", settings.Generation.MaxOutputTokens)
	cmd.Println()

	cmd.Println(subtitleStyle.Render("[Vector Index]"))
	cmd.Printf("  Provider: %s\n", settings.VectorIndex.Provider)
	if settings.VectorIndex.Provider == domain.VectorProviderQdrant {
		cmd.Printf("  URL: %s\n", settings.VectorIndex.URL)
	}
	cmd.Printf("  Distance: %s\n", settings.VectorIndex.Distance)
	cmd.Println()

	cmd.Println(subtitleStyle.Render("[Worker]"))
	cmd.Printf("  Concurrency: %d\n", settings.Worker.Concurrency)
	cmd.Printf("  Task time limit: %s\n", settings.Worker.TaskTimeLimit)
	return nil
}

func printProvider(cmd *cobra.Command, provider domain.AIProvider, model, baseURL, apiKey string, configured bool) {
	if provider == "" {
		cmd.Println("  Provider: (not set)")
		cmd.Println("  Status: " + warningStyle.Render("not configured"))
		return
	}
	cmd.Printf("  Provider: %s\n", provider.Description())
	cmd.Printf("  Model: %s\n", model)
	if baseURL != "" {
		cmd.Printf("  Base URL: %s\n", baseURL)
	}
	if provider.RequiresAPIKey() {
		if apiKey != "" {
			cmd.Printf("  API Key: %s\n", maskAPIKey(apiKey))
		} else {
			cmd.Printf("  API Key: (not set)\n")
		}
	}
	status := successStyle.Render("configured")
	if !configured {
		status = warningStyle.Render("not configured")
	}
	cmd.Println("  Status: " + status)
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	if err := settingsService.Set(args[0], args[1]); err != nil {
		return fmt.Errorf("failed to set %s: %w", args[0], err)
	}
	cmd.Printf("Set %s\n", args[0])
	return nil
}

func runSettingsCheck(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	cmd.Print("Validating configuration... ")
	if err := settingsService.Validate(cmd.Context()); err != nil {
		cmd.Println(errorStyle.Render("FAILED"))
		return fmt.Errorf("configuration is invalid: %w", err)
	}
	cmd.Println(successStyle.Render("OK"))
	return nil
}

func runSettingsKey(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	key, err := apiKeySetting(args[0])
	if err != nil {
		return err
	}

	cmd.Print("Enter API key: ")
	apiKey := readPassword(cmd)
	cmd.Println()
	if apiKey == "" {
		return errors.New("API key is required")
	}

	if err := settingsService.Set(key, apiKey); err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}
	cmd.Printf("Stored %s (%s)\n", key, maskAPIKey(apiKey))
	return nil
}

// apiKeySetting returns the config key holding provider's API key.
func apiKeySetting(provider string) (string, error) {
	switch strings.ToLower(provider) {
	case string(domain.AIProviderOpenAI), string(domain.AIProviderAnthropic):
		return strings.ToLower(provider) + ".api_key", nil
	case string(domain.VectorProviderQdrant):
		return "vector_index.api_key", nil
	default:
		return "", fmt.Errorf("%w: no API key for provider %q", domain.ErrInvalidInput, provider)
	}
}

// Helper functions.

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func readPassword(cmd *cobra.Command) string {
	// Try to read password without echo
	if cmd.InOrStdin() == os.Stdin && term.IsTerminal(int(os.Stdin.Fd())) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	// Fallback to regular input
	return readLine(bufio.NewReader(cmd.InOrStdin()))
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// maskDSN hides the password of a connection URL.
func maskDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	userinfo, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	user, _, hasPassword := strings.Cut(userinfo, ":")
	if !hasPassword {
		return dsn
	}
	return scheme + "://" + user + ":****@" + host
}
