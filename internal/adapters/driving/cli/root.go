// Package cli implements the ragpipe command line.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragpipe/internal/bootstrap"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driving"
	"github.com/custodia-labs/ragpipe/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// Services used by the commands. Populated by bootstrap on first use, or
// injected with SetServices.
var (
	settingsService  driving.SettingsService
	ingestService    driving.IngestService
	projectService   driving.ProjectService
	retrievalService driving.RetrievalService
	workerService    driving.Worker
)

var (
	configPath string
	verbose    bool
	app        *bootstrap.App
)

// annotationSetup marks how much of the application a command needs.
const annotationSetup = "setup"

const (
	setupNone     = "none"
	setupSettings = "settings"
)

var rootCmd = &cobra.Command{
	Use:   "ragpipe",
	Short: "Ingest documents and answer questions about them",
	Long: `ragpipe ingests text, markdown and PDF files into per-project vector
collections and answers questions using the retrieved passages.

Files are chunked and embedded by background workers. Run 'ragpipe worker'
alongside 'ragpipe ingest', or pass --wait to process in the foreground.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		return ensureServices(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.ragpipe/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// SetServices injects the services used by commands.
func SetServices(
	settings driving.SettingsService,
	ingest driving.IngestService,
	projects driving.ProjectService,
	retrieval driving.RetrievalService,
	worker driving.Worker,
) {
	settingsService = settings
	ingestService = ingest
	projectService = projects
	retrievalService = retrieval
	workerService = worker
}

// Execute runs the root command and releases any opened backends.
func Execute(ctx context.Context) error {
	defer closeApp()
	return rootCmd.ExecuteContext(ctx)
}

// ensureServices bootstraps the application unless the command needs none
// or services were already injected.
func ensureServices(cmd *cobra.Command) error {
	mode := cmd.Annotations[annotationSetup]
	if mode == setupNone {
		return nil
	}
	settingsOnly := mode == setupSettings
	if settingsService != nil && (settingsOnly || retrievalService != nil) {
		return nil
	}

	a, err := bootstrap.New(cmd.Context(), bootstrap.Options{
		ConfigPath:   configPath,
		SettingsOnly: settingsOnly,
	})
	if err != nil {
		return fmt.Errorf("starting ragpipe: %w", err)
	}
	app = a

	settingsService = a.Settings
	if !settingsOnly {
		ingestService = a.Ingest
		projectService = a.Projects
		retrievalService = a.Retrieval
		workerService = a.Worker
	}
	return nil
}

func closeApp() {
	if app == nil {
		return
	}
	if err := app.Close(); err != nil {
		logger.Warn("closing backends: %v", err)
	}
	app = nil
}
