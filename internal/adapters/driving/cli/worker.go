package cli

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/ragpipe/internal/adapters/driving/watcher"
	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/logger"
)

var (
	watchScan      bool
	watchWorker    bool
	watchDebounce  time.Duration
	watchChunkSize int
	watchOverlap   int
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process queued ingestion tasks",
	Long: `Consumes the chunk and embed queues until interrupted. Several workers
may share a sqlite or postgres broker.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

var watchCmd = &cobra.Command{
	Use:   "watch [project] [directory]",
	Short: "Ingest files as they appear in a directory",
	Long: `Watches a directory and ingests every supported file that is created
or modified in it. Sub-directories are not watched.

By default a worker runs in the same process; pass --worker=false when
separate workers consume the queue.`,
	Args: cobra.ExactArgs(2),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchScan, "scan", false, "ingest existing files on start")
	watchCmd.Flags().BoolVar(&watchWorker, "worker", true, "run a worker in this process")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watcher.DefaultDebounce, "quiet period before a changed file is ingested")
	watchCmd.Flags().IntVar(&watchChunkSize, "chunk-size", domain.DefaultChunkSize, "maximum characters per chunk")
	watchCmd.Flags().IntVar(&watchOverlap, "overlap", domain.DefaultChunkOverlap, "characters shared by adjacent chunks")
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(watchCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	if workerService == nil {
		return errors.New("worker not configured")
	}
	logger.SetTimestamps(true)
	cmd.Printf("Worker consuming %s (Ctrl+C to stop)\n", strings.Join(workerService.Queues(), ", "))
	return workerService.Run(cmd.Context())
}

func runWatch(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}
	if watchWorker && workerService == nil {
		return errors.New("worker not configured")
	}

	logger.SetTimestamps(true)
	opts := []watcher.Option{
		watcher.WithDebounce(watchDebounce),
		watcher.WithChunking(watchChunkSize, watchOverlap),
		watcher.WithSubmitHook(func(path, taskID string) {
			cmd.Printf("Queued %s as task %s\n", path, taskID)
		}),
	}
	if watchScan {
		opts = append(opts, watcher.WithInitialScan())
	}
	w := watcher.New(ingestService, args[0], args[1], opts...)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error { return w.Run(ctx) })
	if watchWorker {
		g.Go(func() error { return workerService.Run(ctx) })
	}
	return g.Wait()
}
