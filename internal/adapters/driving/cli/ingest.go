package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
)

var (
	ingestChunkSize int
	ingestOverlap   int
	ingestWait      bool
	ingestJSON      bool
	statusJSON      bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [project] [file...]",
	Short: "Upload files and queue them for ingestion",
	Long: `Uploads each file into the project's upload directory and queues it for
chunking. Chunks are embedded into the project's vector collection by a worker.

Re-ingesting a file replaces its previous chunks.

With --wait, the queue is processed in this process and the final state of
each file is printed.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runIngest,
}

var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show the ingestion state of a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	ingestCmd.Flags().IntVar(&ingestChunkSize, "chunk-size", domain.DefaultChunkSize, "maximum characters per chunk")
	ingestCmd.Flags().IntVar(&ingestOverlap, "overlap", domain.DefaultChunkOverlap, "characters shared by adjacent chunks")
	ingestCmd.Flags().BoolVarP(&ingestWait, "wait", "w", false, "process the queue before returning")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output results as JSON")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output status as JSON")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(statusCmd)
}

type ingestResult struct {
	File   string               `json:"file"`
	TaskID string               `json:"task_id"`
	Status *domain.IngestStatus `json:"status,omitempty"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}
	if ingestWait && workerService == nil {
		return errors.New("worker not configured")
	}

	ctx := cmd.Context()
	projectID := args[0]
	results := make([]ingestResult, 0, len(args)-1)

	for _, path := range args[1:] {
		taskID, err := ingestFile(cmd, projectID, path)
		if err != nil {
			return err
		}
		results = append(results, ingestResult{File: path, TaskID: taskID})
		if !ingestJSON {
			cmd.Printf("Queued %s as task %s\n", filepath.Base(path), taskID)
		}
	}

	if ingestWait {
		n, err := workerService.DrainQueue(ctx, domain.QueueFileProcessing)
		if err != nil {
			return fmt.Errorf("processing queue: %w", err)
		}
		if !ingestJSON {
			cmd.Println(mutedStyle.Render(fmt.Sprintf("Processed %d tasks", n)))
		}
		for i := range results {
			status, err := ingestService.Status(ctx, results[i].TaskID)
			if err != nil {
				return fmt.Errorf("status of %s: %w", results[i].File, err)
			}
			results[i].Status = status
			if !ingestJSON {
				printStatus(cmd, status)
			}
		}
	}

	if ingestJSON {
		return printJSON(cmd, results)
	}
	return nil
}

func ingestFile(cmd *cobra.Command, projectID, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	name, err := ingestService.Upload(cmd.Context(), projectID, filepath.Base(path), f)
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", path, err)
	}

	taskID, err := ingestService.Submit(cmd.Context(), domain.ChunkFileRequest{
		ProjectID: projectID,
		Filename:  name,
		ChunkSize: ingestChunkSize,
		Overlap:   ingestOverlap,
	})
	if err != nil {
		return "", fmt.Errorf("submitting %s: %w", path, err)
	}
	return taskID, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	status, err := ingestService.Status(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("getting status: %w", err)
	}

	if statusJSON {
		return printJSON(cmd, status)
	}
	printStatus(cmd, status)
	return nil
}

func printStatus(cmd *cobra.Command, status *domain.IngestStatus) {
	state := string(status.State)
	switch status.State {
	case domain.IngestReady:
		state = successStyle.Render(state)
	case domain.IngestFailed:
		state = errorStyle.Render(state)
	}

	cmd.Printf("%s: %s\n", status.TaskID, state)
	if status.FailedStage != "" {
		cmd.Printf("  Stage: %s\n", status.FailedStage)
	}
	if status.Chunks > 0 {
		cmd.Printf("  Chunks: %d (embedded %d, failed %d)\n", status.Chunks, status.Embedded, status.Failed)
	}
	if status.Partial {
		cmd.Println("  " + warningStyle.Render("Some chunks failed to embed"))
	}
	if status.Reason != "" {
		cmd.Printf("  Reason: %s\n", status.Reason)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
