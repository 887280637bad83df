package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
)

var (
	searchLimit   int
	searchJSON    bool
	answerLimit   int
	answerJSON    bool
	answerHistory string
)

var searchCmd = &cobra.Command{
	Use:   "search [project] [query]",
	Short: "Search a project's documents",
	Long: `Embeds the query and returns the most similar chunks from the project's
vector collection, most relevant first.`,
	Args: cobra.ExactArgs(2),
	RunE: runSearch,
}

var answerCmd = &cobra.Command{
	Use:   "answer [project] [question]",
	Short: "Answer a question from a project's documents",
	Long: `Retrieves the chunks most relevant to the question and asks the
generation provider to answer from them. Nothing is generated when no
relevant chunks are found.

--history takes a JSON file holding earlier turns:
  [{"role": "user", "content": "..."}, {"role": "assistant", "content": "..."}]`,
	Args: cobra.ExactArgs(2),
	RunE: runAnswer,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", domain.DefaultTopK, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	answerCmd.Flags().IntVarP(&answerLimit, "limit", "n", domain.DefaultTopK, "number of chunks to retrieve")
	answerCmd.Flags().BoolVar(&answerJSON, "json", false, "output the answer as JSON")
	answerCmd.Flags().StringVar(&answerHistory, "history", "", "JSON file with prior conversation turns")
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(answerCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	results, err := retrievalService.Search(cmd.Context(), args[0], args[1], searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return printJSON(cmd, results)
	}
	return outputSearchTable(cmd, results)
}

func outputSearchTable(cmd *cobra.Command, results []domain.RetrievedChunk) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println(titleStyle.Render("Results:"))
	cmd.Println()
	for i := range results {
		source := results[i].SourcePath
		if source == "" {
			source = results[i].ID
		}
		cmd.Printf("  [%d] %s (%.2f)\n", i+1, source, results[i].Score)
		if snippet := snippet(results[i].Text, 160); snippet != "" {
			cmd.Printf("      %s\n", mutedStyle.Render(snippet))
		}
		cmd.Println()
	}
	return nil
}

func runAnswer(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	history, err := loadHistory(answerHistory)
	if err != nil {
		return err
	}

	answer, err := retrievalService.Answer(cmd.Context(), args[0], args[1], history, answerLimit)
	if errors.Is(err, domain.ErrNoRelevantDocuments) {
		if answerJSON {
			return printJSON(cmd, map[string]string{"error": err.Error()})
		}
		cmd.Println(warningStyle.Render("No relevant documents found."))
		return nil
	}
	if err != nil {
		return fmt.Errorf("answer failed: %w", err)
	}

	if answerJSON {
		return printJSON(cmd, answer)
	}

	cmd.Println(titleStyle.Render("Answer"))
	cmd.Println(answer.Text)
	cmd.Println()
	cmd.Println(subtitleStyle.Render("Sources"))
	for i := range answer.Sources {
		cmd.Printf("  [%d] %s (%.2f)\n", i+1, answer.Sources[i].SourcePath, answer.Sources[i].Score)
	}
	return nil
}

func loadHistory(path string) ([]domain.ChatMessage, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	var history []domain.ChatMessage
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("parsing history: %w", err)
	}
	return history, nil
}

// snippet flattens whitespace and truncates text to maxLen runes.
func snippet(text string, maxLen int) string {
	flat := strings.Join(strings.Fields(text), " ")
	runes := []rune(flat)
	if len(runes) <= maxLen {
		return flat
	}
	return string(runes[:maxLen-3]) + "..."
}
