package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	projectPage     int
	projectPageSize int
	projectJSON     bool
	projectYes      bool
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Args:  cobra.NoArgs,
	RunE:  runProjectList,
}

var projectResetCmd = &cobra.Command{
	Use:   "reset [project]",
	Short: "Delete a project's chunks and vectors",
	Long: `Removes every chunk and the vector collection of a project. Uploaded
files are kept and can be ingested again.`,
	Args: cobra.ExactArgs(1),
	RunE: runProjectReset,
}

func init() {
	projectListCmd.Flags().IntVar(&projectPage, "page", 1, "page number")
	projectListCmd.Flags().IntVar(&projectPageSize, "page-size", 20, "projects per page")
	projectListCmd.Flags().BoolVar(&projectJSON, "json", false, "output projects as JSON")
	projectResetCmd.Flags().BoolVarP(&projectYes, "yes", "y", false, "skip confirmation")
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectResetCmd)
	rootCmd.AddCommand(projectCmd)
}

func runProjectList(cmd *cobra.Command, _ []string) error {
	if projectService == nil {
		return errors.New("project service not configured")
	}

	projects, pages, err := projectService.List(cmd.Context(), projectPage, projectPageSize)
	if err != nil {
		return fmt.Errorf("listing projects: %w", err)
	}

	if projectJSON {
		return printJSON(cmd, map[string]any{
			"projects": projects,
			"page":     projectPage,
			"pages":    pages,
		})
	}

	if len(projects) == 0 {
		cmd.Println("No projects found.")
		return nil
	}
	for i := range projects {
		cmd.Printf("  %s  %s\n", projects[i].ProjectID,
			mutedStyle.Render(projects[i].CreatedAt.Format("2006-01-02 15:04")))
	}
	if pages > 1 {
		cmd.Println(mutedStyle.Render(fmt.Sprintf("Page %d of %d", projectPage, pages)))
	}
	return nil
}

func runProjectReset(cmd *cobra.Command, args []string) error {
	if projectService == nil {
		return errors.New("project service not configured")
	}
	projectID := args[0]

	if !projectYes {
		cmd.Printf("Delete all chunks and vectors of %s? [y/N]: ", projectID)
		answer := readLine(bufio.NewReader(cmd.InOrStdin()))
		if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
			cmd.Println("Aborted.")
			return nil
		}
	}

	removed, err := projectService.Reset(cmd.Context(), projectID)
	if err != nil {
		return fmt.Errorf("resetting %s: %w", projectID, err)
	}
	cmd.Println(successStyle.Render(fmt.Sprintf("Removed %d chunks from %s", removed, projectID)))
	return nil
}
