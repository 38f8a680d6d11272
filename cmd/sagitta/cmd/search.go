package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sagittacore/sagitta/internal/output"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	repository  string
	branch      string
	limit       int
	language    string
	elementType string
	jsonOutput  bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a registered repository's indexed branch",
		Long: `Run the embed -> vector search -> re-rank pipeline against a registered
repository's branch collection.

Examples:
  sagitta search "authentication middleware" --repository api
  sagitta search "handleRequest" --repository api --language go --limit 5
  sagitta search "error handling" --repository api --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd, query, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.repository, "repository", "r", "", "Registered repository name (required)")
	cmd.Flags().StringVarP(&opts.branch, "branch", "b", "", "Branch to search (defaults to the repository's active branch)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Filter by language (e.g., go, python)")
	cmd.Flags().StringVarP(&opts.elementType, "element-type", "e", "", "Filter by element type (e.g., function, class)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	_ = cmd.MarkFlagRequired("repository")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	result, err := invokeTool(cmd, "semantic_search", map[string]any{
		"repository_name": opts.repository,
		"branch_name":      opts.branch,
		"query_text":       query,
		"limit":            opts.limit,
		"language":         opts.language,
		"element_type":     opts.elementType,
	})
	if err != nil {
		return err
	}

	hits, _ := result["results"].([]map[string]any)
	if opts.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}

	out := output.New(cmd.OutOrStdout())
	if len(hits) == 0 {
		out.Status("", "No results")
		return nil
	}
	for i, h := range hits {
		out.Statusf("", "%d. %s:%v-%v (score %.3f)", i+1, h["file_path"], h["start_line"], h["end_line"], h["score"])
		if snippet, ok := h["snippet"].(string); ok {
			out.Status("", fmt.Sprintf("   %s", firstLine(snippet)))
		}
	}
	return nil
}

// firstLine returns s up to its first newline, for a compact one-line
// preview under a search hit.
func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx != -1 {
		return s[:idx]
	}
	return s
}
