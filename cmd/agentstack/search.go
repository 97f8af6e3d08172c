package main

import (
	"encoding/json"
	"fmt"

	"agentstack/internal/rag"

	"github.com/spf13/cobra"
)

var (
	searchLimit     int
	searchThreshold float64
	searchJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search ingested documents",
	Long:  `Embeds the query and returns documents whose cosine similarity exceeds the threshold.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", rag.DefaultSearchLimit, "maximum number of results")
	searchCmd.Flags().Float64VarP(&searchThreshold, "threshold", "t", rag.DefaultSearchThreshold, "minimum similarity (0-1)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	results, err := a.container.RAG.Search(cmd.Context(), "", args[0], searchLimit, searchThreshold)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	for i, r := range results {
		name := r.Filename
		if name == "" {
			name = r.DocumentID
		}
		cmd.Printf("[%d] %s (%.3f)\n", i+1, name, r.Similarity)
	}
	return nil
}
