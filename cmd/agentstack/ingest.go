package main

import (
	"encoding/json"
	"fmt"

	"agentstack/internal/infra/queue"
	"agentstack/internal/worker/tasks"

	"github.com/spf13/cobra"
)

var ingestMetadata string

var ingestCmd = &cobra.Command{
	Use:   "ingest [source-url...]",
	Short: "Enqueue documents for ingestion",
	Long: `Enqueues one ingest task for a single URL, or one batch task for several.
Prints the task ID, which can be polled at GET /api/jobs/{task_id}.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestMetadata, "metadata", "", "JSON object merged into document metadata")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	var metadata map[string]any
	if ingestMetadata != "" {
		if err := json.Unmarshal([]byte(ingestMetadata), &metadata); err != nil {
			return fmt.Errorf("invalid --metadata: %w", err)
		}
	}

	client := queue.NewClient(cfg.Redis, cfg.Worker)
	defer client.Close()

	var taskID string
	if len(args) == 1 {
		taskID, err = client.EnqueueIngest(cmd.Context(), tasks.IngestDocumentPayload{SourceURL: args[0], Metadata: metadata})
	} else {
		taskID, err = client.EnqueueBatch(cmd.Context(), tasks.IngestBatchPayload{SourceURLs: args, Metadata: metadata})
	}
	if err != nil {
		return err
	}
	cmd.Println(taskID)
	return nil
}
