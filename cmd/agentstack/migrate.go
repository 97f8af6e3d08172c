package main

import (
	"agentstack/internal/infra"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update database tables",
	Long:  `Enables the pgvector extension and migrates knowledge_base, job_status and chat_history.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDatabase(cfg, log, true)
		if err != nil {
			return err
		}
		return infra.CloseDatabase(db)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
