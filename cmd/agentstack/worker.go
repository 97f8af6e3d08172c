package main

import (
	"os/signal"
	"syscall"

	"agentstack/internal/worker"
	"agentstack/internal/worker/handlers"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background task worker",
	Long: `Consumes ingest, batch ingest, semantic search and RAG query tasks
from the Redis-backed queue until interrupted.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func newWorkerServer(a *app) *worker.Server {
	svc := a.container.RAG
	ragHandler := handlers.NewRAGHandler(svc.Pipeline, svc.Batch, svc, a.log.Named("worker"))
	return worker.NewServer(a.cfg.Redis, a.cfg.Worker, ragHandler, a.log)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	a.startCollector(ctx)

	srv := newWorkerServer(a)
	if err := srv.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	srv.Shutdown()
	return nil
}
