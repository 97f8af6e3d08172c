package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"agentstack/api"
	docs "agentstack/api/docs"
	"agentstack/internal/worker"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveWithWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Starts the HTTP API that accepts ingestion, search and RAG query requests.
With --with-worker the task worker runs in the same process.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWithWorker, "with-worker", false, "also run the task worker in this process")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	a.startCollector(ctx)

	docs.SwaggerInfo.Host = fmt.Sprintf("localhost:%d", a.cfg.Server.Port)

	handlers := a.container.InitHandlers()
	router := api.SetupRouter(a.container, handlers)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(a.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(a.cfg.Server.WriteTimeout) * time.Second,
	}

	var workerServer *worker.Server
	if serveWithWorker {
		workerServer = newWorkerServer(a)
		if err := workerServer.Start(); err != nil {
			return fmt.Errorf("Worker 服务器启动失败: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("HTTP 服务器启动", zap.Int("port", a.cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		a.log.Error("HTTP 服务器启动失败", zap.Error(err))
		stop()
	}

	gracefulShutdown(a.log, server, workerServer)
	return nil
}

// gracefulShutdown 优雅关闭
func gracefulShutdown(log *zap.Logger, server *http.Server, workerServer *worker.Server) {
	log.Info("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("服务器关闭异常", zap.Error(err))
	}
	if workerServer != nil {
		workerServer.Shutdown()
	}

	log.Info("服务器已安全关闭")
}
