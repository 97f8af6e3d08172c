package worker

import (
	"context"

	"agentstack/internal/config"
	"agentstack/internal/infra/queue"
	"agentstack/internal/worker/handlers"
	"agentstack/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

func NewServer(
	redisCfg config.RedisConfig,
	workerCfg config.WorkerConfig,
	ragHandler *handlers.RAGHandler,
	logger *zap.Logger,
) *Server {
	srv := asynq.NewServer(queue.RedisOpt(redisCfg), serverConfig(workerCfg, logger))

	mux := asynq.NewServeMux()
	ragHandler.Register(mux)

	return &Server{
		server: srv,
		mux:    mux,
		logger: logger,
	}
}

// serverConfig 并发与队列权重取自配置，缺省时查询队列优先
func serverConfig(cfg config.WorkerConfig, logger *zap.Logger) asynq.Config {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	queues := cfg.Queues
	if len(queues) == 0 {
		queues = map[string]int{
			tasks.QueueQuery:   6,
			tasks.QueueIngest:  3,
			tasks.QueueDefault: 1,
		}
	}

	return asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			id, _ := asynq.GetTaskID(ctx)
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error("任务执行失败",
				zap.String("task_id", id),
				zap.String("type", task.Type()),
				zap.Int("retried", retried),
				zap.Int("max_retry", maxRetry),
				zap.Error(err),
			)
		}),
	}
}

// Run 启动 Worker 服务器
func (s *Server) Run() error {
	s.logger.Info("Worker 服务器启动中...")
	return s.server.Run(s.mux)
}

// Start 非阻塞启动
func (s *Server) Start() error {
	s.logger.Info("Worker 服务器启动中 (后台)...")
	return s.server.Start(s.mux)
}

// Shutdown 停止 Worker 服务器
func (s *Server) Shutdown() {
	s.logger.Info("Worker 服务器停止中...")
	s.server.Shutdown()
}
