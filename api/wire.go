package api

import (
	"context"
	"fmt"

	raghandler "agentstack/api/handlers/rag"
	"agentstack/internal/config"
	"agentstack/internal/infra"
	"agentstack/internal/infra/queue"
	"agentstack/internal/middleware"
	"agentstack/internal/rag"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AppContainer 进程级依赖，HTTP 服务与 Worker 共用同一份组装逻辑
type AppContainer struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client
	Queue  queue.Client
	RAG    *rag.Service
	Logger *zap.Logger

	limiter *middleware.RateLimiter
}

// Handlers HTTP 处理器集合
type Handlers struct {
	RAG *raghandler.Handler
}

// InitContainer 连接 Redis 并组装 RAG 服务。db 由调用方负责打开与关闭。
// Redis 不可用时降级为无二级缓存，队列客户端仍按配置创建，入队时才会报错。
func InitContainer(ctx context.Context, db *gorm.DB, cfg *config.Config, log *zap.Logger) (*AppContainer, error) {
	c := &AppContainer{
		Config: cfg,
		DB:     db,
		Logger: log,
	}

	if cfg.RAG.Cache.Enabled {
		rdb, err := infra.InitRedis(ctx, &cfg.Redis, log)
		if err != nil {
			log.Warn("Redis 连接失败，向量缓存仅使用进程内缓存", zap.Error(err))
		} else {
			c.Redis = rdb
		}
	}

	svc, err := rag.NewService(cfg, db, c.Redis, rag.Components{}, log.Named("rag"))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("初始化 RAG 服务失败: %w", err)
	}
	c.RAG = svc
	c.Queue = queue.NewClient(cfg.Redis, cfg.Worker)
	return c, nil
}

// InitHandlers 创建处理器
func (c *AppContainer) InitHandlers() *Handlers {
	return &Handlers{
		RAG: raghandler.NewHandler(c.Queue, c.RAG, c.RAG.Ledger, c.RAG.Store, c.Logger.Named("http")),
	}
}

// Close 释放容器持有的连接，数据库除外
func (c *AppContainer) Close() {
	if c.limiter != nil {
		c.limiter.Stop()
	}
	if c.RAG != nil {
		c.RAG.Close()
	}
	if c.Queue != nil {
		if err := c.Queue.Close(); err != nil {
			c.Logger.Warn("关闭队列客户端失败", zap.Error(err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("关闭 Redis 失败", zap.Error(err))
		}
	}
}
