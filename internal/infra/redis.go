package infra

import (
	"context"
	"fmt"
	"time"

	"agentstack/internal/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// InitRedis 初始化 Redis 连接（单节点）
func InitRedis(ctx context.Context, cfg *config.RedisConfig, log *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	log.Info("Redis 连接成功",
		zap.String("addr", cfg.Addr()),
		zap.Int("db", cfg.DB),
	)
	return rdb, nil
}

// HealthCheckRedis Redis 健康检查
func HealthCheckRedis(ctx context.Context, rdb *redis.Client) error {
	if rdb == nil {
		return fmt.Errorf("Redis 未初始化")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return rdb.Ping(ctx).Err()
}
