package main

import (
	"context"
	"fmt"
	"time"

	"agentstack/api"
	"agentstack/internal/config"
	"agentstack/internal/infra"
	"agentstack/internal/logger"
	"agentstack/internal/metrics"
	"agentstack/internal/rag"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app 各子命令共用的启动结果
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	db        *gorm.DB
	container *api.AppContainer
}

// loadConfig 加载配置并初始化全局日志
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(appEnv, configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}
	log, err := logger.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, log, nil
}

// openDatabase 连接数据库，按配置执行迁移
func openDatabase(cfg *config.Config, log *zap.Logger, migrate bool) (*gorm.DB, error) {
	db, err := infra.InitDatabase(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}
	if migrate {
		if err := infra.AutoMigrate(db, log, rag.AllModels()...); err != nil {
			_ = infra.CloseDatabase(db)
			return nil, err
		}
	}
	return db, nil
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log.Info("应用启动中...",
		zap.String("env", appEnv),
		zap.String("mode", cfg.Server.Mode),
		zap.String("vector_store", cfg.RAG.VectorStore.Type),
	)

	db, err := openDatabase(cfg, log, cfg.Database.AutoMigrate)
	if err != nil {
		return nil, err
	}

	container, err := api.InitContainer(ctx, db, cfg, log)
	if err != nil {
		_ = infra.CloseDatabase(db)
		return nil, err
	}

	return &app{cfg: cfg, log: log, db: db, container: container}, nil
}

// startCollector 后台采集连接池与运行时指标，随 ctx 结束
func (a *app) startCollector(ctx context.Context) {
	sqlDB, err := a.db.DB()
	if err != nil {
		a.log.Warn("获取 SQL DB 失败，跳过连接池指标", zap.Error(err))
		sqlDB = nil
	}
	go metrics.NewSystemCollector(sqlDB, 15*time.Second).Run(ctx)
}

func (a *app) close() {
	a.container.Close()
	if err := infra.CloseDatabase(a.db); err != nil {
		a.log.Error("数据库关闭异常", zap.Error(err))
	}
	_ = logger.Sync()
}
