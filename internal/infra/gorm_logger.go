package infra

import (
	"context"
	"errors"
	"time"

	"agentstack/internal/logger"

	"go.uber.org/zap"
	gormLogger "gorm.io/gorm/logger"
)

// GormZapLogger GORM 日志适配器（输出到 Zap）
type GormZapLogger struct {
	ZapLogger                 *zap.Logger
	LogLevel                  gormLogger.LogLevel
	SlowThreshold             time.Duration
	IgnoreRecordNotFoundError bool
}

// NewGormZapLogger 创建适配器，默认忽略 RecordNotFound
func NewGormZapLogger(log *zap.Logger, level gormLogger.LogLevel, slow time.Duration) *GormZapLogger {
	return &GormZapLogger{
		ZapLogger:                 log,
		LogLevel:                  level,
		SlowThreshold:             slow,
		IgnoreRecordNotFoundError: true,
	}
}

// LogMode 设置日志级别
func (l *GormZapLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

func (l *GormZapLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Info {
		logger.FromContext(ctx, l.ZapLogger).Sugar().Infof(msg, data...)
	}
}

func (l *GormZapLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Warn {
		logger.FromContext(ctx, l.ZapLogger).Sugar().Warnf(msg, data...)
	}
}

func (l *GormZapLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Error {
		logger.FromContext(ctx, l.ZapLogger).Sugar().Errorf(msg, data...)
	}
}

// Trace SQL 执行日志
func (l *GormZapLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormLogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	log := logger.FromContext(ctx, l.ZapLogger)

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", truncateSQL(sql)),
		zap.Int64("rows", rows),
	}

	if err != nil && (!errors.Is(err, gormLogger.ErrRecordNotFound) || !l.IgnoreRecordNotFoundError) {
		log.Error("SQL 执行错误", append(fields, zap.Error(err))...)
		return
	}

	if l.SlowThreshold > 0 && elapsed > l.SlowThreshold {
		log.Warn("SQL 慢查询", fields...)
		return
	}

	if l.LogLevel >= gormLogger.Info {
		log.Debug("SQL 执行", fields...)
	}
}

// truncateSQL 向量参数会让 SQL 变得很长，只保留前 512 个字符
func truncateSQL(sql string) string {
	const max = 512
	if len(sql) <= max {
		return sql
	}
	return sql[:max] + "..."
}
