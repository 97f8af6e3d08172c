package logger

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var globalLogger = zap.NewNop()

// 上下文键
type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	taskIDKey  contextKey = "task_id"
)

// New 按配置构建 Logger
func New(level, format, outputPath string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if format == "json" {
		encoderConfig = zap.NewProductionEncoderConfig()
	} else {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var writer zapcore.WriteSyncer
	switch outputPath {
	case "", "stdout":
		writer = zapcore.AddSync(os.Stdout)
	case "stderr":
		writer = zapcore.AddSync(os.Stderr)
	default:
		file, err := os.OpenFile(outputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("打开日志文件失败: %w", err)
		}
		writer = zapcore.AddSync(file)
	}

	var encoder zapcore.Encoder
	if format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, writer, zapLevel)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// Init 初始化进程级日志，仅供启动流程和基础设施适配器使用
func Init(level, format, outputPath string) (*zap.Logger, error) {
	l, err := New(level, format, outputPath)
	if err != nil {
		return nil, err
	}
	globalLogger = l
	return l, nil
}

// Get 获取全局 Logger（未初始化时为 Nop）
func Get() *zap.Logger {
	return globalLogger
}

// WithTraceID 创建带 TraceID 的上下文
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID 从上下文获取 TraceID
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// WithTaskID 记录当前任务 ID
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskIDKey, taskID)
}

// GetTaskID 从上下文获取任务 ID
func GetTaskID(ctx context.Context) string {
	if taskID, ok := ctx.Value(taskIDKey).(string); ok {
		return taskID
	}
	return ""
}

// FromContext 在给定 Logger 上附加上下文中的 trace_id / task_id
func FromContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = globalLogger
	}
	if traceID := GetTraceID(ctx); traceID != "" {
		base = base.With(zap.String("trace_id", traceID))
	}
	if taskID := GetTaskID(ctx); taskID != "" {
		base = base.With(zap.String("task_id", taskID))
	}
	return base
}

// Info 便捷方法
func Info(msg string, fields ...zap.Field) {
	globalLogger.Info(msg, fields...)
}

// Warn 便捷方法
func Warn(msg string, fields ...zap.Field) {
	globalLogger.Warn(msg, fields...)
}

// Error 便捷方法
func Error(msg string, fields ...zap.Field) {
	globalLogger.Error(msg, fields...)
}

// Sync 刷新日志缓冲区
func Sync() error {
	return globalLogger.Sync()
}
