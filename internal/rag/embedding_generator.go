package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agentstack/internal/logger"
	"agentstack/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// EmbeddingGeneratorConfig 向量生成参数
type EmbeddingGeneratorConfig struct {
	Dimensions    int           // 输出维度，需与 knowledge_base.embedding 一致
	MaxInputChars int           // 单条输入截断长度（近似模型 token 上限）
	BatchSize     int           // 每次请求的最大条数
	Timeout       time.Duration // 单次请求超时
	Retry         RetryPolicy
}

// DefaultEmbeddingGeneratorConfig 默认配置
func DefaultEmbeddingGeneratorConfig() EmbeddingGeneratorConfig {
	return EmbeddingGeneratorConfig{
		Dimensions:    EmbeddingDimensions,
		MaxInputChars: 30000,
		BatchSize:     100,
		Timeout:       60 * time.Second,
		Retry:         DefaultRetryPolicy(),
	}
}

// EmbeddingGenerator 在 EmbeddingProvider 之上实现截断、分批、重试与维度校验
type EmbeddingGenerator struct {
	provider EmbeddingProvider
	cfg      EmbeddingGeneratorConfig
	logger   *zap.Logger
	tracer   trace.Tracer
	sleep    sleepFunc
}

// NewEmbeddingGenerator 创建向量生成器，非法参数回退为默认值
func NewEmbeddingGenerator(provider EmbeddingProvider, cfg EmbeddingGeneratorConfig, log *zap.Logger) *EmbeddingGenerator {
	def := DefaultEmbeddingGeneratorConfig()
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = def.Dimensions
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = def.MaxInputChars
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = def.Retry
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &EmbeddingGenerator{
		provider: provider,
		cfg:      cfg,
		logger:   log,
		tracer:   otel.Tracer("agentstack/internal/rag/embedding"),
		sleep:    sleepContext,
	}
}

// Model 当前向量模型
func (g *EmbeddingGenerator) Model() string {
	return g.provider.GetModel()
}

// Dimensions 输出向量维度
func (g *EmbeddingGenerator) Dimensions() int {
	return g.cfg.Dimensions
}

// Embed 单条文本向量化
func (g *EmbeddingGenerator) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 批量向量化，结果顺序与输入一致
func (g *EmbeddingGenerator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, newError(KindValidation, "embed", fmt.Errorf("第 %d 条: %w", i, ErrEmptyText))
		}
	}

	ctx, span := g.tracer.Start(ctx, "EmbeddingGenerator.EmbedBatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("model", g.Model()),
		attribute.Int("texts", len(texts)),
	)

	start := time.Now()
	defer func() {
		metrics.EmbeddingDuration.WithLabelValues(g.Model()).Observe(time.Since(start).Seconds())
	}()

	result := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += g.cfg.BatchSize {
		end := i + g.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		group := make([]string, end-i)
		for j, text := range texts[i:end] {
			group[j] = truncateRunes(text, g.cfg.MaxInputChars)
		}

		vectors, err := g.embedWithRetry(ctx, group)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "embedding failed")
			return nil, newError(KindEmbedding, "embed", fmt.Errorf("batch %d-%d: %w", i, end, err))
		}
		result = append(result, vectors...)
	}

	return result, nil
}

// embedWithRetry 对一组文本调用 provider，失败按 RetryPolicy 退避重试
func (g *EmbeddingGenerator) embedWithRetry(ctx context.Context, group []string) ([][]float32, error) {
	log := logger.FromContext(ctx, g.logger)
	model := g.Model()

	for attempt := 1; ; attempt++ {
		vectors, err := g.callProvider(ctx, group)
		if err == nil {
			metrics.EmbeddingRequestsTotal.WithLabelValues(model, "success").Inc()
			return vectors, nil
		}
		metrics.EmbeddingRequestsTotal.WithLabelValues(model, "failed").Inc()

		if !g.cfg.Retry.ShouldRetry(err, attempt) {
			return nil, fmt.Errorf("%d 次尝试后失败: %w", attempt, err)
		}

		wait := g.cfg.Retry.Backoff(attempt)
		log.Warn("向量服务调用失败，准备重试",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		metrics.EmbeddingRetriesTotal.WithLabelValues(model).Inc()

		if sleepErr := g.sleep(ctx, wait); sleepErr != nil {
			return nil, fmt.Errorf("等待重试时上下文结束: %w: %w", sleepErr, err)
		}
	}
}

func (g *EmbeddingGenerator) callProvider(ctx context.Context, group []string) ([][]float32, error) {
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	vectors, err := g.provider.EmbedBatch(ctx, group)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(group) {
		return nil, fmt.Errorf("%w: 期望%d, 实际%d", ErrProviderMismatched, len(group), len(vectors))
	}
	for _, vec := range vectors {
		if len(vec) != g.cfg.Dimensions {
			return nil, fmt.Errorf("%w: 期望%d, 实际%d", ErrDimensionMismatch, g.cfg.Dimensions, len(vec))
		}
	}
	return vectors, nil
}

// truncateRunes 按字符截断
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}
