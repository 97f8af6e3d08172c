package rag

import (
	"context"
	"fmt"
	"sort"
	"time"

	"agentstack/internal/logger"
	"agentstack/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultSearchLimit     = 5
	DefaultSearchThreshold = 0.7
)

// Searcher 语义检索：查询向量化 + 向量库排序
type Searcher struct {
	embedder Embedder
	store    VectorStore
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewSearcher 创建检索服务
func NewSearcher(embedder Embedder, store VectorStore, log *zap.Logger) *Searcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Searcher{
		embedder: embedder,
		store:    store,
		logger:   log,
		tracer:   otel.Tracer("agentstack/internal/rag/search"),
	}
}

// SearchText 对查询文本向量化后检索
func (s *Searcher) SearchText(ctx context.Context, query string, limit int, threshold float64) ([]SearchResult, error) {
	if err := validateSearchArgs(limit, threshold); err != nil {
		return nil, err
	}
	if limit == 0 {
		return []SearchResult{}, nil
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.Search(ctx, vector, limit, threshold)
}

// Search 按查询向量检索。
// 结果满足 similarity > threshold、按相似度非递增排序且不超过 limit 条；
// limit 为 0 时直接返回空结果。
func (s *Searcher) Search(ctx context.Context, query []float32, limit int, threshold float64) ([]SearchResult, error) {
	if err := validateSearchArgs(limit, threshold); err != nil {
		return nil, err
	}
	if limit == 0 {
		return []SearchResult{}, nil
	}

	ctx, span := s.tracer.Start(ctx, "Searcher.Search")
	defer span.End()
	span.SetAttributes(
		attribute.Int("limit", limit),
		attribute.Float64("threshold", threshold),
	)

	start := time.Now()
	results, err := s.store.SearchKnowledge(ctx, query, threshold, limit)
	if err != nil {
		err = newError(KindSearch, "search", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		metrics.ObserveSearch(start, 0, err)
		return nil, err
	}

	results = rankResults(results, limit, threshold)
	metrics.ObserveSearch(start, len(results), nil)
	span.SetAttributes(attribute.Int("results", len(results)))

	logger.FromContext(ctx, s.logger).Debug("语义检索完成",
		zap.Int("results", len(results)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return results, nil
}

func validateSearchArgs(limit int, threshold float64) error {
	if limit < 0 {
		return newError(KindValidation, "search", fmt.Errorf("limit 不能为负数: %d", limit))
	}
	if threshold < 0 || threshold > 1 {
		return newError(KindValidation, "search", fmt.Errorf("threshold 必须在 [0, 1] 范围内: %v", threshold))
	}
	return nil
}

// rankResults 过滤、排序并截断，不依赖存储后端是否已经做过
func rankResults(results []SearchResult, limit int, threshold float64) []SearchResult {
	filtered := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if r.Similarity > threshold {
			filtered = append(filtered, r)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Similarity > filtered[j].Similarity
	})
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}
