package rag

import (
	"context"
	"errors"

	"agentstack/internal/config"
	"agentstack/internal/logger"
	"agentstack/internal/rag/parsers"
	"agentstack/pkg/httputil"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service 进程启动时组装一次的 RAG 组件集合，HTTP 与 Worker 共用
type Service struct {
	Store    VectorStore
	Ledger   JobLedger
	Pipeline *IngestionPipeline
	Batch    *BatchOrchestrator
	Searcher *Searcher
	Composer *RAGComposer

	// Embedder 查询路径使用，带缓存时为 CachedEmbedder
	Embedder Embedder

	logger *zap.Logger
}

// Components 可替换的外部依赖，为空的字段按配置创建
type Components struct {
	Source     DocumentSource
	Embeddings EmbeddingProvider
	Completion CompletionProvider
	Store      VectorStore
	Ledger     JobLedger
}

// NewService 按配置组装服务。db 在 vector_store.type=pgvector 时必须提供，rdb 可为空。
func NewService(cfg *config.Config, db *gorm.DB, rdb *redis.Client, comps Components, log *zap.Logger) (*Service, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ragCfg := cfg.RAG
	openaiCfg := OpenAIConfig{APIKey: cfg.AI.OpenAI.APIKey, BaseURL: cfg.AI.OpenAI.BaseURL}

	if comps.Source == nil {
		client := httputil.NewClient(httputil.WithTimeout(ragCfg.Ingest.FetchTimeout))
		comps.Source = parsers.NewFetcher(client, parsers.NewParserRegistry(), parsers.FetcherConfig{
			Timeout:         ragCfg.Ingest.FetchTimeout,
			MaxBytes:        ragCfg.Ingest.MaxDownloadBytes,
			AllowLocalFiles: ragCfg.Ingest.AllowLocalFiles,
		})
	}
	if comps.Embeddings == nil {
		comps.Embeddings = NewOpenAIEmbeddingProvider(openaiCfg, ragCfg.Embedding.Model, ragCfg.Embedding.Dimensions)
	}
	if comps.Completion == nil {
		comps.Completion = NewOpenAICompletionProvider(openaiCfg)
	}
	if comps.Store == nil {
		switch ragCfg.VectorStore.Type {
		case "memory":
			comps.Store = NewMemoryVectorStore(ragCfg.Embedding.Dimensions)
		default:
			if db == nil {
				return nil, errors.New("pgvector 向量存储需要数据库连接")
			}
			comps.Store = NewPGVectorStore(db, ragCfg.Embedding.Dimensions)
		}
	}
	if comps.Ledger == nil {
		if db == nil {
			return nil, errors.New("任务台账需要数据库连接")
		}
		comps.Ledger = NewGormJobLedger(db)
	}

	generator := NewEmbeddingGenerator(comps.Embeddings, EmbeddingGeneratorConfig{
		Dimensions:    ragCfg.Embedding.Dimensions,
		MaxInputChars: ragCfg.Embedding.MaxInputChars,
		BatchSize:     ragCfg.Embedding.BatchSize,
		Timeout:       ragCfg.Embedding.Timeout,
		Retry: RetryPolicy{
			MaxAttempts:    ragCfg.Embedding.MaxAttempts,
			InitialBackoff: ragCfg.Embedding.InitialBackoff,
			MaxBackoff:     ragCfg.Embedding.MaxBackoff,
		},
	}, log.Named("embedding"))

	// 文档摘要几乎不会重复，缓存只用于查询
	var queryEmbedder Embedder = generator
	if ragCfg.Cache.Enabled {
		cache := NewEmbeddingCache(rdb, ragCfg.Cache.Prefix, ragCfg.Cache.TTL, log.Named("embedding_cache"))
		queryEmbedder = NewCachedEmbedder(generator, cache)
	}

	pipeline := NewIngestionPipeline(comps.Source, generator, comps.Store, comps.Ledger, ragCfg.Ingest.SummaryChars, log.Named("ingest")).
		WithChunker(NewChunker(ragCfg.Chunk.Size, ragCfg.Chunk.Overlap))

	batch, err := NewBatchOrchestrator(pipeline, comps.Ledger, cfg.Worker.BatchConcurrency, log.Named("batch"))
	if err != nil {
		return nil, err
	}

	searcher := NewSearcher(queryEmbedder, comps.Store, log.Named("search"))
	composer := NewRAGComposer(searcher, comps.Completion, ComposerConfig{
		Model:        ragCfg.Answer.Model,
		Limit:        ragCfg.Answer.Limit,
		Threshold:    ragCfg.Answer.Threshold,
		PassageChars: ragCfg.Answer.PassageChars,
		Temperature:  ragCfg.Answer.Temperature,
		MaxTokens:    ragCfg.Answer.MaxTokens,
		Timeout:      ragCfg.Answer.Timeout,
	}, log.Named("composer"))

	log.Info("RAG 服务已初始化",
		zap.String("embedding_provider", comps.Embeddings.GetProviderName()),
		zap.String("embedding_model", generator.Model()),
		zap.Int("dimensions", generator.Dimensions()))

	return &Service{
		Store:    comps.Store,
		Ledger:   comps.Ledger,
		Pipeline: pipeline,
		Batch:    batch,
		Searcher: searcher,
		Composer: composer,
		Embedder: queryEmbedder,
		logger:   log,
	}, nil
}

// Close 释放批量协程池
func (s *Service) Close() {
	if s.Batch != nil {
		s.Batch.Release()
	}
}

// Search 带台账的语义检索，taskID 为空时不记录
func (s *Service) Search(ctx context.Context, taskID, query string, limit int, threshold float64) ([]SearchResult, error) {
	input := map[string]any{"query": query, "limit": limit, "threshold": threshold}
	var results []SearchResult
	err := s.track(ctx, taskID, JobKindSearch, input, func() (any, error) {
		var err error
		results, err = s.Searcher.SearchText(ctx, query, limit, threshold)
		return results, err
	})
	return results, err
}

// Answer 带台账的 RAG 问答，taskID 为空时不记录
func (s *Service) Answer(ctx context.Context, taskID string, req AnswerRequest) (*Answer, error) {
	var answer *Answer
	err := s.track(ctx, taskID, JobKindRAGQuery, req, func() (any, error) {
		var err error
		answer, err = s.Composer.Answer(ctx, req)
		return answer, err
	})
	return answer, err
}

// track 在台账中记录 fn 的开始与结果；台账写入失败不影响 fn 的结果
func (s *Service) track(ctx context.Context, taskID string, kind JobKind, input any, fn func() (any, error)) error {
	if taskID == "" {
		_, err := fn()
		return err
	}
	log := logger.FromContext(ctx, s.logger).With(zap.String("task_id", taskID))

	if err := s.Ledger.Begin(ctx, taskID, kind, input); err != nil {
		log.Warn("记录任务开始失败", zap.Error(err))
	}
	result, err := fn()
	if err != nil {
		if lerr := s.Ledger.MarkFailed(context.WithoutCancel(ctx), taskID, err.Error()); lerr != nil {
			log.Warn("记录任务失败状态失败", zap.Error(lerr))
		}
		return err
	}
	if lerr := s.Ledger.MarkSuccess(ctx, taskID, result); lerr != nil {
		log.Warn("记录任务成功失败", zap.Error(lerr))
	}
	return nil
}
