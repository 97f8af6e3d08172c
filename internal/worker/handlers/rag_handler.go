package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"agentstack/internal/logger"
	"agentstack/internal/metrics"
	"agentstack/internal/rag"
	"agentstack/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// DocumentIngester 单篇摄取
type DocumentIngester interface {
	Ingest(ctx context.Context, taskID, sourceURL string, metadata map[string]any) (*rag.IngestResult, error)
}

// BatchIngester 批量摄取
type BatchIngester interface {
	IngestBatch(ctx context.Context, taskID string, sourceURLs []string, metadata map[string]any) (*rag.BatchResult, error)
}

// QueryService 检索与问答，均按 taskID 写入台账
type QueryService interface {
	Search(ctx context.Context, taskID, query string, limit int, threshold float64) ([]rag.SearchResult, error)
	Answer(ctx context.Context, taskID string, req rag.AnswerRequest) (*rag.Answer, error)
}

// RAGHandler 四类 RAG 任务的处理器
type RAGHandler struct {
	ingester DocumentIngester
	batch    BatchIngester
	query    QueryService
	logger   *zap.Logger
}

// NewRAGHandler 创建处理器
func NewRAGHandler(ingester DocumentIngester, batch BatchIngester, query QueryService, log *zap.Logger) *RAGHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RAGHandler{
		ingester: ingester,
		batch:    batch,
		query:    query,
		logger:   log,
	}
}

// Register 注册到 ServeMux
func (h *RAGHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(tasks.TypeIngestDocument, h.HandleIngestDocument)
	mux.HandleFunc(tasks.TypeIngestBatch, h.HandleIngestBatch)
	mux.HandleFunc(tasks.TypeSemanticSearch, h.HandleSemanticSearch)
	mux.HandleFunc(tasks.TypeRAGQuery, h.HandleRAGQuery)
}

func (h *RAGHandler) HandleIngestDocument(ctx context.Context, t *asynq.Task) error {
	var p tasks.IngestDocumentPayload
	if err := tasks.Decode(t.Payload(), &p); err != nil {
		return skipRetry(err)
	}

	ctx, log := h.taskContext(ctx, t)
	log.Info("开始处理文档摄取任务", zap.String("source_url", p.SourceURL))

	return metrics.ObserveTask(t.Type(), func() error {
		res, err := h.ingester.Ingest(ctx, taskID(ctx), p.SourceURL, p.Metadata)
		if err != nil {
			return classify(err)
		}
		writeResult(t, log, res)
		return nil
	})
}

func (h *RAGHandler) HandleIngestBatch(ctx context.Context, t *asynq.Task) error {
	var p tasks.IngestBatchPayload
	if err := tasks.Decode(t.Payload(), &p); err != nil {
		return skipRetry(err)
	}

	ctx, log := h.taskContext(ctx, t)
	log.Info("开始处理批量摄取任务", zap.Int("total", len(p.SourceURLs)))

	return metrics.ObserveTask(t.Type(), func() error {
		res, err := h.batch.IngestBatch(ctx, taskID(ctx), p.SourceURLs, p.Metadata)
		if err != nil {
			// 单条失败已在结果中隔离，走到这里只可能是超时或取消
			return skipRetry(err)
		}
		writeResult(t, log, res)
		return nil
	})
}

func (h *RAGHandler) HandleSemanticSearch(ctx context.Context, t *asynq.Task) error {
	var p tasks.SemanticSearchPayload
	if err := tasks.Decode(t.Payload(), &p); err != nil {
		return skipRetry(err)
	}

	limit, threshold := rag.DefaultSearchLimit, rag.DefaultSearchThreshold
	if p.Limit != nil {
		limit = *p.Limit
	}
	if p.Threshold != nil {
		threshold = *p.Threshold
	}

	ctx, log := h.taskContext(ctx, t)
	return metrics.ObserveTask(t.Type(), func() error {
		results, err := h.query.Search(ctx, taskID(ctx), p.Query, limit, threshold)
		if err != nil {
			return classify(err)
		}
		writeResult(t, log, results)
		return nil
	})
}

func (h *RAGHandler) HandleRAGQuery(ctx context.Context, t *asynq.Task) error {
	var p tasks.RAGQueryPayload
	if err := tasks.Decode(t.Payload(), &p); err != nil {
		return skipRetry(err)
	}

	ctx, log := h.taskContext(ctx, t)
	return metrics.ObserveTask(t.Type(), func() error {
		answer, err := h.query.Answer(ctx, taskID(ctx), rag.AnswerRequest{
			Question:     p.Question,
			SessionID:    p.SessionID,
			Model:        p.Model,
			SystemPrompt: p.SystemPrompt,
		})
		if err != nil {
			return classify(err)
		}
		writeResult(t, log, answer)
		return nil
	})
}

// taskContext 把 asynq 任务 ID 挂到上下文与日志上
func (h *RAGHandler) taskContext(ctx context.Context, t *asynq.Task) (context.Context, *zap.Logger) {
	if id, ok := asynq.GetTaskID(ctx); ok {
		ctx = logger.WithTaskID(ctx, id)
	}
	retried, _ := asynq.GetRetryCount(ctx)
	return ctx, logger.FromContext(ctx, h.logger).With(
		zap.String("type", t.Type()),
		zap.Int("retried", retried),
	)
}

func taskID(ctx context.Context) string {
	return logger.GetTaskID(ctx)
}

// writeResult 结果写入 asynq，供任务查询接口读取；测试中构造的任务没有 ResultWriter
func writeResult(t *asynq.Task, log *zap.Logger, result any) {
	w := t.ResultWriter()
	if w == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		log.Warn("序列化任务结果失败", zap.Error(err))
		return
	}
	if _, err := w.Write(data); err != nil {
		log.Warn("写入任务结果失败", zap.Error(err))
	}
}

// classify 不可重试的错误包装为 SkipRetry，其余交给 asynq 的重试策略
func classify(err error) error {
	if rag.IsRetryable(err) {
		return err
	}
	return skipRetry(err)
}

func skipRetry(err error) error {
	return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
}
