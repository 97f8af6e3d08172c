package rag

import (
	"context"
	"errors"
	"strings"
	"time"

	"agentstack/internal/logger"
	"agentstack/internal/metrics"
	"agentstack/internal/rag/parsers"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// DocumentSource 抓取并转换源文档
type DocumentSource interface {
	Fetch(ctx context.Context, source string) (*parsers.Document, error)
}

// IngestResult 单篇文档摄取结果
type IngestResult struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	SourceType string `json:"source_type"`
	CharCount  int    `json:"char_count"`
	Status     string `json:"status"`
}

// IngestInput 写入台账的任务输入
type IngestInput struct {
	SourceURL string         `json:"source_url"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// 阶段进度
const (
	progressParsed   = 30
	progressEmbedded = 60
	progressStored   = 90
)

// IngestionPipeline 抓取/解析 → 摘要向量 → 持久化，每个阶段同步更新任务台账
type IngestionPipeline struct {
	source       DocumentSource
	embedder     Embedder
	store        VectorStore
	ledger       JobLedger
	chunker      *Chunker
	summaryChars int
	logger       *zap.Logger
	tracer       trace.Tracer
}

// NewIngestionPipeline 创建摄取流水线，summaryChars <= 0 时取 8000
func NewIngestionPipeline(source DocumentSource, embedder Embedder, store VectorStore, ledger JobLedger, summaryChars int, log *zap.Logger) *IngestionPipeline {
	if summaryChars <= 0 {
		summaryChars = 8000
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &IngestionPipeline{
		source:       source,
		embedder:     embedder,
		store:        store,
		ledger:       ledger,
		summaryChars: summaryChars,
		logger:       log,
		tracer:       otel.Tracer("agentstack/internal/rag/ingestion"),
	}
}

// WithChunker 配置分块器，文档元数据中会记录 chunk_count
func (p *IngestionPipeline) WithChunker(c *Chunker) *IngestionPipeline {
	p.chunker = c
	return p
}

// Ingest 摄取单篇文档。
// taskID 为空时不写台账。任一阶段失败都会记录 failed 并原样返回带类别的错误，
// 成功时恰好写入一条 Document，失败时不写入。
func (p *IngestionPipeline) Ingest(ctx context.Context, taskID, sourceURL string, metadata map[string]any) (*IngestResult, error) {
	ctx = logger.WithTaskID(ctx, taskID)
	log := logger.FromContext(ctx, p.logger).With(zap.String("source_url", sourceURL))

	ctx, span := p.tracer.Start(ctx, "IngestionPipeline.Ingest")
	defer span.End()
	span.SetAttributes(attribute.String("source_url", sourceURL))

	p.begin(ctx, log, taskID, JobKindIngest, IngestInput{SourceURL: sourceURL, Metadata: metadata})

	start := time.Now()
	result, sourceType, err := p.run(ctx, log, taskID, sourceURL, metadata)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
		metrics.IngestTotal.WithLabelValues(sourceType, "failed").Inc()
		p.fail(ctx, log, taskID, err)
		log.Error("文档摄取失败", zap.String("kind", string(KindOf(err))), zap.Error(err))
		return nil, err
	}

	metrics.IngestTotal.WithLabelValues(result.SourceType, "success").Inc()
	metrics.IngestDuration.WithLabelValues(result.SourceType).Observe(time.Since(start).Seconds())
	metrics.IngestChars.Observe(float64(result.CharCount))
	span.SetAttributes(
		attribute.String("document_id", result.DocumentID),
		attribute.Int("char_count", result.CharCount),
	)

	if taskID != "" {
		if err := p.ledger.MarkSuccess(ctx, taskID, result); err != nil {
			// 文档已入库，台账只用于诊断
			log.Warn("记录任务成功失败", zap.Error(err))
		}
	}

	log.Info("文档摄取完成",
		zap.String("document_id", result.DocumentID),
		zap.String("filename", result.Filename),
		zap.Int("char_count", result.CharCount),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func (p *IngestionPipeline) run(ctx context.Context, log *zap.Logger, taskID, sourceURL string, metadata map[string]any) (*IngestResult, string, error) {
	sourceType := "unknown"
	if strings.TrimSpace(sourceURL) == "" {
		return nil, sourceType, newError(KindValidation, "ingest", errors.New("source_url 不能为空"))
	}

	// 1. 抓取并转换
	parsed, err := p.parse(ctx, sourceURL)
	if err != nil {
		return nil, sourceType, err
	}
	sourceType = parsed.SourceType
	p.progress(ctx, log, taskID, progressParsed)

	// 2. 摘要向量：只取前 summaryChars 个字符
	vector, err := p.embed(ctx, parsed.Markdown)
	if err != nil {
		return nil, sourceType, err
	}
	p.progress(ctx, log, taskID, progressEmbedded)

	// 3. 合并元数据并持久化
	extracted := parsed.Metadata
	if p.chunker != nil {
		extracted = mergeMetadata(extracted, map[string]any{"chunk_count": len(p.chunker.Chunk(parsed.Markdown))})
	}
	doc := &Document{
		SourceURL:       sourceURL,
		SourceType:      parsed.SourceType,
		Filename:        parsed.Filename,
		ContentMarkdown: parsed.Markdown,
		Embedding:       newEmbeddingVector(vector),
		Metadata:        datatypes.JSONMap(mergeMetadata(extracted, metadata)),
	}
	if err := p.persist(ctx, doc); err != nil {
		return nil, sourceType, err
	}
	p.progress(ctx, log, taskID, progressStored)

	return &IngestResult{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		SourceType: doc.SourceType,
		CharCount:  doc.CharCount,
		Status:     string(JobStatusSuccess),
	}, sourceType, nil
}

func (p *IngestionPipeline) parse(ctx context.Context, sourceURL string) (*parsers.Document, error) {
	ctx, span := p.tracer.Start(ctx, "parse_document")
	defer span.End()

	parsed, err := p.source.Fetch(ctx, sourceURL)
	if err != nil {
		span.RecordError(err)
		return nil, newError(KindFetch, "parse", err)
	}
	if strings.TrimSpace(parsed.Markdown) == "" {
		return nil, newError(KindFetch, "parse", parsers.ErrEmptyContent)
	}
	span.SetAttributes(
		attribute.String("filename", parsed.Filename),
		attribute.Int("markdown_length", len(parsed.Markdown)),
	)
	return parsed, nil
}

func (p *IngestionPipeline) embed(ctx context.Context, markdown string) ([]float32, error) {
	ctx, span := p.tracer.Start(ctx, "generate_embedding")
	defer span.End()

	vector, err := p.embedder.Embed(ctx, truncateRunes(markdown, p.summaryChars))
	if err != nil {
		span.RecordError(err)
		return nil, newError(KindEmbedding, "embed", err)
	}
	return vector, nil
}

func (p *IngestionPipeline) persist(ctx context.Context, doc *Document) error {
	ctx, span := p.tracer.Start(ctx, "store_document")
	defer span.End()

	if err := p.store.InsertDocument(ctx, doc); err != nil {
		span.RecordError(err)
		return newError(KindStorage, "store", err)
	}
	return nil
}

func (p *IngestionPipeline) begin(ctx context.Context, log *zap.Logger, taskID string, kind JobKind, input any) {
	if taskID == "" {
		return
	}
	if err := p.ledger.Begin(ctx, taskID, kind, input); err != nil {
		log.Warn("记录任务开始失败", zap.Error(err))
	}
}

func (p *IngestionPipeline) progress(ctx context.Context, log *zap.Logger, taskID string, pct int) {
	if taskID == "" {
		return
	}
	if err := p.ledger.SetProgress(ctx, taskID, pct); err != nil {
		log.Warn("更新任务进度失败", zap.Int("progress", pct), zap.Error(err))
	}
}

func (p *IngestionPipeline) fail(ctx context.Context, log *zap.Logger, taskID string, cause error) {
	if taskID == "" {
		return
	}
	// 任务可能因 ctx 取消而失败，台账写入不应随之丢失
	if err := p.ledger.MarkFailed(context.WithoutCancel(ctx), taskID, cause.Error()); err != nil {
		log.Warn("记录任务失败状态失败", zap.Error(err))
	}
}

// mergeMetadata 解析得到的元数据在前，调用方传入的同名键覆盖
func mergeMetadata(extracted, caller map[string]any) map[string]any {
	merged := make(map[string]any, len(extracted)+len(caller))
	for k, v := range extracted {
		merged[k] = v
	}
	for k, v := range caller {
		merged[k] = v
	}
	return merged
}
