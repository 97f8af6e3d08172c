package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"agentstack/internal/logger"
	"agentstack/internal/metrics"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Ingester 单篇摄取能力，由 IngestionPipeline 实现
type Ingester interface {
	Ingest(ctx context.Context, taskID, sourceURL string, metadata map[string]any) (*IngestResult, error)
}

// BatchItemResult 批量中单个条目的结果
type BatchItemResult struct {
	SourceURL  string `json:"source_url"`
	Status     string `json:"status"`
	DocumentID string `json:"document_id,omitempty"`
	Filename   string `json:"filename,omitempty"`
	SourceType string `json:"source_type,omitempty"`
	CharCount  int    `json:"char_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// BatchResult 批量摄取汇总
type BatchResult struct {
	Total   int               `json:"total"`
	Success int               `json:"success"`
	Failed  int               `json:"failed"`
	Results []BatchItemResult `json:"results"`
}

// BatchInput 写入台账的批量任务输入
type BatchInput struct {
	SourceURLs []string       `json:"source_urls"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// BatchOrchestrator 逐条调用摄取流水线，单条失败不影响其余条目。
// 子条目直接在当前任务内执行，不再投递到调度队列；concurrency > 1 时
// 使用独立的 ants 协程池并发执行。
type BatchOrchestrator struct {
	ingester Ingester
	ledger   JobLedger
	pool     *ants.Pool
	logger   *zap.Logger
}

// NewBatchOrchestrator 创建批量编排器
func NewBatchOrchestrator(ingester Ingester, ledger JobLedger, concurrency int, log *zap.Logger) (*BatchOrchestrator, error) {
	if log == nil {
		log = zap.NewNop()
	}
	o := &BatchOrchestrator{ingester: ingester, ledger: ledger, logger: log}

	if concurrency > 1 {
		pool, err := ants.NewPool(concurrency)
		if err != nil {
			return nil, fmt.Errorf("创建批量摄取协程池失败: %w", err)
		}
		o.pool = pool
	}
	return o, nil
}

// Release 释放协程池
func (o *BatchOrchestrator) Release() {
	if o.pool != nil {
		o.pool.Release()
	}
}

// ChildTaskID 批量中第 index 条的台账 ID
func ChildTaskID(batchTaskID string, index int) string {
	if batchTaskID == "" {
		return ""
	}
	return fmt.Sprintf("%s/%d", batchTaskID, index)
}

// IngestBatch 摄取多篇文档，Results 与 sourceURLs 一一对应。
// 每完成一条就把 完成数/总数 写入批量任务的进度。
func (o *BatchOrchestrator) IngestBatch(ctx context.Context, taskID string, sourceURLs []string, metadata map[string]any) (*BatchResult, error) {
	ctx = logger.WithTaskID(ctx, taskID)
	log := logger.FromContext(ctx, o.logger)

	if taskID != "" {
		if err := o.ledger.Begin(ctx, taskID, JobKindBatchIngest, BatchInput{SourceURLs: sourceURLs, Metadata: metadata}); err != nil {
			log.Warn("记录批量任务开始失败", zap.Error(err))
		}
	}

	total := len(sourceURLs)
	result := &BatchResult{Total: total, Results: make([]BatchItemResult, total)}
	tracker := &progressTracker{total: total, report: func(pct int) {
		if taskID == "" {
			return
		}
		if err := o.ledger.SetProgress(ctx, taskID, pct); err != nil {
			log.Warn("更新批量进度失败", zap.Int("progress", pct), zap.Error(err))
		}
	}}

	runItem := func(i int) {
		result.Results[i] = o.ingestOne(ctx, ChildTaskID(taskID, i), sourceURLs[i], metadata)
		tracker.done()
	}

	if o.pool == nil {
		for i := range sourceURLs {
			if ctx.Err() != nil {
				break
			}
			runItem(i)
		}
	} else {
		var wg sync.WaitGroup
		for i := range sourceURLs {
			if ctx.Err() != nil {
				break
			}
			wg.Add(1)
			idx := i
			if err := o.pool.Submit(func() {
				defer wg.Done()
				runItem(idx)
			}); err != nil {
				wg.Done()
				result.Results[idx] = BatchItemResult{SourceURL: sourceURLs[idx], Status: string(JobStatusFailed), Error: err.Error()}
				tracker.done()
			}
		}
		wg.Wait()
	}

	if err := ctx.Err(); err != nil {
		if taskID != "" {
			if lerr := o.ledger.MarkFailed(context.WithoutCancel(ctx), taskID, err.Error()); lerr != nil {
				log.Warn("记录批量任务失败状态失败", zap.Error(lerr))
			}
		}
		return nil, err
	}

	for _, item := range result.Results {
		if item.Status == string(JobStatusSuccess) {
			result.Success++
		} else {
			result.Failed++
		}
	}

	if taskID != "" {
		if err := o.ledger.MarkSuccess(ctx, taskID, result); err != nil {
			log.Warn("记录批量任务成功失败", zap.Error(err))
		}
	}

	log.Info("批量摄取完成",
		zap.Int("total", result.Total),
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// ingestOne 单条摄取，错误与 panic 都转为条目结果
func (o *BatchOrchestrator) ingestOne(ctx context.Context, childID, sourceURL string, metadata map[string]any) (item BatchItemResult) {
	if done, ok := o.completedItem(ctx, childID, sourceURL); ok {
		return done
	}

	item = BatchItemResult{SourceURL: sourceURL, Status: string(JobStatusFailed)}
	defer func() {
		if r := recover(); r != nil {
			item.Error = fmt.Sprintf("panic: %v", r)
			o.logger.Error("批量条目执行 panic", zap.String("source_url", sourceURL), zap.Any("panic", r))
		}
		metrics.BatchItemsTotal.WithLabelValues(item.Status).Inc()
	}()

	res, err := o.ingester.Ingest(ctx, childID, sourceURL, metadata)
	if err != nil {
		item.Error = err.Error()
		return item
	}

	item.Status = res.Status
	item.DocumentID = res.DocumentID
	item.Filename = res.Filename
	item.SourceType = res.SourceType
	item.CharCount = res.CharCount
	return item
}

// completedItem 同一批量任务再次执行时，台账中已成功的子条目直接复用结果
func (o *BatchOrchestrator) completedItem(ctx context.Context, childID, sourceURL string) (BatchItemResult, bool) {
	if childID == "" {
		return BatchItemResult{}, false
	}
	job, err := o.ledger.Get(ctx, childID)
	if err != nil || job.Status != JobStatusSuccess || len(job.ResultData) == 0 {
		return BatchItemResult{}, false
	}
	var prev IngestResult
	if err := json.Unmarshal(job.ResultData, &prev); err != nil || prev.DocumentID == "" {
		return BatchItemResult{}, false
	}

	o.logger.Info("跳过已完成的批量条目", zap.String("child_task_id", childID), zap.String("document_id", prev.DocumentID))
	return BatchItemResult{
		SourceURL:  sourceURL,
		Status:     string(JobStatusSuccess),
		DocumentID: prev.DocumentID,
		Filename:   prev.Filename,
		SourceType: prev.SourceType,
		CharCount:  prev.CharCount,
	}, true
}

// progressTracker 按完成顺序上报进度，保证单调不减
type progressTracker struct {
	mu        sync.Mutex
	total     int
	completed int
	report    func(pct int)
}

func (t *progressTracker) done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed++
	t.report(t.completed * 100 / t.total)
}
