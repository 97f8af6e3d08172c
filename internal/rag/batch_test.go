package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeIngester 按 URL 决定成功、失败或 panic
type fakeIngester struct {
	mu       sync.Mutex
	failing  map[string]bool
	panics   map[string]bool
	childIDs []string
}

func (f *fakeIngester) Ingest(ctx context.Context, taskID, sourceURL string, metadata map[string]any) (*IngestResult, error) {
	f.mu.Lock()
	f.childIDs = append(f.childIDs, taskID)
	f.mu.Unlock()

	if f.panics[sourceURL] {
		panic("解析器崩溃")
	}
	if f.failing[sourceURL] {
		return nil, &PipelineError{Kind: KindFetch, Op: "parse", Err: errors.New("404")}
	}
	return &IngestResult{
		DocumentID: "doc-" + sourceURL,
		Filename:   sourceURL,
		SourceType: "pdf",
		CharCount:  len(sourceURL),
		Status:     string(JobStatusSuccess),
	}, nil
}

func batchURLs(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://x/%d.pdf", i)
	}
	return urls
}

func TestBatchOrchestrator_IsolatesFailures(t *testing.T) {
	urls := batchURLs(5)
	ingester := &fakeIngester{failing: map[string]bool{urls[2]: true}}
	ledger := newRecordingLedger()
	o, err := NewBatchOrchestrator(ingester, ledger, 1, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer o.Release()

	res, err := o.IngestBatch(context.Background(), "batch-1", urls, nil)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 4, res.Success)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Results, 5)
	for i, item := range res.Results {
		assert.Equal(t, urls[i], item.SourceURL)
	}
	assert.Equal(t, "failed", res.Results[2].Status)
	assert.Contains(t, res.Results[2].Error, "FetchError")
	assert.Equal(t, "doc-"+urls[4], res.Results[4].DocumentID)

	assert.Equal(t, []int{20, 40, 60, 80, 100}, ledger.progressOf("batch-1"))
	assert.Equal(t, JobStatusSuccess, ledger.status["batch-1"])
	assert.Equal(t, []string{"batch-1/0", "batch-1/1", "batch-1/2", "batch-1/3", "batch-1/4"}, ingester.childIDs)
}

func TestBatchOrchestrator_RecoversPanics(t *testing.T) {
	urls := batchURLs(3)
	ingester := &fakeIngester{panics: map[string]bool{urls[0]: true}}
	o, err := NewBatchOrchestrator(ingester, newRecordingLedger(), 1, nil)
	require.NoError(t, err)

	res, err := o.IngestBatch(context.Background(), "batch-panic", urls, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Success)
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, res.Results[0].Error, "panic")
}

func TestBatchOrchestrator_Concurrent(t *testing.T) {
	urls := batchURLs(20)
	failing := map[string]bool{urls[3]: true, urls[11]: true}
	ingester := &fakeIngester{failing: failing}
	ledger := newRecordingLedger()
	o, err := NewBatchOrchestrator(ingester, ledger, 4, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer o.Release()

	res, err := o.IngestBatch(context.Background(), "batch-c", urls, map[string]any{"owner": "ops"})
	require.NoError(t, err)
	assert.Equal(t, 18, res.Success)
	assert.Equal(t, 2, res.Failed)
	for i, item := range res.Results {
		assert.Equal(t, urls[i], item.SourceURL)
		if failing[urls[i]] {
			assert.Equal(t, "failed", item.Status)
		} else {
			assert.Equal(t, "success", item.Status)
		}
	}

	progress := ledger.progressOf("batch-c")
	require.Len(t, progress, 20)
	assert.True(t, sort.IntsAreSorted(progress), "进度必须单调不减: %v", progress)
	assert.Equal(t, 100, progress[len(progress)-1])

	ids := append([]string(nil), ingester.childIDs...)
	sort.Strings(ids)
	assert.Len(t, ids, 20)
	assert.Contains(t, ids, "batch-c/19")
}

func TestBatchOrchestrator_Untracked(t *testing.T) {
	ingester := &fakeIngester{}
	ledger := newRecordingLedger()
	o, err := NewBatchOrchestrator(ingester, ledger, 1, nil)
	require.NoError(t, err)

	res, err := o.IngestBatch(context.Background(), "", batchURLs(2), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Success)
	assert.Empty(t, ledger.status)
	assert.Equal(t, []string{"", ""}, ingester.childIDs)
}

func TestBatchOrchestrator_Empty(t *testing.T) {
	o, err := NewBatchOrchestrator(&fakeIngester{}, newRecordingLedger(), 1, nil)
	require.NoError(t, err)

	res, err := o.IngestBatch(context.Background(), "batch-empty", nil, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.Empty(t, res.Results)
}

func TestBatchOrchestrator_Canceled(t *testing.T) {
	ledger := newRecordingLedger()
	o, err := NewBatchOrchestrator(&fakeIngester{}, ledger, 1, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = o.IngestBatch(ctx, "batch-cancel", batchURLs(3), nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, JobStatusFailed, ledger.status["batch-cancel"])
}

func TestBatchOrchestrator_WithPipelineAndLedger(t *testing.T) {
	db := newTestDB(t)
	ledger := NewGormJobLedger(db)
	urls := []string{"https://x/doc.pdf", "https://x/missing.pdf"}
	gen, _ := newTestGenerator(newFakeProvider(testDims), testDims)
	pipeline := NewIngestionPipeline(pdfSource(urls[0]), gen, NewPGVectorStore(db, testDims), ledger, 0, nil)
	o, err := NewBatchOrchestrator(pipeline, ledger, 1, nil)
	require.NoError(t, err)
	ctx := context.Background()

	res, err := o.IngestBatch(ctx, "batch-db", urls, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 1, res.Failed)

	batch, err := ledger.Get(ctx, "batch-db")
	require.NoError(t, err)
	assert.Equal(t, JobStatusSuccess, batch.Status)
	var stored BatchResult
	require.NoError(t, json.Unmarshal(batch.ResultData, &stored))
	assert.Equal(t, 2, stored.Total)

	child, err := ledger.Get(ctx, ChildTaskID("batch-db", 1))
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, child.Status)
	assert.Contains(t, child.ErrorMessage, "FetchError")

	var docs int64
	require.NoError(t, db.Model(&Document{}).Count(&docs).Error)
	assert.EqualValues(t, 1, docs)
}

// cancelAfterFirst 第一条完成后取消上下文，模拟批量任务中途超时
type cancelAfterFirst struct {
	next   Ingester
	cancel context.CancelFunc
}

func (c *cancelAfterFirst) Ingest(ctx context.Context, taskID, sourceURL string, metadata map[string]any) (*IngestResult, error) {
	res, err := c.next.Ingest(ctx, taskID, sourceURL, metadata)
	c.cancel()
	return res, err
}

func TestBatchOrchestrator_RerunSkipsCompletedItems(t *testing.T) {
	db := newTestDB(t)
	ledger := NewGormJobLedger(db)
	urls := []string{"https://x/doc.pdf", "https://x/slow.pdf"}
	src := pdfSource(urls[0])
	src.docs[urls[1]] = src.docs[urls[0]]
	gen, _ := newTestGenerator(newFakeProvider(testDims), testDims)
	pipeline := NewIngestionPipeline(src, gen, NewPGVectorStore(db, testDims), ledger, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first, err := NewBatchOrchestrator(&cancelAfterFirst{next: pipeline, cancel: cancel}, ledger, 1, nil)
	require.NoError(t, err)
	_, err = first.IngestBatch(ctx, "batch-rerun", urls, nil)
	require.ErrorIs(t, err, context.Canceled)

	done, err := ledger.Get(context.Background(), ChildTaskID("batch-rerun", 0))
	require.NoError(t, err)
	require.Equal(t, JobStatusSuccess, done.Status)

	second, err := NewBatchOrchestrator(pipeline, ledger, 1, nil)
	require.NoError(t, err)
	res, err := second.IngestBatch(context.Background(), "batch-rerun", urls, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Success)
	assert.NotEmpty(t, res.Results[0].DocumentID)
	assert.Equal(t, "doc.pdf", res.Results[0].Filename)

	var dup int64
	require.NoError(t, db.Model(&Document{}).Where("source_url = ?", urls[0]).Count(&dup).Error)
	assert.EqualValues(t, 1, dup)

	var total int64
	require.NoError(t, db.Model(&Document{}).Count(&total).Error)
	assert.EqualValues(t, 2, total)
}

func TestChildTaskID(t *testing.T) {
	assert.Equal(t, "b/3", ChildTaskID("b", 3))
	assert.Empty(t, ChildTaskID("", 3))
}
