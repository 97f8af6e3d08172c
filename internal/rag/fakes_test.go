package rag

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"agentstack/internal/rag/parsers"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB 每个测试独立的内存 SQLite
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(AllModels()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// fakeEmbeddingProvider 按文本内容生成确定性向量，可配置前若干次调用失败
type fakeEmbeddingProvider struct {
	mu        sync.Mutex
	dims      int
	failFirst int // 前 N 次调用返回 failErr
	failErr   error
	calls     int
	batches   [][]string
}

func newFakeProvider(dims int) *fakeEmbeddingProvider {
	return &fakeEmbeddingProvider{dims: dims, failErr: errors.New("upstream 503")}
}

func (f *fakeEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func (f *fakeEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.batches = append(f.batches, append([]string(nil), texts...))
	if f.calls <= f.failFirst {
		return nil, f.failErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = textVector(t, f.dims)
	}
	return out, nil
}

func (f *fakeEmbeddingProvider) GetModel() string        { return "fake-embedding" }
func (f *fakeEmbeddingProvider) GetProviderName() string { return "fake" }

func (f *fakeEmbeddingProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// textVector 文本哈希播种的单位向量
func textVector(text string, dims int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, dims)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed>>33)%1000) / 1000
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// unitVector 第 axis 维为 1 的向量
func unitVector(dims, axis int) []float32 {
	v := make([]float32, dims)
	v[axis] = 1
	return v
}

// noSleep 跳过退避等待并记录时长
type noSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (n *noSleep) sleep(ctx context.Context, d time.Duration) error {
	n.mu.Lock()
	n.waits = append(n.waits, d)
	n.mu.Unlock()
	return ctx.Err()
}

// newTestGenerator 测试用生成器：小维度、无等待
func newTestGenerator(p EmbeddingProvider, dims int) (*EmbeddingGenerator, *noSleep) {
	cfg := DefaultEmbeddingGeneratorConfig()
	cfg.Dimensions = dims
	g := NewEmbeddingGenerator(p, cfg, nil)
	ns := &noSleep{}
	g.sleep = ns.sleep
	return g, ns
}

// fakeSource 按 URL 返回预置文档或错误
type fakeSource struct {
	docs map[string]*parsers.Document
	errs map[string]error
}

func (s *fakeSource) Fetch(ctx context.Context, source string) (*parsers.Document, error) {
	if err, ok := s.errs[source]; ok {
		return nil, err
	}
	if doc, ok := s.docs[source]; ok {
		cp := *doc
		return &cp, nil
	}
	return nil, fmt.Errorf("下载失败: 404 %s", source)
}

// fakeCompletion 记录请求并返回固定回答
type fakeCompletion struct {
	mu       sync.Mutex
	requests []CompletionRequest
	reply    string
	tokens   int
	err      error
}

func (f *fakeCompletion) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &CompletionResponse{
		Content:     f.reply,
		Model:       req.Model,
		TotalTokens: f.tokens,
	}, nil
}

// recordingLedger 内存台账，记录每个任务的进度上报序列
type recordingLedger struct {
	mu       sync.Mutex
	status   map[string]JobStatus
	progress map[string][]int
	errors   map[string]string
}

func newRecordingLedger() *recordingLedger {
	return &recordingLedger{
		status:   map[string]JobStatus{},
		progress: map[string][]int{},
		errors:   map[string]string{},
	}
}

func (l *recordingLedger) Begin(ctx context.Context, taskID string, kind JobKind, input any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status[taskID] = JobStatusRunning
	return nil
}

func (l *recordingLedger) MarkRunning(ctx context.Context, taskID string) error {
	return l.set(taskID, JobStatusRunning)
}

func (l *recordingLedger) SetProgress(ctx context.Context, taskID string, pct int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.progress[taskID] = append(l.progress[taskID], pct)
	return nil
}

func (l *recordingLedger) MarkSuccess(ctx context.Context, taskID string, result any) error {
	return l.set(taskID, JobStatusSuccess)
}

func (l *recordingLedger) MarkFailed(ctx context.Context, taskID string, errMsg string) error {
	l.mu.Lock()
	l.errors[taskID] = errMsg
	l.mu.Unlock()
	return l.set(taskID, JobStatusFailed)
}

func (l *recordingLedger) Get(ctx context.Context, taskID string) (*Job, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.status[taskID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &Job{TaskID: taskID, Status: st, ErrorMessage: l.errors[taskID]}, nil
}

func (l *recordingLedger) set(taskID string, st JobStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status[taskID] = st
	return nil
}

func (l *recordingLedger) progressOf(taskID string) []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.progress[taskID]...)
}
