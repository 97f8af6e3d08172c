package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// VectorStore 文档持久化与相似度检索，可由不同后端实现（pgvector、内存）
type VectorStore interface {
	// InsertDocument 在单个事务内写入文档，成功后 doc.ID 已分配
	InsertDocument(ctx context.Context, doc *Document) error
	// GetDocument 按 ID 读取文档
	GetDocument(ctx context.Context, id string) (*Document, error)
	// SearchKnowledge 返回 similarity > threshold 的文档，按相似度降序，最多 limit 条
	SearchKnowledge(ctx context.Context, query []float32, threshold float64, limit int) ([]SearchResult, error)
	// GetChatHistory 返回会话最近 limit 条消息，按时间正序
	GetChatHistory(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error)
}

// prepareDocument 写入前补齐 ID、字符数与时间并校验向量维度
func prepareDocument(doc *Document, dims int) error {
	if doc == nil {
		return newError(KindValidation, "insert_document", fmt.Errorf("文档不能为空"))
	}
	if got := len(doc.Embedding.Slice()); got != dims {
		return newError(KindValidation, "insert_document",
			fmt.Errorf("%w: 期望%d, 实际%d", ErrDimensionMismatch, dims, got))
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.CharCount = utf8.RuneCountInString(doc.ContentMarkdown)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	return nil
}

// MemoryVectorStore 进程内实现，余弦距离在 Go 中计算，用于测试和本地开发
type MemoryVectorStore struct {
	dims int

	mu       sync.RWMutex
	docs     []*Document
	byID     map[string]*Document
	messages map[string][]ChatMessage
}

// NewMemoryVectorStore 创建内存向量存储
func NewMemoryVectorStore(dims int) *MemoryVectorStore {
	if dims <= 0 {
		dims = EmbeddingDimensions
	}
	return &MemoryVectorStore{
		dims:     dims,
		byID:     make(map[string]*Document),
		messages: make(map[string][]ChatMessage),
	}
}

// InsertDocument 写入文档
func (s *MemoryVectorStore) InsertDocument(ctx context.Context, doc *Document) error {
	if err := ctx.Err(); err != nil {
		return newError(KindStorage, "insert_document", err)
	}
	if err := prepareDocument(doc, s.dims); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[doc.ID]; exists {
		return newError(KindStorage, "insert_document", fmt.Errorf("文档已存在: %s", doc.ID))
	}
	stored := *doc
	s.docs = append(s.docs, &stored)
	s.byID[doc.ID] = &stored
	return nil
}

// GetDocument 按 ID 读取
func (s *MemoryVectorStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.byID[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	out := *doc
	return &out, nil
}

// SearchKnowledge 暴力扫描全部文档
func (s *MemoryVectorStore) SearchKnowledge(ctx context.Context, query []float32, threshold float64, limit int) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, newError(KindSearch, "search_knowledge", err)
	}
	if len(query) != s.dims {
		return nil, newError(KindSearch, "search_knowledge",
			fmt.Errorf("%w: 期望%d, 实际%d", ErrDimensionMismatch, s.dims, len(query)))
	}
	if limit <= 0 {
		return []SearchResult{}, nil
	}

	s.mu.RLock()
	results := make([]SearchResult, 0)
	for _, doc := range s.docs {
		similarity := 1 - cosineDistance(query, doc.Embedding.Slice())
		if similarity <= threshold {
			continue
		}
		results = append(results, SearchResult{
			DocumentID: doc.ID,
			Filename:   doc.Filename,
			Content:    doc.ContentMarkdown,
			Similarity: similarity,
			Metadata:   copyMetadata(doc.Metadata),
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// AppendChatMessage 写入一条会话消息（会话写入方不在本服务内，这里仅供测试和本地开发）
func (s *MemoryVectorStore) AppendChatMessage(msg ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.ID = uint(len(s.messages[msg.SessionID]) + 1)
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
}

// GetChatHistory 返回会话最近 limit 条消息
func (s *MemoryVectorStore) GetChatHistory(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	msgs := s.messages[sessionID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]ChatMessage{}, msgs...), nil
}

// cosineDistance 与 pgvector <=> 一致：1 - cos(a, b)，零向量距离记为 1
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// newEmbeddingVector 转为 pgvector 列类型
func newEmbeddingVector(vec []float32) pgvector.Vector {
	return pgvector.NewVector(vec)
}
