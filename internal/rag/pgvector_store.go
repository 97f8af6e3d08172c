package rag

import (
	"context"
	"errors"
	"fmt"

	"agentstack/internal/infra"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PGVectorStore 基于PostgreSQL pgvector扩展的向量存储实现
type PGVectorStore struct {
	db   *gorm.DB
	dims int
}

// NewPGVectorStore 创建pgvector存储实例
// 扩展与表结构由 migrate 命令负责
func NewPGVectorStore(db *gorm.DB, dims int) *PGVectorStore {
	if dims <= 0 {
		dims = EmbeddingDimensions
	}
	return &PGVectorStore{db: db, dims: dims}
}

// InsertDocument 在事务内写入 knowledge_base
func (s *PGVectorStore) InsertDocument(ctx context.Context, doc *Document) error {
	if err := prepareDocument(doc, s.dims); err != nil {
		return err
	}

	err := infra.WithinTransaction(ctx, s.db, func(tx *gorm.DB) error {
		return tx.Create(doc).Error
	})
	if err != nil {
		return newError(KindStorage, "insert_document", fmt.Errorf("写入文档失败: %w", err))
	}
	return nil
}

// GetDocument 按 ID 读取文档
func (s *PGVectorStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	var doc Document
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, newError(KindStorage, "get_document", err)
	}
	return &doc, nil
}

// SearchKnowledge 余弦距离检索
// <=> 是pgvector的余弦距离操作符，similarity = 1 - distance
func (s *PGVectorStore) SearchKnowledge(ctx context.Context, query []float32, threshold float64, limit int) ([]SearchResult, error) {
	if len(query) != s.dims {
		return nil, newError(KindSearch, "search_knowledge",
			fmt.Errorf("%w: 期望%d, 实际%d", ErrDimensionMismatch, s.dims, len(query)))
	}
	if limit <= 0 {
		return []SearchResult{}, nil
	}

	const sql = `
		SELECT
			id,
			filename,
			content_markdown,
			metadata,
			1 - (embedding <=> CAST(@query AS vector)) AS similarity
		FROM knowledge_base
		WHERE embedding IS NOT NULL
			AND 1 - (embedding <=> CAST(@query AS vector)) > @threshold
		ORDER BY embedding <=> CAST(@query AS vector)
		LIMIT @limit
	`

	var rows []struct {
		ID              string            `gorm:"column:id"`
		Filename        string            `gorm:"column:filename"`
		ContentMarkdown string            `gorm:"column:content_markdown"`
		Metadata        datatypes.JSONMap `gorm:"column:metadata"`
		Similarity      float64           `gorm:"column:similarity"`
	}

	err := s.db.WithContext(ctx).Raw(sql, map[string]any{
		"query":     pgvector.NewVector(query),
		"threshold": threshold,
		"limit":     limit,
	}).Scan(&rows).Error
	if err != nil {
		return nil, newError(KindSearch, "search_knowledge", fmt.Errorf("向量搜索失败: %w", err))
	}

	results := make([]SearchResult, 0, len(rows))
	for _, r := range rows {
		results = append(results, SearchResult{
			DocumentID: r.ID,
			Filename:   r.Filename,
			Content:    r.ContentMarkdown,
			Similarity: r.Similarity,
			Metadata:   r.Metadata,
		})
	}
	return results, nil
}

// GetChatHistory 读取会话最近 limit 条消息，按时间正序返回
func (s *PGVectorStore) GetChatHistory(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 10
	}

	var msgs []ChatMessage
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, newError(KindStorage, "get_chat_history", err)
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
