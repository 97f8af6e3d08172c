package tasks

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Task Types
const (
	TypeIngestDocument = "tasks:ingest_document"
	TypeIngestBatch    = "tasks:ingest_batch"
	TypeSemanticSearch = "tasks:semantic_search"
	TypeRAGQuery       = "tasks:rag_query"
)

// Queues
const (
	QueueIngest  = "ingest"
	QueueQuery   = "query"
	QueueDefault = "default"
)

// ErrInvalidPayload 载荷无法解析或未通过校验，重试不会成功
var ErrInvalidPayload = errors.New("无效的任务载荷")

var validate = validator.New()

// IngestDocumentPayload 单篇文档摄取任务载荷
type IngestDocumentPayload struct {
	SourceURL string         `json:"source_url" validate:"required"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// IngestBatchPayload 批量摄取任务载荷
type IngestBatchPayload struct {
	SourceURLs []string       `json:"source_urls" validate:"required,min=1,dive,required"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SemanticSearchPayload 语义检索任务载荷，Limit / Threshold 缺省时取 5 / 0.7
type SemanticSearchPayload struct {
	Query     string   `json:"query" validate:"required"`
	Limit     *int     `json:"limit,omitempty" validate:"omitempty,gte=0,lte=100"`
	Threshold *float64 `json:"threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// RAGQueryPayload RAG 问答任务载荷
type RAGQueryPayload struct {
	Question     string `json:"question" validate:"required"`
	SessionID    string `json:"session_id,omitempty"`
	Model        string `json:"model,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// Validate 按 validate 标签校验载荷
func Validate(payload any) error {
	if err := validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// Decode 解析并校验载荷
func Decode(data []byte, payload any) error {
	if err := json.Unmarshal(data, payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return Validate(payload)
}
