package rag

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// EmbeddingDimensions knowledge_base.embedding 列的固定维度，需与配置的向量模型一致
const EmbeddingDimensions = 1536

// Document 持久化的知识文档，一次成功摄取产生一条，之后不再原地修改
type Document struct {
	ID              string            `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SourceURL       string            `json:"source_url" gorm:"type:text;not null"`
	SourceType      string            `json:"source_type" gorm:"size:50;not null"` // pdf, docx, html, md ...
	Filename        string            `json:"filename" gorm:"size:500"`
	ContentMarkdown string            `json:"content_markdown" gorm:"type:text;not null"`
	Embedding       pgvector.Vector   `json:"-" gorm:"type:vector(1536)"`
	Metadata        datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	CharCount       int               `json:"char_count" gorm:"not null"`
	CreatedAt       time.Time         `json:"created_at" gorm:"not null;autoCreateTime"`
}

// TableName 对应 knowledge_base 表
func (Document) TableName() string {
	return "knowledge_base"
}

// JobKind 任务类型
type JobKind string

const (
	JobKindIngest      JobKind = "ingest_document"
	JobKindBatchIngest JobKind = "ingest_batch"
	JobKindSearch      JobKind = "semantic_search"
	JobKindRAGQuery    JobKind = "rag_query"
)

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusFailed  JobStatus = "failed"
)

// IsTerminal 是否为终态
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailed
}

// Job 一个异步工作单元的生命周期记录，task_id 唯一
type Job struct {
	ID           uint           `json:"-" gorm:"primaryKey;autoIncrement"`
	TaskID       string         `json:"task_id" gorm:"column:task_id;size:255;not null;uniqueIndex"`
	TaskName     JobKind        `json:"task_name" gorm:"size:64;not null"`
	Status       JobStatus      `json:"status" gorm:"size:32;not null;default:pending;index"`
	Progress     *int           `json:"progress,omitempty"`
	InputData    datatypes.JSON `json:"input_data,omitempty" gorm:"type:jsonb"`
	ResultData   datatypes.JSON `json:"result_data,omitempty" gorm:"type:jsonb"`
	ErrorMessage string         `json:"error_message,omitempty" gorm:"type:text"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 对应 job_status 表
func (Job) TableName() string {
	return "job_status"
}

// ChatMessage 会话历史中的一条消息（本服务只读）
type ChatMessage struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionID string    `json:"session_id" gorm:"size:255;not null;index"`
	Role      string    `json:"role" gorm:"size:32;not null"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName 对应 chat_history 表
func (ChatMessage) TableName() string {
	return "chat_history"
}

// Chunk 分块器产出的临时文本片段，偏移量以字符（rune）计，End 不含
type Chunk struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// SearchResult 一条相似度检索结果，Similarity = 1 - distance
type SearchResult struct {
	DocumentID string         `json:"id"`
	Filename   string         `json:"filename"`
	Content    string         `json:"content_markdown"`
	Similarity float64        `json:"similarity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SourceRef 答案引用的来源文档
type SourceRef struct {
	DocumentID string  `json:"id"`
	Filename   string  `json:"filename"`
	Similarity float64 `json:"similarity"`
}

// Answer RAG 问答输出
type Answer struct {
	Question string      `json:"question"`
	Answer   string      `json:"answer"`
	Sources  []SourceRef `json:"sources"`
	Model    string      `json:"model"`
	Tokens   int         `json:"tokens"`
}

// AllModels 需要迁移的表
func AllModels() []interface{} {
	return []interface{}{&Document{}, &Job{}, &ChatMessage{}}
}
