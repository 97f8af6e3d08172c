package rag

import (
	"encoding/json"
	"time"

	ragpkg "agentstack/internal/rag"
)

// IngestRequest 单篇摄取请求
type IngestRequest struct {
	SourceURL string         `json:"source_url" binding:"required"`
	Metadata  map[string]any `json:"metadata"`
}

// BatchIngestRequest 批量摄取请求
type BatchIngestRequest struct {
	SourceURLs []string       `json:"source_urls" binding:"required,min=1,dive,required"`
	Metadata   map[string]any `json:"metadata"`
}

// SearchRequest 语义检索请求，limit/threshold 缺省时使用 5 / 0.7
type SearchRequest struct {
	Query     string   `json:"query" binding:"required"`
	Limit     *int     `json:"limit" binding:"omitempty,gte=0,lte=100"`
	Threshold *float64 `json:"threshold" binding:"omitempty,gte=0,lte=1"`
}

func (r SearchRequest) limit() int {
	if r.Limit == nil {
		return ragpkg.DefaultSearchLimit
	}
	return *r.Limit
}

func (r SearchRequest) threshold() float64 {
	if r.Threshold == nil {
		return ragpkg.DefaultSearchThreshold
	}
	return *r.Threshold
}

// QueryRequest RAG 问答请求
type QueryRequest struct {
	Question     string `json:"question" binding:"required"`
	SessionID    string `json:"session_id"`
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt"`
}

// TaskAccepted 异步任务已入队
type TaskAccepted struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// SearchResponse 同步检索结果
type SearchResponse struct {
	Query   string                `json:"query"`
	Results []ragpkg.SearchResult `json:"results"`
	Total   int                   `json:"total"`
}

// JobResponse 任务状态，台账优先，台账尚无记录时回落到队列状态
type JobResponse struct {
	TaskID      string          `json:"task_id"`
	TaskName    string          `json:"task_name,omitempty"`
	Status      string          `json:"status"`
	Progress    *int            `json:"progress,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	QueueState  string          `json:"queue_state,omitempty"`
}

func jobFromLedger(job *ragpkg.Job) JobResponse {
	resp := JobResponse{
		TaskID:      job.TaskID,
		TaskName:    string(job.TaskName),
		Status:      string(job.Status),
		Progress:    job.Progress,
		Error:       job.ErrorMessage,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
	if len(job.ResultData) > 0 {
		resp.Result = json.RawMessage(job.ResultData)
	}
	return resp
}

// HistoryResponse 会话历史，按时间正序
type HistoryResponse struct {
	SessionID string                `json:"session_id"`
	Messages  []ragpkg.ChatMessage `json:"messages"`
}
