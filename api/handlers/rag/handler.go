package rag

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	response "agentstack/api/handlers/common"
	"agentstack/internal/infra/queue"
	"agentstack/internal/logger"
	ragpkg "agentstack/internal/rag"
	"agentstack/internal/worker/tasks"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TaskQueue 入队与队列侧状态查询
type TaskQueue interface {
	EnqueueIngest(ctx context.Context, payload tasks.IngestDocumentPayload) (string, error)
	EnqueueBatch(ctx context.Context, payload tasks.IngestBatchPayload) (string, error)
	EnqueueSearch(ctx context.Context, payload tasks.SemanticSearchPayload) (string, error)
	EnqueueRAGQuery(ctx context.Context, payload tasks.RAGQueryPayload) (string, error)
	GetTaskState(ctx context.Context, taskID string) (*queue.TaskState, error)
}

// QueryService 同步检索与问答
type QueryService interface {
	Search(ctx context.Context, taskID, query string, limit int, threshold float64) ([]ragpkg.SearchResult, error)
	Answer(ctx context.Context, taskID string, req ragpkg.AnswerRequest) (*ragpkg.Answer, error)
}

// JobReader 台账读取
type JobReader interface {
	Get(ctx context.Context, taskID string) (*ragpkg.Job, error)
}

// KnowledgeReader 文档与会话历史读取
type KnowledgeReader interface {
	GetDocument(ctx context.Context, id string) (*ragpkg.Document, error)
	GetChatHistory(ctx context.Context, sessionID string, limit int) ([]ragpkg.ChatMessage, error)
}

// Handler RAG HTTP 处理器
type Handler struct {
	queue     TaskQueue
	query     QueryService
	jobs      JobReader
	knowledge KnowledgeReader
	logger    *zap.Logger
}

// NewHandler 创建处理器
func NewHandler(q TaskQueue, query QueryService, jobs JobReader, knowledge KnowledgeReader, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		queue:     q,
		query:     query,
		jobs:      jobs,
		knowledge: knowledge,
		logger:    log,
	}
}

// Ingest 提交单篇摄取任务
// @Summary 提交文档摄取
// @Tags RAG
// @Accept json
// @Produce json
// @Param request body IngestRequest true "摄取请求"
// @Success 202 {object} TaskAccepted
// @Failure 400 {object} response.ErrorResponse
// @Router /api/ingest [post]
func (h *Handler) Ingest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	taskID, err := h.queue.EnqueueIngest(c.Request.Context(), tasks.IngestDocumentPayload{
		SourceURL: req.SourceURL,
		Metadata:  req.Metadata,
	})
	h.accepted(c, taskID, err)
}

// IngestBatch 提交批量摄取任务
// @Summary 提交批量摄取
// @Tags RAG
// @Accept json
// @Produce json
// @Param request body BatchIngestRequest true "批量摄取请求"
// @Success 202 {object} TaskAccepted
// @Failure 400 {object} response.ErrorResponse
// @Router /api/ingest/batch [post]
func (h *Handler) IngestBatch(c *gin.Context) {
	var req BatchIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	taskID, err := h.queue.EnqueueBatch(c.Request.Context(), tasks.IngestBatchPayload{
		SourceURLs: req.SourceURLs,
		Metadata:   req.Metadata,
	})
	h.accepted(c, taskID, err)
}

// Search 同步语义检索
// @Summary 语义检索
// @Tags RAG
// @Accept json
// @Produce json
// @Param request body SearchRequest true "检索请求"
// @Success 200 {object} SearchResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 502 {object} response.ErrorResponse
// @Router /api/search [post]
func (h *Handler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	results, err := h.query.Search(c.Request.Context(), "", req.Query, req.limit(), req.threshold())
	if err != nil {
		h.fail(c, "检索失败", err)
		return
	}
	if results == nil {
		results = []ragpkg.SearchResult{}
	}
	c.JSON(http.StatusOK, response.APIResponse{
		Success: true,
		Data: SearchResponse{
			Query:   req.Query,
			Results: results,
			Total:   len(results),
		},
	})
}

// SearchAsync 提交检索任务，结果经任务状态接口读取
// @Summary 异步语义检索
// @Tags RAG
// @Accept json
// @Produce json
// @Param request body SearchRequest true "检索请求"
// @Success 202 {object} TaskAccepted
// @Router /api/search/async [post]
func (h *Handler) SearchAsync(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	taskID, err := h.queue.EnqueueSearch(c.Request.Context(), tasks.SemanticSearchPayload{
		Query:     req.Query,
		Limit:     req.Limit,
		Threshold: req.Threshold,
	})
	h.accepted(c, taskID, err)
}

// Query 提交 RAG 问答任务
// @Summary RAG 问答
// @Tags RAG
// @Accept json
// @Produce json
// @Param request body QueryRequest true "问答请求"
// @Success 202 {object} TaskAccepted
// @Router /api/rag/query [post]
func (h *Handler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	taskID, err := h.queue.EnqueueRAGQuery(c.Request.Context(), tasks.RAGQueryPayload{
		Question:     req.Question,
		SessionID:    req.SessionID,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
	})
	h.accepted(c, taskID, err)
}

// Answer 同步 RAG 问答
// @Summary 同步 RAG 问答
// @Tags RAG
// @Accept json
// @Produce json
// @Param request body QueryRequest true "问答请求"
// @Success 200 {object} ragpkg.Answer
// @Failure 502 {object} response.ErrorResponse
// @Router /api/rag/answer [post]
func (h *Handler) Answer(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	answer, err := h.query.Answer(c.Request.Context(), "", ragpkg.AnswerRequest{
		Question:     req.Question,
		SessionID:    req.SessionID,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		h.fail(c, "问答失败", err)
		return
	}
	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: answer})
}

// GetJob 查询任务状态
// @Summary 任务状态
// @Tags RAG
// @Produce json
// @Param task_id path string true "任务 ID"
// @Success 200 {object} JobResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/jobs/{task_id} [get]
func (h *Handler) GetJob(c *gin.Context) {
	taskID := c.Param("task_id")
	ctx := c.Request.Context()

	job, err := h.jobs.Get(ctx, taskID)
	if err == nil {
		c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: jobFromLedger(job)})
		return
	}
	if !errors.Is(err, ragpkg.ErrJobNotFound) {
		h.fail(c, "查询任务失败", err)
		return
	}

	// Worker 尚未开始处理时台账中没有记录
	state, err := h.queue.GetTaskState(ctx, taskID)
	if err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, response.ErrorResponse{Success: false, Code: "not_found", Message: "任务不存在"})
			return
		}
		h.fail(c, "查询任务失败", err)
		return
	}
	c.JSON(http.StatusOK, response.APIResponse{
		Success: true,
		Data: JobResponse{
			TaskID:      state.ID,
			TaskName:    state.Type,
			Status:      statusFromQueue(state.State),
			Result:      state.Result,
			Error:       state.LastError,
			CompletedAt: state.CompletedAt,
			QueueState:  state.State,
		},
	})
}

// GetDocument 读取已摄取文档
// @Summary 文档详情
// @Tags RAG
// @Produce json
// @Param id path string true "文档 ID"
// @Success 200 {object} ragpkg.Document
// @Failure 404 {object} response.ErrorResponse
// @Router /api/documents/{id} [get]
func (h *Handler) GetDocument(c *gin.Context) {
	doc, err := h.knowledge.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "读取文档失败", err)
		return
	}
	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: doc})
}

// GetHistory 读取会话历史
// @Summary 会话历史
// @Tags RAG
// @Produce json
// @Param session_id path string true "会话 ID"
// @Param limit query int false "条数" default(10)
// @Success 200 {object} HistoryResponse
// @Router /api/sessions/{session_id}/history [get]
func (h *Handler) GetHistory(c *gin.Context) {
	sessionID := c.Param("session_id")
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 || limit > 100 {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Code: string(ragpkg.KindValidation), Message: "limit 必须在 1-100 之间"})
		return
	}

	msgs, err := h.knowledge.GetChatHistory(c.Request.Context(), sessionID, limit)
	if err != nil {
		h.fail(c, "读取会话历史失败", err)
		return
	}
	if msgs == nil {
		msgs = []ragpkg.ChatMessage{}
	}
	c.JSON(http.StatusOK, response.APIResponse{
		Success: true,
		Data:    HistoryResponse{SessionID: sessionID, Messages: msgs},
	})
}

func (h *Handler) accepted(c *gin.Context, taskID string, err error) {
	if err != nil {
		h.fail(c, "提交任务失败", err)
		return
	}
	c.JSON(http.StatusAccepted, response.APIResponse{
		Success: true,
		Data:    TaskAccepted{TaskID: taskID, Status: string(ragpkg.JobStatusPending)},
	})
}

func (h *Handler) fail(c *gin.Context, msg string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context(), h.logger).Error(msg,
			zap.String("path", c.FullPath()),
			zap.String("code", code),
			zap.Error(err),
		)
	}
	c.JSON(status, response.ErrorResponse{Success: false, Code: code, Message: msg + ": " + err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, response.ErrorResponse{
		Success: false,
		Code:    string(ragpkg.KindValidation),
		Message: "参数错误: " + err.Error(),
	})
}

// statusFor 错误类别到 HTTP 状态码：参数错误 400，不存在 404，上游服务失败 502，其余 500
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ragpkg.ErrDocumentNotFound), errors.Is(err, ragpkg.ErrJobNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, tasks.ErrInvalidPayload):
		return http.StatusBadRequest, string(ragpkg.KindValidation)
	}

	kind := ragpkg.KindOf(err)
	switch kind {
	case ragpkg.KindValidation:
		return http.StatusBadRequest, string(kind)
	case ragpkg.KindEmbedding, ragpkg.KindComposition, ragpkg.KindFetch:
		return http.StatusBadGateway, string(kind)
	default:
		return http.StatusInternalServerError, string(kind)
	}
}

// statusFromQueue 队列状态映射到台账状态
func statusFromQueue(state string) string {
	switch state {
	case "active":
		return string(ragpkg.JobStatusRunning)
	case "completed":
		return string(ragpkg.JobStatusSuccess)
	case "archived":
		return string(ragpkg.JobStatusFailed)
	default:
		return string(ragpkg.JobStatusPending)
	}
}
