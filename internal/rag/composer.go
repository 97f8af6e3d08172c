package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"agentstack/internal/logger"
	"agentstack/internal/metrics"

	"github.com/pkoukk/tiktoken-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// InsufficientContextAnswer 检索不到任何上下文时的固定回答
const InsufficientContextAnswer = "I don't have enough information to answer that question."

// DefaultSystemPrompt 默认系统提示词：只依据上下文作答并引用文档名
const DefaultSystemPrompt = `You are a helpful assistant that answers questions based on provided context.

Rules:
- Only answer based on the context provided
- If the context doesn't contain the answer, say "I don't have enough information to answer that question."
- Cite your sources by mentioning the document names
- Be concise but thorough`

// contextSeparator 上下文片段之间的分隔符
const contextSeparator = "\n\n---\n\n"

// ComposerConfig 问答参数
type ComposerConfig struct {
	Model        string
	Limit        int
	Threshold    float64
	PassageChars int
	Temperature  float32
	MaxTokens    int
	Timeout      time.Duration // 单次生成调用超时
}

// DefaultComposerConfig 默认问答参数
func DefaultComposerConfig() ComposerConfig {
	return ComposerConfig{
		Model:        "gpt-4o",
		Limit:        5,
		Threshold:    0.6,
		PassageChars: 2000,
		Temperature:  0.7,
		MaxTokens:    1024,
		Timeout:      120 * time.Second,
	}
}

// AnswerRequest 一次问答请求，Model / SystemPrompt 为空时取默认值
type AnswerRequest struct {
	Question     string `json:"question"`
	SessionID    string `json:"session_id,omitempty"`
	Model        string `json:"model,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// RAGComposer 检索 top-k 片段、拼接上下文并调用生成服务
type RAGComposer struct {
	searcher    *Searcher
	completion  CompletionProvider
	cfg         ComposerConfig
	logger      *zap.Logger
	tracer      trace.Tracer
	countTokens func(model, text string) int
}

// NewRAGComposer 创建问答组件，非法参数回落到默认值
func NewRAGComposer(searcher *Searcher, completion CompletionProvider, cfg ComposerConfig, log *zap.Logger) *RAGComposer {
	def := DefaultComposerConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		cfg.Threshold = def.Threshold
	}
	if cfg.PassageChars <= 0 {
		cfg.PassageChars = def.PassageChars
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RAGComposer{
		searcher:    searcher,
		completion:  completion,
		cfg:         cfg,
		logger:      log,
		tracer:      otel.Tracer("agentstack/internal/rag/composer"),
		countTokens: estimateTokens,
	}
}

// Answer 基于知识库回答问题。
// 来源顺序与拼入提示词的片段顺序一致；没有任何片段超过阈值时直接返回固定回答，不调用生成服务。
func (c *RAGComposer) Answer(ctx context.Context, req AnswerRequest) (*Answer, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, newError(KindValidation, "answer", errors.New("question 不能为空"))
	}
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}

	ctx, span := c.tracer.Start(ctx, "RAGComposer.Answer")
	defer span.End()
	span.SetAttributes(
		attribute.String("model", model),
		attribute.String("session_id", req.SessionID),
	)
	log := logger.FromContext(ctx, c.logger).With(
		zap.String("model", model),
		zap.String("session_id", req.SessionID),
	)

	results, err := c.retrieve(ctx, question)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
		metrics.AnswersTotal.WithLabelValues(model, "failed").Inc()
		return nil, err
	}
	span.SetAttributes(attribute.Int("context.sources", len(results)))

	sources := make([]SourceRef, 0, len(results))
	for _, r := range results {
		sources = append(sources, SourceRef{DocumentID: r.DocumentID, Filename: r.Filename, Similarity: r.Similarity})
	}

	if len(results) == 0 {
		metrics.AnswersTotal.WithLabelValues(model, "no_context").Inc()
		log.Info("检索无结果，返回固定回答")
		return &Answer{
			Question: question,
			Answer:   InsufficientContextAnswer,
			Sources:  sources,
			Model:    model,
		}, nil
	}

	messages := BuildPrompt(question, BuildContext(results, c.cfg.PassageChars), req.SystemPrompt)
	resp, err := c.generate(ctx, log, model, messages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
		metrics.AnswersTotal.WithLabelValues(model, "failed").Inc()
		return nil, err
	}

	metrics.AnswersTotal.WithLabelValues(model, "success").Inc()
	metrics.CompletionTokens.WithLabelValues(model).Add(float64(resp.TotalTokens))
	span.SetAttributes(attribute.Int("answer.tokens", resp.TotalTokens))

	log.Info("RAG 问答完成",
		zap.Int("sources", len(sources)),
		zap.Int("tokens", resp.TotalTokens),
	)
	return &Answer{
		Question: question,
		Answer:   resp.Content,
		Sources:  sources,
		Model:    model,
		Tokens:   resp.TotalTokens,
	}, nil
}

func (c *RAGComposer) retrieve(ctx context.Context, question string) ([]SearchResult, error) {
	ctx, span := c.tracer.Start(ctx, "retrieve_context")
	defer span.End()

	results, err := c.searcher.SearchText(ctx, question, c.cfg.Limit, c.cfg.Threshold)
	if err != nil {
		span.RecordError(err)
		return nil, newError(KindSearch, "retrieve", err)
	}
	return results, nil
}

func (c *RAGComposer) generate(ctx context.Context, log *zap.Logger, model string, messages []ChatTurn) (*CompletionResponse, error) {
	ctx, span := c.tracer.Start(ctx, "generate_answer")
	defer span.End()

	promptTokens := 0
	for _, m := range messages {
		promptTokens += c.countTokens(model, m.Content) + 4
	}
	span.SetAttributes(attribute.Int("prompt.estimated_tokens", promptTokens))
	log.Debug("调用生成服务", zap.Int("estimated_prompt_tokens", promptTokens))

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	resp, err := c.completion.Complete(ctx, CompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		span.RecordError(err)
		return nil, &PipelineError{Kind: KindComposition, Op: "generate", Err: err}
	}
	return resp, nil
}

// BuildContext 按排名顺序截断并拼接片段
func BuildContext(results []SearchResult, passageChars int) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, truncateRunes(r.Content, passageChars))
	}
	return strings.Join(parts, contextSeparator)
}

// BuildPrompt 构造 system + user 两条消息
func BuildPrompt(question, contextBlock, systemPrompt string) []ChatTurn {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return []ChatTurn{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer:", contextBlock, question)},
	}
}

var encodings sync.Map // model -> *tiktoken.Tiktoken

// estimateTokens 估算 token 数，编码表不可用时按 4 字符 1 token 近似
func estimateTokens(model, text string) int {
	if v, ok := encodings.Load(model); ok {
		return len(v.(*tiktoken.Tiktoken).Encode(text, nil, nil))
	}
	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tkm, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return approxTokens(text)
		}
	}
	encodings.Store(model, tkm)
	return len(tkm.Encode(text, nil, nil))
}

func approxTokens(text string) int {
	return (len([]rune(text)) + 3) / 4
}
