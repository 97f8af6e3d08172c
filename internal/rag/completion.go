package rag

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// ChatTurn 一条对话消息
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest 生成请求
type CompletionRequest struct {
	Model       string
	Messages    []ChatTurn
	Temperature float32
	MaxTokens   int
}

// CompletionResponse 生成结果及用量
type CompletionResponse struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionProvider 生成服务
type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// OpenAICompletionProvider OpenAI 兼容的 Chat Completions 实现
type OpenAICompletionProvider struct {
	client *openai.Client
}

// NewOpenAICompletionProvider 创建生成服务
func NewOpenAICompletionProvider(cfg OpenAIConfig) *OpenAICompletionProvider {
	return &OpenAICompletionProvider{client: newOpenAIClient(cfg)}
}

// Complete 调用 Chat Completions
func (p *OpenAICompletionProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("调用 Chat Completions 失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return &CompletionResponse{
		Content:          resp.Choices[0].Message.Content,
		Model:            model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}
