package rag

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig OpenAI 兼容服务的连接参数
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // 为空时使用官方地址，可指向 LiteLLM 等兼容网关
}

// newOpenAIClient 按配置创建客户端
func newOpenAIClient(cfg OpenAIConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// OpenAIEmbeddingProvider OpenAI向量化服务提供者
type OpenAIEmbeddingProvider struct {
	client     *openai.Client
	model      string // 默认使用 text-embedding-3-small
	dimensions int
}

// NewOpenAIEmbeddingProvider 创建OpenAI向量化提供者
// dimensions 为 0 时不向服务端声明维度
func NewOpenAIEmbeddingProvider(cfg OpenAIConfig, model string, dimensions int) *OpenAIEmbeddingProvider {
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	return &OpenAIEmbeddingProvider{
		client:     newOpenAIClient(cfg),
		model:      model,
		dimensions: dimensions,
	}
}

// Embed 将单条文本转换为向量
func (p *OpenAIEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 一次请求向量化多条文本，返回顺序与输入一致
// 分批与重试由 EmbeddingGenerator 负责，这里只做单次调用
func (p *OpenAIEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	}
	// 只有 text-embedding-3 系列支持声明维度
	if p.dimensions > 0 && p.model != string(openai.AdaEmbeddingV2) {
		req.Dimensions = p.dimensions
	}

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("调用OpenAI Embeddings API失败: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: 期望%d, 实际%d", ErrProviderMismatched, len(texts), len(resp.Data))
	}

	// 服务端按 index 返回，不保证顺序
	embeddings := make([][]float32, len(texts))
	for i, data := range resp.Data {
		idx := data.Index
		if idx < 0 || idx >= len(texts) || embeddings[idx] != nil {
			idx = i
		}
		embeddings[idx] = data.Embedding
	}

	return embeddings, nil
}

// GetModel 获取当前使用的模型
func (p *OpenAIEmbeddingProvider) GetModel() string {
	return p.model
}

// GetProviderName 获取提供商名称
func (p *OpenAIEmbeddingProvider) GetProviderName() string {
	return "openai"
}
