package rag

import "context"

// EmbeddingProvider 抽象不同向量模型/服务的统一接口（单次网络调用，不含重试）
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	GetModel() string
	GetProviderName() string
}

// Embedder 流水线使用的向量化能力：已包含截断、分批与重试
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimensions() int
}
