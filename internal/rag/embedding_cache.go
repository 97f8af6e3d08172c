package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"agentstack/internal/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EmbeddingCache 查询向量缓存：进程内 L1 + Redis L2，redis 为空时只用本地缓存
type EmbeddingCache struct {
	redis        *redis.Client
	prefix       string
	ttl          time.Duration
	maxLocalSize int
	logger       *zap.Logger

	mu    sync.Mutex
	local map[string][]float32
}

// cachedEmbedding Redis 中的存储格式
type cachedEmbedding struct {
	Vector    []float32 `json:"vector"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewEmbeddingCache 创建向量缓存
func NewEmbeddingCache(redisClient *redis.Client, prefix string, ttl time.Duration, log *zap.Logger) *EmbeddingCache {
	if prefix == "" {
		prefix = "emb:"
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EmbeddingCache{
		redis:        redisClient,
		prefix:       prefix,
		ttl:          ttl,
		maxLocalSize: 10000,
		logger:       log,
		local:        make(map[string][]float32),
	}
}

// Get 读取缓存
func (c *EmbeddingCache) Get(ctx context.Context, text, model string) ([]float32, bool) {
	key := c.makeKey(text, model)

	c.mu.Lock()
	vec, ok := c.local[key]
	c.mu.Unlock()
	if ok {
		return copyVector(vec), true
	}

	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("读取向量缓存失败", zap.Error(err))
		}
		return nil, false
	}

	var cached cachedEmbedding
	if err := json.Unmarshal(data, &cached); err != nil || cached.Model != model {
		return nil, false
	}
	c.setLocal(key, cached.Vector)
	return copyVector(cached.Vector), true
}

// Set 写入缓存，Redis 写失败只影响 L2
func (c *EmbeddingCache) Set(ctx context.Context, text, model string, vector []float32) error {
	key := c.makeKey(text, model)
	c.setLocal(key, copyVector(vector))

	if c.redis == nil {
		return nil
	}
	data, err := json.Marshal(cachedEmbedding{Vector: vector, Model: model, CreatedAt: time.Now()})
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, key, data, c.ttl).Err()
}

// makeKey 缓存键：前缀 + 模型 + 文本哈希
func (c *EmbeddingCache) makeKey(text, model string) string {
	hash := sha256.Sum256([]byte(text))
	return c.prefix + model + ":" + hex.EncodeToString(hash[:16])
}

func (c *EmbeddingCache) setLocal(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 满了就清掉一半
	if len(c.local) >= c.maxLocalSize {
		n := 0
		for k := range c.local {
			if n >= c.maxLocalSize/2 {
				break
			}
			delete(c.local, k)
			n++
		}
	}
	c.local[key] = vector
}

// CachedEmbedder 带缓存的 Embedder 包装器，用于检索查询
type CachedEmbedder struct {
	next  Embedder
	cache *EmbeddingCache
}

// NewCachedEmbedder 创建带缓存的 Embedder
func NewCachedEmbedder(next Embedder, cache *EmbeddingCache) *CachedEmbedder {
	return &CachedEmbedder{next: next, cache: cache}
}

// Embed 单条向量化（带缓存）
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	model := e.next.Model()

	if vec, ok := e.cache.Get(ctx, text, model); ok {
		metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
		return vec, nil
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()

	vec, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := e.cache.Set(ctx, text, model, vec); err != nil {
		e.cache.logger.Warn("写入向量缓存失败", zap.Error(err))
	}
	return vec, nil
}

// EmbedBatch 批量向量化，只对未命中的文本调用下游
func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	model := e.next.Model()
	result := make([][]float32, len(texts))

	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if vec, ok := e.cache.Get(ctx, text, model); ok {
			result[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return result, nil
	}

	vectors, err := e.next.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, idx := range missingIdx {
		result[idx] = vectors[j]
		if err := e.cache.Set(ctx, missing[j], model, vectors[j]); err != nil {
			e.cache.logger.Warn("写入向量缓存失败", zap.Error(err))
		}
	}
	return result, nil
}

// Model 下游模型
func (e *CachedEmbedder) Model() string {
	return e.next.Model()
}

// Dimensions 下游维度
func (e *CachedEmbedder) Dimensions() int {
	return e.next.Dimensions()
}

func copyVector(v []float32) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
