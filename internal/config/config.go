package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	AI       AIConfig       `mapstructure:"ai"`
	RAG      RagConfig      `mapstructure:"rag"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig 按客户端 IP 的令牌桶限流
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	AutoMigrate     bool   `mapstructure:"auto_migrate"`      // 是否自动迁移表结构
}

// RedisConfig Redis 配置（任务队列与向量缓存共用）
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`      // 连接池大小
	MinIdleConns int    `mapstructure:"min_idle_conns"` // 最小空闲连接数
}

// Addr 返回 host:port
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// AIConfig AI 模型配置
type AIConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig OpenAI 兼容网关配置（LiteLLM 等）
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	OrgID   string `mapstructure:"org_id"`
}

// RagConfig RAG 相关配置
type RagConfig struct {
	Embedding   EmbeddingConfig   `mapstructure:"embedding"`
	Chunk       ChunkConfig       `mapstructure:"chunk"`
	Search      SearchConfig      `mapstructure:"search"`
	Answer      AnswerConfig      `mapstructure:"answer"`
	Ingest      IngestConfig      `mapstructure:"ingest"`
	VectorStore VectorStoreConfig `mapstructure:"vector_store"`
	Cache       CacheConfig       `mapstructure:"cache"`
}

// EmbeddingConfig 向量化配置
type EmbeddingConfig struct {
	Model          string        `mapstructure:"model"`
	Dimensions     int           `mapstructure:"dimensions"`
	MaxInputChars  int           `mapstructure:"max_input_chars"` // 近似 token 上限的字符预算
	BatchSize      int           `mapstructure:"batch_size"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Timeout        time.Duration `mapstructure:"timeout"` // 单次调用超时
}

// ChunkConfig 分块配置
type ChunkConfig struct {
	Size    int `mapstructure:"size"`
	Overlap int `mapstructure:"overlap"`
}

// SearchConfig 检索默认参数
type SearchConfig struct {
	Limit     int     `mapstructure:"limit"`
	Threshold float64 `mapstructure:"threshold"`
}

// AnswerConfig RAG 问答配置
type AnswerConfig struct {
	Model        string        `mapstructure:"model"`
	Limit        int           `mapstructure:"limit"`
	Threshold    float64       `mapstructure:"threshold"`
	PassageChars int           `mapstructure:"passage_chars"`
	Temperature  float32       `mapstructure:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// IngestConfig 文档摄取配置
type IngestConfig struct {
	SummaryChars     int           `mapstructure:"summary_chars"` // 摘要向量使用的前 N 个字符
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
	MaxDownloadBytes int64         `mapstructure:"max_download_bytes"`
	AllowLocalFiles  bool          `mapstructure:"allow_local_files"` // 允许 source_url 为本地路径
}

// VectorStoreConfig 向量存储配置
type VectorStoreConfig struct {
	Type string `mapstructure:"type"` // pgvector, memory
}

// CacheConfig 查询向量缓存配置
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Prefix  string        `mapstructure:"prefix"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// WorkerConfig 任务 Worker 配置
type WorkerConfig struct {
	Concurrency      int            `mapstructure:"concurrency"`
	Queues           map[string]int `mapstructure:"queues"`
	BatchConcurrency int            `mapstructure:"batch_concurrency"` // 批量摄取并发度，1 为顺序执行
	MaxRetry         int            `mapstructure:"max_retry"`
	IngestTimeout    time.Duration  `mapstructure:"ingest_timeout"`
	BatchTimeout     time.Duration  `mapstructure:"batch_timeout"`
	QueryTimeout     time.Duration  `mapstructure:"query_timeout"`
}

// Default 返回带全部默认值的配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// 默认值均为合法类型，解析不会失败
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load 加载配置
// env: 环境名称（dev, prod, test）
// configPath: 配置文件路径（可选）
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath == "" {
		v.SetConfigName(env) // dev.yaml, prod.yaml
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	} else {
		v.SetConfigFile(configPath)
	}

	v.SetConfigType("yaml")

	// 读取环境变量（优先级高于配置文件）
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // APP_DATABASE_HOST

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验配置的内部一致性
func (c *Config) Validate() error {
	if c.RAG.Chunk.Size <= 0 {
		return fmt.Errorf("rag.chunk.size 必须大于 0")
	}
	if c.RAG.Chunk.Overlap < 0 || c.RAG.Chunk.Overlap >= c.RAG.Chunk.Size {
		return fmt.Errorf("rag.chunk.overlap 必须在 [0, size) 范围内: %d", c.RAG.Chunk.Overlap)
	}
	if c.RAG.Embedding.Dimensions <= 0 {
		return fmt.Errorf("rag.embedding.dimensions 必须大于 0")
	}
	if c.RAG.Embedding.MaxAttempts <= 0 {
		return fmt.Errorf("rag.embedding.max_attempts 必须大于 0")
	}
	if c.RAG.Embedding.BatchSize <= 0 {
		return fmt.Errorf("rag.embedding.batch_size 必须大于 0")
	}
	switch c.RAG.VectorStore.Type {
	case "pgvector", "memory":
	default:
		return fmt.Errorf("不支持的向量存储类型: %s (可选: pgvector, memory)", c.RAG.VectorStore.Type)
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency 必须大于 0")
	}
	return nil
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 120)
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.requests_per_second", 10)
	v.SetDefault("server.rate_limit.burst", 20)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "agentstack")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 15)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 3600)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("ai.openai.base_url", "http://localhost:4000/v1")

	v.SetDefault("rag.embedding.model", "text-embedding-3-small")
	v.SetDefault("rag.embedding.dimensions", 1536)
	v.SetDefault("rag.embedding.max_input_chars", 30000)
	v.SetDefault("rag.embedding.batch_size", 100)
	v.SetDefault("rag.embedding.max_attempts", 3)
	v.SetDefault("rag.embedding.initial_backoff", 2*time.Second)
	v.SetDefault("rag.embedding.max_backoff", 10*time.Second)
	v.SetDefault("rag.embedding.timeout", 60*time.Second)

	v.SetDefault("rag.chunk.size", 1000)
	v.SetDefault("rag.chunk.overlap", 200)

	v.SetDefault("rag.search.limit", 5)
	v.SetDefault("rag.search.threshold", 0.7)

	v.SetDefault("rag.answer.model", "gpt-4o")
	v.SetDefault("rag.answer.limit", 5)
	v.SetDefault("rag.answer.threshold", 0.6)
	v.SetDefault("rag.answer.passage_chars", 2000)
	v.SetDefault("rag.answer.temperature", 0.7)
	v.SetDefault("rag.answer.max_tokens", 1024)
	v.SetDefault("rag.answer.timeout", 120*time.Second)

	v.SetDefault("rag.ingest.summary_chars", 8000)
	v.SetDefault("rag.ingest.fetch_timeout", 120*time.Second)
	v.SetDefault("rag.ingest.max_download_bytes", int64(100<<20))
	v.SetDefault("rag.ingest.allow_local_files", false)

	v.SetDefault("rag.vector_store.type", "pgvector")

	v.SetDefault("rag.cache.enabled", true)
	v.SetDefault("rag.cache.prefix", "emb:")
	v.SetDefault("rag.cache.ttl", 7*24*time.Hour)

	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.queues", map[string]int{"ingest": 3, "query": 6, "default": 1})
	v.SetDefault("worker.batch_concurrency", 1)
	v.SetDefault("worker.max_retry", 3)
	v.SetDefault("worker.ingest_timeout", 10*time.Minute)
	v.SetDefault("worker.batch_timeout", time.Hour)
	v.SetDefault("worker.query_timeout", 2*time.Minute)
}
