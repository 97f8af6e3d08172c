package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentstack_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentstack_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 摄取指标
var (
	// IngestTotal 文档摄取次数
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentstack_ingest_total",
			Help: "文档摄取总数",
		},
		[]string{"source_type", "status"},
	)

	// IngestDuration 单篇文档摄取耗时（秒）
	IngestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentstack_ingest_duration_seconds",
			Help:    "文档摄取耗时分布",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"source_type"},
	)

	// IngestChars 入库文档字符数
	IngestChars = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentstack_ingest_document_chars",
			Help:    "入库文档的 Markdown 字符数分布",
			Buckets: prometheus.ExponentialBuckets(1000, 4, 8),
		},
	)

	// BatchItemsTotal 批量摄取中逐项结果
	BatchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentstack_batch_items_total",
			Help: "批量摄取条目总数",
		},
		[]string{"status"},
	)
)

// 向量化指标
var (
	// EmbeddingRequestsTotal 向量服务调用次数（每次网络请求计一次）
	EmbeddingRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentstack_embedding_requests_total",
			Help: "向量服务调用总数",
		},
		[]string{"model", "status"},
	)

	// EmbeddingRetriesTotal 向量服务重试次数
	EmbeddingRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentstack_embedding_retries_total",
			Help: "向量服务重试总数",
		},
		[]string{"model"},
	)

	// EmbeddingDuration 向量化耗时（含重试）
	EmbeddingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentstack_embedding_duration_seconds",
			Help:    "向量化耗时分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	// EmbeddingCacheTotal 查询向量缓存命中情况
	EmbeddingCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentstack_embedding_cache_total",
			Help: "向量缓存查询总数",
		},
		[]string{"result"}, // hit, miss
	)
)

// 检索与问答指标
var (
	// SearchesTotal 语义检索总数
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentstack_searches_total",
			Help: "语义检索总数",
		},
		[]string{"status"},
	)

	// SearchDuration 检索耗时（秒）
	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentstack_search_duration_seconds",
			Help:    "语义检索耗时分布",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	// SearchResults 检索返回结果数
	SearchResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentstack_search_results",
			Help:    "语义检索返回结果数量分布",
			Buckets: []float64{0, 1, 3, 5, 10, 20, 50},
		},
	)

	// AnswersTotal RAG 问答总数
	AnswersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentstack_answers_total",
			Help: "RAG 问答总数",
		},
		[]string{"model", "status"},
	)

	// CompletionTokens 生成服务消耗的 Token
	CompletionTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentstack_completion_tokens_total",
			Help: "生成服务 Token 消耗总数",
		},
		[]string{"model"},
	)
)

// 任务指标
var (
	// TasksTotal 后台任务执行总数
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentstack_tasks_total",
			Help: "后台任务执行总数",
		},
		[]string{"task_type", "status"},
	)

	// TasksRunning 正在执行的任务数
	TasksRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentstack_tasks_running",
			Help: "正在执行的后台任务数",
		},
		[]string{"task_type"},
	)

	// TaskDuration 任务耗时（秒）
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentstack_task_duration_seconds",
			Help:    "后台任务耗时分布",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"task_type"},
	)
)

// 系统指标
var (
	// DBConnections 数据库连接数
	DBConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentstack_db_connections",
			Help: "数据库连接数",
		},
		[]string{"state"}, // open, in_use, idle
	)

	// Goroutines Goroutine 数量
	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentstack_go_goroutines",
			Help: "当前 Goroutine 数量",
		},
	)

	// MemoryAlloc 当前堆内存（字节）
	MemoryAlloc = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentstack_go_memory_alloc_bytes",
			Help: "当前 Go 堆内存分配量",
		},
	)
)
