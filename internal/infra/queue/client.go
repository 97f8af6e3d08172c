package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agentstack/internal/config"
	"agentstack/internal/worker/tasks"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// ErrTaskNotFound 所有队列中都找不到该任务
var ErrTaskNotFound = errors.New("任务不存在")

// Client 任务队列客户端接口，Enqueue* 返回任务 ID，同时作为台账 task_id
type Client interface {
	EnqueueIngest(ctx context.Context, payload tasks.IngestDocumentPayload) (string, error)
	EnqueueBatch(ctx context.Context, payload tasks.IngestBatchPayload) (string, error)
	EnqueueSearch(ctx context.Context, payload tasks.SemanticSearchPayload) (string, error)
	EnqueueRAGQuery(ctx context.Context, payload tasks.RAGQueryPayload) (string, error)
	GetTaskState(ctx context.Context, taskID string) (*TaskState, error)
	Close() error
}

// TaskState 队列侧看到的任务状态
type TaskState struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Queue         string          `json:"queue"`
	State         string          `json:"state"` // pending, active, scheduled, retry, archived, completed
	Retried       int             `json:"retried"`
	MaxRetry      int             `json:"max_retry"`
	LastError     string          `json:"last_error,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	NextProcessAt *time.Time      `json:"next_process_at,omitempty"`
}

// TaskOptions 任务选项
type TaskOptions struct {
	Queue     string
	MaxRetry  int           // 最大重试次数，0 表示不重试
	Timeout   time.Duration // 超时时间
	TaskID    string        // 任务 ID，用于去重和查询
	Retention time.Duration // 完成后保留时间，结果在此期间可查询
}

// Options 转换为 asynq 选项
func (o TaskOptions) Options() []asynq.Option {
	opts := []asynq.Option{asynq.MaxRetry(o.MaxRetry)}
	if o.Queue != "" {
		opts = append(opts, asynq.Queue(o.Queue))
	}
	if o.Timeout > 0 {
		opts = append(opts, asynq.Timeout(o.Timeout))
	}
	if o.TaskID != "" {
		opts = append(opts, asynq.TaskID(o.TaskID))
	}
	if o.Retention > 0 {
		opts = append(opts, asynq.Retention(o.Retention))
	}
	return opts
}

// defaultRetention 任务结果保留 24 小时
const defaultRetention = 24 * time.Hour

// OptionsFor 按任务类型给出默认选项：单篇摄取可重试，批量与查询类任务不重试
func OptionsFor(taskType string, cfg config.WorkerConfig) TaskOptions {
	opts := TaskOptions{Retention: defaultRetention}
	switch taskType {
	case tasks.TypeIngestDocument:
		opts.Queue = tasks.QueueIngest
		opts.MaxRetry = cfg.MaxRetry
		opts.Timeout = cfg.IngestTimeout
	case tasks.TypeIngestBatch:
		opts.Queue = tasks.QueueIngest
		opts.Timeout = cfg.BatchTimeout
	case tasks.TypeSemanticSearch, tasks.TypeRAGQuery:
		opts.Queue = tasks.QueueQuery
		opts.Timeout = cfg.QueryTimeout
	default:
		opts.Queue = tasks.QueueDefault
	}
	return opts
}

// NewTask 序列化载荷
func NewTask(taskType string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload failed: %w", err)
	}
	return asynq.NewTask(taskType, data), nil
}

// RedisOpt 由配置构造 asynq 的 Redis 连接参数
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

type asynqClient struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	cfg       config.WorkerConfig
}

// NewClient 创建任务队列客户端
func NewClient(redisCfg config.RedisConfig, workerCfg config.WorkerConfig) Client {
	opt := RedisOpt(redisCfg)
	return &asynqClient{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		cfg:       workerCfg,
	}
}

func (c *asynqClient) EnqueueIngest(ctx context.Context, payload tasks.IngestDocumentPayload) (string, error) {
	return c.enqueue(ctx, tasks.TypeIngestDocument, payload)
}

func (c *asynqClient) EnqueueBatch(ctx context.Context, payload tasks.IngestBatchPayload) (string, error) {
	return c.enqueue(ctx, tasks.TypeIngestBatch, payload)
}

func (c *asynqClient) EnqueueSearch(ctx context.Context, payload tasks.SemanticSearchPayload) (string, error) {
	return c.enqueue(ctx, tasks.TypeSemanticSearch, payload)
}

func (c *asynqClient) EnqueueRAGQuery(ctx context.Context, payload tasks.RAGQueryPayload) (string, error) {
	return c.enqueue(ctx, tasks.TypeRAGQuery, payload)
}

func (c *asynqClient) enqueue(ctx context.Context, taskType string, payload any) (string, error) {
	if err := tasks.Validate(payload); err != nil {
		return "", err
	}
	task, err := NewTask(taskType, payload)
	if err != nil {
		return "", err
	}

	opts := OptionsFor(taskType, c.cfg)
	opts.TaskID = uuid.NewString()

	info, err := c.client.EnqueueContext(ctx, task, opts.Options()...)
	if err != nil {
		return "", fmt.Errorf("enqueue task failed: %w", err)
	}
	return info.ID, nil
}

// GetTaskState 依次在各队列中查找任务
func (c *asynqClient) GetTaskState(ctx context.Context, taskID string) (*TaskState, error) {
	for _, q := range []string{tasks.QueueIngest, tasks.QueueQuery, tasks.QueueDefault} {
		info, err := c.inspector.GetTaskInfo(q, taskID)
		if err != nil {
			if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
				continue
			}
			return nil, fmt.Errorf("查询任务失败: %w", err)
		}
		return toTaskState(info), nil
	}
	return nil, ErrTaskNotFound
}

func toTaskState(info *asynq.TaskInfo) *TaskState {
	state := &TaskState{
		ID:        info.ID,
		Type:      info.Type,
		Queue:     info.Queue,
		State:     info.State.String(),
		Retried:   info.Retried,
		MaxRetry:  info.MaxRetry,
		LastError: info.LastErr,
	}
	if len(info.Result) > 0 && json.Valid(info.Result) {
		state.Result = json.RawMessage(info.Result)
	}
	if !info.CompletedAt.IsZero() {
		t := info.CompletedAt
		state.CompletedAt = &t
	}
	if !info.NextProcessAt.IsZero() {
		t := info.NextProcessAt
		state.NextProcessAt = &t
	}
	return state
}

func (c *asynqClient) Close() error {
	if err := c.inspector.Close(); err != nil {
		_ = c.client.Close()
		return err
	}
	return c.client.Close()
}
