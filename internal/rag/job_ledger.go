package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JobLedger 记录异步任务生命周期：pending → running → success/failed
// 同一 taskID 最多一条记录，重试通过 Begin 重新置为 running。
type JobLedger interface {
	Begin(ctx context.Context, taskID string, kind JobKind, input any) error
	MarkRunning(ctx context.Context, taskID string) error
	SetProgress(ctx context.Context, taskID string, pct int) error
	MarkSuccess(ctx context.Context, taskID string, result any) error
	MarkFailed(ctx context.Context, taskID string, errMsg string) error
	Get(ctx context.Context, taskID string) (*Job, error)
}

// CanTransition 状态迁移规则；终态不可离开，重试由 Begin 单独处理
func CanTransition(from, to JobStatus) bool {
	if from.IsTerminal() {
		return false
	}
	switch from {
	case JobStatusPending:
		return to == JobStatusRunning || to == JobStatusFailed
	case JobStatusRunning:
		return to == JobStatusRunning || to == JobStatusSuccess || to == JobStatusFailed
	}
	return false
}

// sourcesOf 能迁移到 to 的所有状态
func sourcesOf(to JobStatus) []JobStatus {
	var from []JobStatus
	for _, s := range []JobStatus{JobStatusPending, JobStatusRunning, JobStatusSuccess, JobStatusFailed} {
		if CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

// GormJobLedger 基于 job_status 表的实现
// 每次迁移是一条带状态条件的 UPDATE，并发写入以最后一次为准。
type GormJobLedger struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormJobLedger 创建任务台账
func NewGormJobLedger(db *gorm.DB) *GormJobLedger {
	return &GormJobLedger{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Begin 按 task_id 插入或重置为 running
func (l *GormJobLedger) Begin(ctx context.Context, taskID string, kind JobKind, input any) error {
	if taskID == "" {
		return newError(KindValidation, "ledger.begin", errors.New("task_id 不能为空"))
	}
	payload, err := toJSON(input)
	if err != nil {
		return newError(KindValidation, "ledger.begin", err)
	}

	now := l.now()
	job := Job{
		TaskID:    taskID,
		TaskName:  kind,
		Status:    JobStatusRunning,
		InputData: payload,
		StartedAt: &now,
	}

	err = l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "task_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"status":        JobStatusRunning,
			"started_at":    now,
			"completed_at":  nil,
			"error_message": "",
			"progress":      nil,
			"updated_at":    now,
		}),
	}).Create(&job).Error
	if err != nil {
		return newError(KindStorage, "ledger.begin", err)
	}
	return nil
}

// MarkRunning pending → running
func (l *GormJobLedger) MarkRunning(ctx context.Context, taskID string) error {
	now := l.now()
	return l.transition(ctx, "ledger.mark_running", taskID, JobStatusRunning, map[string]any{
		"status":     JobStatusRunning,
		"started_at": now,
		"updated_at": now,
	})
}

// SetProgress 仅在 running 状态下更新进度
func (l *GormJobLedger) SetProgress(ctx context.Context, taskID string, pct int) error {
	if pct < 0 || pct > 100 {
		return newError(KindValidation, "ledger.set_progress", fmt.Errorf("进度必须在 0-100 之间: %d", pct))
	}

	res := l.db.WithContext(ctx).Model(&Job{}).
		Where("task_id = ? AND status = ?", taskID, JobStatusRunning).
		Updates(map[string]any{"progress": pct, "updated_at": l.now()})
	if res.Error != nil {
		return newError(KindStorage, "ledger.set_progress", res.Error)
	}
	if res.RowsAffected == 0 {
		return l.explainMiss(ctx, "ledger.set_progress", taskID, JobStatusRunning)
	}
	return nil
}

// MarkSuccess 写入结果并进入终态
func (l *GormJobLedger) MarkSuccess(ctx context.Context, taskID string, result any) error {
	payload, err := toJSON(result)
	if err != nil {
		return newError(KindValidation, "ledger.mark_success", err)
	}
	now := l.now()
	return l.transition(ctx, "ledger.mark_success", taskID, JobStatusSuccess, map[string]any{
		"status":       JobStatusSuccess,
		"result_data":  payload,
		"progress":     100,
		"completed_at": now,
		"updated_at":   now,
	})
}

// MarkFailed 写入错误信息并进入终态
func (l *GormJobLedger) MarkFailed(ctx context.Context, taskID string, errMsg string) error {
	now := l.now()
	return l.transition(ctx, "ledger.mark_failed", taskID, JobStatusFailed, map[string]any{
		"status":        JobStatusFailed,
		"error_message": errMsg,
		"completed_at":  now,
		"updated_at":    now,
	})
}

// Get 读取任务记录
func (l *GormJobLedger) Get(ctx context.Context, taskID string) (*Job, error) {
	var job Job
	err := l.db.WithContext(ctx).Where("task_id = ?", taskID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, newError(KindStorage, "ledger.get", err)
	}
	return &job, nil
}

// transition 带源状态条件的更新，保证不会离开终态
func (l *GormJobLedger) transition(ctx context.Context, op, taskID string, to JobStatus, updates map[string]any) error {
	res := l.db.WithContext(ctx).Model(&Job{}).
		Where("task_id = ? AND status IN ?", taskID, sourcesOf(to)).
		Updates(updates)
	if res.Error != nil {
		return newError(KindStorage, op, res.Error)
	}
	if res.RowsAffected == 0 {
		return l.explainMiss(ctx, op, taskID, to)
	}
	return nil
}

// explainMiss 区分记录不存在与非法迁移
func (l *GormJobLedger) explainMiss(ctx context.Context, op, taskID string, to JobStatus) error {
	job, err := l.Get(ctx, taskID)
	if err != nil {
		return newError(KindStorage, op, err)
	}
	return newError(KindStorage, op, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, job.Status, to))
}

// toJSON nil 保持为空，json.RawMessage / []byte 原样保存
func toJSON(v any) (datatypes.JSON, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return datatypes.JSON(val), nil
	case datatypes.JSON:
		return val, nil
	case []byte:
		return datatypes.JSON(val), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("序列化失败: %w", err)
	}
	return datatypes.JSON(data), nil
}
