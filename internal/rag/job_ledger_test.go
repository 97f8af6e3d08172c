package rag

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatus_IsTerminal(t *testing.T) {
	assert.False(t, JobStatusPending.IsTerminal())
	assert.False(t, JobStatusRunning.IsTerminal())
	assert.True(t, JobStatusSuccess.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusPending, JobStatusRunning, true},
		{JobStatusPending, JobStatusFailed, true},
		{JobStatusPending, JobStatusSuccess, false},
		{JobStatusRunning, JobStatusSuccess, true},
		{JobStatusRunning, JobStatusFailed, true},
		{JobStatusRunning, JobStatusPending, false},
		{JobStatusSuccess, JobStatusRunning, false},
		{JobStatusSuccess, JobStatusFailed, false},
		{JobStatusFailed, JobStatusSuccess, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s → %s", tc.from, tc.to)
	}
}

func TestGormJobLedger_Lifecycle(t *testing.T) {
	ledger := NewGormJobLedger(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, ledger.Begin(ctx, "task-1", JobKindIngest, map[string]any{"source_url": "https://x/doc.pdf"}))

	job, err := ledger.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, JobStatusRunning, job.Status)
	assert.Equal(t, JobKindIngest, job.TaskName)
	assert.NotNil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)
	assert.JSONEq(t, `{"source_url":"https://x/doc.pdf"}`, string(job.InputData))

	require.NoError(t, ledger.SetProgress(ctx, "task-1", 40))
	job, _ = ledger.Get(ctx, "task-1")
	require.NotNil(t, job.Progress)
	assert.Equal(t, 40, *job.Progress)

	require.NoError(t, ledger.MarkSuccess(ctx, "task-1", map[string]any{"document_id": "d1"}))
	job, _ = ledger.Get(ctx, "task-1")
	assert.Equal(t, JobStatusSuccess, job.Status)
	assert.Equal(t, 100, *job.Progress)
	assert.NotNil(t, job.CompletedAt)

	var result map[string]any
	require.NoError(t, json.Unmarshal(job.ResultData, &result))
	assert.Equal(t, "d1", result["document_id"])
}

func TestGormJobLedger_TerminalStateIsSticky(t *testing.T) {
	ledger := NewGormJobLedger(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, ledger.Begin(ctx, "task-2", JobKindIngest, nil))
	require.NoError(t, ledger.MarkFailed(ctx, "task-2", "EmbeddingError: upstream 503"))

	err := ledger.MarkSuccess(ctx, "task-2", nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	err = ledger.SetProgress(ctx, "task-2", 10)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	err = ledger.MarkRunning(ctx, "task-2")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	job, err := ledger.Get(ctx, "task-2")
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "EmbeddingError: upstream 503", job.ErrorMessage)
}

func TestGormJobLedger_BeginIsIdempotentUpsert(t *testing.T) {
	db := newTestDB(t)
	ledger := NewGormJobLedger(db)
	ctx := context.Background()

	require.NoError(t, ledger.Begin(ctx, "task-3", JobKindBatchIngest, nil))
	require.NoError(t, ledger.MarkFailed(ctx, "task-3", "boom"))

	// 调度器重试同一个 task_id
	require.NoError(t, ledger.Begin(ctx, "task-3", JobKindBatchIngest, nil))

	var count int64
	require.NoError(t, db.Model(&Job{}).Where("task_id = ?", "task-3").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	job, err := ledger.Get(ctx, "task-3")
	require.NoError(t, err)
	assert.Equal(t, JobStatusRunning, job.Status)
	assert.Empty(t, job.ErrorMessage)
	assert.Nil(t, job.CompletedAt)

	require.NoError(t, ledger.MarkSuccess(ctx, "task-3", nil))
}

func TestGormJobLedger_Errors(t *testing.T) {
	ledger := NewGormJobLedger(newTestDB(t))
	ctx := context.Background()

	_, err := ledger.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	err = ledger.MarkSuccess(ctx, "missing", nil)
	assert.ErrorIs(t, err, ErrJobNotFound)

	err = ledger.Begin(ctx, "", JobKindIngest, nil)
	assert.Equal(t, KindValidation, KindOf(err))

	require.NoError(t, ledger.Begin(ctx, "task-4", JobKindSearch, nil))
	err = ledger.SetProgress(ctx, "task-4", 101)
	assert.Equal(t, KindValidation, KindOf(err))
}
