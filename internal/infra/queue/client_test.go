package queue

import (
	"encoding/json"
	"testing"
	"time"

	"agentstack/internal/config"
	"agentstack/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWorkerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		MaxRetry:      3,
		IngestTimeout: 10 * time.Minute,
		BatchTimeout:  time.Hour,
		QueryTimeout:  2 * time.Minute,
	}
}

func TestOptionsFor(t *testing.T) {
	cfg := testWorkerConfig()

	ingest := OptionsFor(tasks.TypeIngestDocument, cfg)
	assert.Equal(t, tasks.QueueIngest, ingest.Queue)
	assert.Equal(t, 3, ingest.MaxRetry)
	assert.Equal(t, 10*time.Minute, ingest.Timeout)

	batch := OptionsFor(tasks.TypeIngestBatch, cfg)
	assert.Equal(t, tasks.QueueIngest, batch.Queue)
	assert.Equal(t, time.Hour, batch.Timeout)
	assert.Zero(t, batch.MaxRetry)
	assert.Equal(t, asynq.MaxRetryOpt, batch.Options()[0].Type())
	assert.Equal(t, 0, batch.Options()[0].Value())

	for _, typ := range []string{tasks.TypeSemanticSearch, tasks.TypeRAGQuery} {
		opts := OptionsFor(typ, cfg)
		assert.Equal(t, tasks.QueueQuery, opts.Queue)
		assert.Zero(t, opts.MaxRetry)
		assert.Equal(t, 2*time.Minute, opts.Timeout)
	}

	assert.Equal(t, tasks.QueueDefault, OptionsFor("unknown", cfg).Queue)
}

func TestTaskOptions_Options(t *testing.T) {
	opts := TaskOptions{
		Queue:     tasks.QueueIngest,
		MaxRetry:  3,
		Timeout:   time.Minute,
		TaskID:    "task-1",
		Retention: time.Hour,
	}.Options()

	values := map[asynq.OptionType]any{}
	for _, o := range opts {
		values[o.Type()] = o.Value()
	}
	assert.Equal(t, 3, values[asynq.MaxRetryOpt])
	assert.Equal(t, tasks.QueueIngest, values[asynq.QueueOpt])
	assert.Equal(t, time.Minute, values[asynq.TimeoutOpt])
	assert.Equal(t, "task-1", values[asynq.TaskIDOpt])
	assert.Equal(t, time.Hour, values[asynq.RetentionOpt])

	minimal := TaskOptions{}.Options()
	require.Len(t, minimal, 1)
	assert.Equal(t, asynq.MaxRetryOpt, minimal[0].Type())
}

func TestNewTask(t *testing.T) {
	task, err := NewTask(tasks.TypeIngestDocument, tasks.IngestDocumentPayload{SourceURL: "https://x/doc.pdf"})
	require.NoError(t, err)
	assert.Equal(t, tasks.TypeIngestDocument, task.Type())

	var p tasks.IngestDocumentPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, "https://x/doc.pdf", p.SourceURL)
}

func TestToTaskState(t *testing.T) {
	done := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	state := toTaskState(&asynq.TaskInfo{
		ID:          "task-1",
		Queue:       tasks.QueueIngest,
		Type:        tasks.TypeIngestDocument,
		State:       asynq.TaskStateCompleted,
		MaxRetry:    3,
		Result:      []byte(`{"document_id":"d1"}`),
		CompletedAt: done,
	})
	assert.Equal(t, "completed", state.State)
	assert.JSONEq(t, `{"document_id":"d1"}`, string(state.Result))
	require.NotNil(t, state.CompletedAt)
	assert.Equal(t, done, *state.CompletedAt)
	assert.Nil(t, state.NextProcessAt)

	pending := toTaskState(&asynq.TaskInfo{ID: "task-2", State: asynq.TaskStatePending, Result: []byte("not json")})
	assert.Equal(t, "pending", pending.State)
	assert.Nil(t, pending.Result)
}
