package logger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New("debug", "json", path)
	require.NoError(t, err)
	l.Info("hello")
	require.NoError(t, l.Sync())
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	l, err := New("nope", "console", "stderr")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := WithTaskID(WithTraceID(context.Background(), "trace-1"), "task-1")
	FromContext(ctx, base).Info("msg")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "trace-1", fields["trace_id"])
	assert.Equal(t, "task-1", fields["task_id"])
}

func TestGet_DefaultsToNop(t *testing.T) {
	assert.NotNil(t, Get())
}
