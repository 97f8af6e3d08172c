package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	p := DefaultRetryPolicy()

	assert.Equal(t, 2*time.Second, p.Backoff(0))
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 8*time.Second, p.Backoff(3))
	assert.Equal(t, 10*time.Second, p.Backoff(4))
	assert.Equal(t, 10*time.Second, p.Backoff(30))
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	p := DefaultRetryPolicy()
	transient := errors.New("connection reset")

	assert.True(t, p.ShouldRetry(transient, 1))
	assert.True(t, p.ShouldRetry(transient, 2))
	assert.False(t, p.ShouldRetry(transient, 3), "第 3 次失败后不再重试")
	assert.False(t, p.ShouldRetry(nil, 1))
	assert.False(t, p.ShouldRetry(fmt.Errorf("wrap: %w", context.Canceled), 1))
	assert.False(t, p.ShouldRetry(fmt.Errorf("wrap: %w", ErrDimensionMismatch), 1))
	assert.False(t, p.ShouldRetry(newError(KindValidation, "x", transient), 1))
	assert.True(t, p.ShouldRetry(context.DeadlineExceeded, 1), "单次请求超时可以重试")
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}
