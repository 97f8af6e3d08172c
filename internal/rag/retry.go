package rag

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy 有界指数退避重试策略
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy 3 次尝试，退避从 2s 起、上限 10s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     10 * time.Second,
	}
}

// Backoff 第 attempt 次失败后的等待时间（attempt 从 1 开始）
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxBackoff > 0 && delay >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}

// ShouldRetry 仅由错误本身和已尝试次数决定是否继续重试
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.MaxAttempts {
		return false
	}
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, ErrEmptyText),
		errors.Is(err, ErrDimensionMismatch):
		return false
	}
	return KindOf(err) != KindValidation
}

// sleepFunc 可替换的等待函数，测试中用于跳过真实等待
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
