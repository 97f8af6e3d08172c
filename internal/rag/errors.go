package rag

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind 流水线错误类别，决定重试与对外呈现方式
type ErrorKind string

const (
	KindFetch       ErrorKind = "FetchError"       // 下载或转换失败
	KindEmbedding   ErrorKind = "EmbeddingError"   // 向量服务在重试耗尽后仍失败
	KindStorage     ErrorKind = "StorageError"     // 持久化失败
	KindSearch      ErrorKind = "SearchError"      // 检索失败
	KindComposition ErrorKind = "CompositionError" // 生成服务失败
	KindValidation  ErrorKind = "ValidationError"  // 调用参数非法，不应重试
	KindUnknown     ErrorKind = "UnknownError"
)

var (
	ErrEmptyText          = errors.New("文本不能为空")
	ErrDimensionMismatch  = errors.New("向量维度不匹配")
	ErrInvalidTransition  = errors.New("非法的任务状态迁移")
	ErrJobNotFound        = errors.New("任务记录不存在")
	ErrDocumentNotFound   = errors.New("文档不存在")
	ErrEmptyCompletion    = errors.New("生成服务返回空结果")
	ErrProviderMismatched = errors.New("向量服务返回数量不匹配")
)

// PipelineError 携带错误类别的流水线错误
type PipelineError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is 同类别的 PipelineError 视为相等，便于 errors.Is(err, &PipelineError{Kind: KindFetch})
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Err == nil && t.Op == ""
}

// newError 包装为带类别的错误，已是 PipelineError 的保持原类别
func newError(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return err
	}
	return &PipelineError{Kind: kind, Op: op, Err: err}
}

// KindOf 返回错误类别
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// IsRetryable 判断任务级别是否值得交给调度器重试
// 参数错误与上游主动取消不会因重试而改变结果。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return KindOf(err) != KindValidation
}
