package infra

import (
	"context"

	"gorm.io/gorm"
)

// WithinTransaction 在单个工作单元内执行 fn
// fn 正常返回则提交，返回错误或 panic 则回滚，调用方看不到部分写入的记录。
func WithinTransaction(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	return db.WithContext(ctx).Transaction(fn)
}
