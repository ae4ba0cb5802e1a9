package model

import "time"

// Base 所有同步实体共享的字段
type Base struct {
	ID              int64
	ExternalID      string
	RemoteUpdatedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time // 本地修改时间，由存储层在每次写入时设置
	Metadata        map[string]any
}

// Meta 返回实体的公共字段，供泛型 upsert 使用
func (b *Base) Meta() *Base {
	return b
}

// Entity 由所有嵌入 Base 的实体指针实现
type Entity interface {
	Meta() *Base
}
