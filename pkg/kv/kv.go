// Package kv 健康监控和熔断器状态使用的键值存储抽象
package kv

import (
	"context"
	"errors"
	"reflect"
)

var ErrConflict = errors.New("kv: concurrent update retries exhausted")

type Store interface {
	// Get 将 JSON 值解码到 out，key 不存在时返回 false
	Get(ctx context.Context, key string, out any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	// Update 原子地读-改-写：把当前值解码到 ptr（不存在则置零），调用 fn 修改后写回
	Update(ctx context.Context, key string, ptr any, fn func(found bool) error) error
	Delete(ctx context.Context, keys ...string) error

	// IncrBy 哈希计数器
	IncrBy(ctx context.Context, key, field string, delta int64) error
	Counters(ctx context.Context, key string) (map[string]int64, error)

	// PushCapped 头插并裁剪到 max 个元素（滚动窗口）
	PushCapped(ctx context.Context, key string, value float64, max int) error
	List(ctx context.Context, key string) ([]float64, error)
}

func resetValue(ptr any) {
	v := reflect.ValueOf(ptr)
	if v.Kind() == reflect.Pointer && !v.IsNil() {
		v.Elem().Set(reflect.Zero(v.Elem().Type()))
	}
}
