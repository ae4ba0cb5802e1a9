// Package upsert 按外部 ID 创建/更新/跳过本地记录，远端时间戳较新者胜出，相同时本地胜出。
package upsert

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"

	"frontsync/internal/model"
	"frontsync/internal/store"
	"frontsync/pkg/metrics"
)

type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionSkipped Action = "skipped"
	ActionFailed  Action = "failed"
)

// Outcome 单条记录的 upsert 结果
type Outcome[T any] struct {
	Action Action
	Record *T
	Err    error
}

// Changed 记录是否被写入
func (o Outcome[T]) Changed() bool {
	return o.Action == ActionCreated || o.Action == ActionUpdated
}

// Transform 把远端载荷写入记录；existing 表示记录已存在
type Transform[T any] func(rec *T, existing bool) error

type entityPtr[T any] interface {
	*T
	model.Entity
}

type Engine[T any, P entityPtr[T]] struct {
	resource string
	repo     store.Repository[T]
	logger   *zap.Logger
}

func New[T any, P entityPtr[T]](resource string, repo store.Repository[T], logger *zap.Logger) *Engine[T, P] {
	return &Engine[T, P]{resource: resource, repo: repo, logger: logger}
}

// Upsert 决定 created / updated / skipped / failed。
// 远端时间戳不晚于本地修改时间时跳过；没有时间戳时按内容比较，内容不变也算跳过。
// 存储错误、transform 错误和 panic 都转换为 failed，不向上抛出。
func (e *Engine[T, P]) Upsert(ctx context.Context, externalID string, remoteModified any, transform Transform[T]) (out Outcome[T]) {
	defer e.finish(externalID, &out)

	if externalID == "" {
		return Outcome[T]{Action: ActionFailed, Err: errors.New("missing external id")}
	}
	remoteAt := e.parseRemote(externalID, remoteModified)

	existing, err := e.repo.FindByExternalID(ctx, externalID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return e.create(ctx, externalID, remoteAt, transform)
	case err != nil:
		return Outcome[T]{Action: ActionFailed, Err: fmt.Errorf("lookup: %w", err)}
	}

	if remoteAt != nil && !P(existing).Meta().UpdatedAt.Before(*remoteAt) {
		return Outcome[T]{Action: ActionSkipped, Record: existing}
	}
	return e.update(ctx, existing, remoteAt, transform)
}

// Merge 不比较时间戳，直接把载荷合并进已有记录（用于去重命中的记录）
func (e *Engine[T, P]) Merge(ctx context.Context, existing *T, remoteModified any, transform Transform[T]) (out Outcome[T]) {
	externalID := P(existing).Meta().ExternalID
	defer e.finish(externalID, &out)
	return e.update(ctx, existing, e.parseRemote(externalID, remoteModified), transform)
}

func (e *Engine[T, P]) create(ctx context.Context, externalID string, remoteAt *time.Time, transform Transform[T]) Outcome[T] {
	rec := new(T)
	if err := transform(rec, false); err != nil {
		return Outcome[T]{Action: ActionFailed, Err: fmt.Errorf("transform: %w", err)}
	}
	meta := P(rec).Meta()
	meta.ExternalID = externalID
	meta.RemoteUpdatedAt = remoteAt
	if err := e.repo.Create(ctx, rec); err != nil {
		return Outcome[T]{Action: ActionFailed, Err: fmt.Errorf("create: %w", err)}
	}
	return Outcome[T]{Action: ActionCreated, Record: rec}
}

func (e *Engine[T, P]) update(ctx context.Context, existing *T, remoteAt *time.Time, transform Transform[T]) Outcome[T] {
	rec := new(T)
	*rec = *existing
	if err := transform(rec, true); err != nil {
		return Outcome[T]{Action: ActionFailed, Err: fmt.Errorf("transform: %w", err)}
	}
	meta, orig := P(rec).Meta(), P(existing).Meta()
	// 外部 ID 和本地主键不可变
	meta.ExternalID = orig.ExternalID
	meta.ID = orig.ID
	if remoteAt != nil {
		meta.RemoteUpdatedAt = remoteAt
	}
	if sameContent[T, P](rec, existing) {
		return Outcome[T]{Action: ActionSkipped, Record: existing}
	}
	if err := e.repo.Update(ctx, rec); err != nil {
		return Outcome[T]{Action: ActionFailed, Err: fmt.Errorf("update: %w", err)}
	}
	return Outcome[T]{Action: ActionUpdated, Record: rec}
}

// sameContent 忽略本地时间戳比较两条记录，内容相同则无需写入
func sameContent[T any, P entityPtr[T]](a, b *T) bool {
	ca, cb := *a, *b
	ma, mb := P(&ca).Meta(), P(&cb).Meta()
	if !equalTime(ma.RemoteUpdatedAt, mb.RemoteUpdatedAt) {
		return false
	}
	ma.RemoteUpdatedAt, mb.RemoteUpdatedAt = nil, nil
	ma.CreatedAt, mb.CreatedAt = time.Time{}, time.Time{}
	ma.UpdatedAt, mb.UpdatedAt = time.Time{}, time.Time{}
	return reflect.DeepEqual(ca, cb)
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (e *Engine[T, P]) parseRemote(externalID string, v any) *time.Time {
	ts, err := ParseTimestamp(v)
	if err != nil {
		e.logger.Warn("Unparseable remote timestamp, treating as absent",
			zap.String("resource", e.resource),
			zap.String("external_id", externalID),
			zap.Error(err),
		)
		return nil
	}
	return ts
}

func (e *Engine[T, P]) finish(externalID string, out *Outcome[T]) {
	if r := recover(); r != nil {
		*out = Outcome[T]{Action: ActionFailed, Err: fmt.Errorf("panic: %v", r)}
	}
	if out.Action == ActionFailed {
		out.Err = fmt.Errorf("%s %s: %w", e.resource, externalID, out.Err)
		e.logger.Error("Upsert failed",
			zap.String("resource", e.resource),
			zap.String("external_id", externalID),
			zap.Error(out.Err),
		)
	}
	metrics.IncrementUpsertOutcome(e.resource, string(out.Action))
}
