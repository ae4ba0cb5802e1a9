// Package store 定义同步引擎依赖的持久化接口。
// 具体实现：repository 包（PostgreSQL）和本包的 Memory（测试、dry-run）。
package store

import (
	"context"
	"errors"
	"fmt"

	"frontsync/internal/model"
)

var ErrNotFound = errors.New("record not found")

// ValidationError 存储层拒绝写入时返回
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// Repository 按外部 ID 查找/创建/更新
type Repository[T any] interface {
	// FindByExternalID 未找到时返回 ErrNotFound
	FindByExternalID(ctx context.Context, externalID string) (*T, error)
	Create(ctx context.Context, rec *T) error
	Update(ctx context.Context, rec *T) error
	// ExternalIDMap 外部 ID -> 本地 ID，用于构建查找缓存
	ExternalIDMap(ctx context.Context) (map[string]int64, error)
}

type TagRepository interface {
	Repository[model.Tag]
	List(ctx context.Context) ([]model.Tag, error)
	SetParent(ctx context.Context, tagID int64, parentID *int64) error
}

type ContactRepository interface {
	Repository[model.Contact]
	// FindByHandles 按主 handle 或 handle 集合精确匹配任一地址
	FindByHandles(ctx context.Context, handles []string) (*model.Contact, error)
	// HandleMap 小写 handle -> 本地联系人 ID
	HandleMap(ctx context.Context) (map[string]int64, error)
}

type MessageRepository interface {
	Repository[model.Message]
	ReplaceRecipients(ctx context.Context, messageID int64, recipients []model.Recipient) error
	ReplaceAttachments(ctx context.Context, messageID int64, attachments []model.Attachment) error
}

// Relation 多对多关联表
type Relation string

const (
	RelationConversationTags    Relation = "conversation_tags"
	RelationConversationInboxes Relation = "conversation_inboxes"
)

type Pair struct {
	ParentID  int64
	RelatedID int64
}

type AssociationStore interface {
	// ListAssociations 一次查询取回所有父实体的当前关联
	ListAssociations(ctx context.Context, relation Relation, parentIDs []int64) (map[int64][]int64, error)
	InsertAssociations(ctx context.Context, relation Relation, pairs []Pair) error
	DeleteAssociations(ctx context.Context, relation Relation, pairs []Pair) error
}

type SyncRunRepository interface {
	Create(ctx context.Context, run *model.SyncRun) error
	Finish(ctx context.Context, run *model.SyncRun) error
	Recent(ctx context.Context, limit int) ([]model.SyncRun, error)
	// LastCompleted 最近一次成功完成的运行，没有时返回 ErrNotFound
	LastCompleted(ctx context.Context) (*model.SyncRun, error)
}

type Store interface {
	Teammates() Repository[model.Teammate]
	Tags() TagRepository
	Inboxes() Repository[model.Inbox]
	Contacts() ContactRepository
	Conversations() Repository[model.Conversation]
	Messages() MessageRepository
	Associations() AssociationStore
	SyncRuns() SyncRunRepository
}
