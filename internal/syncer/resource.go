// Package syncer 各资源的同步服务和按依赖顺序执行的编排器。
package syncer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"frontsync/internal/frontapi"
	"frontsync/internal/relation"
	"frontsync/internal/store"
	"frontsync/internal/upsert"
	"frontsync/pkg/metrics"
)

type ResourceType string

const (
	ResourceTeammates     ResourceType = "teammates"
	ResourceTags          ResourceType = "tags"
	ResourceInboxes       ResourceType = "inboxes"
	ResourceContacts      ResourceType = "contacts"
	ResourceConversations ResourceType = "conversations"
	ResourceMessages      ResourceType = "messages"
)

// Scope 一次资源同步的范围；ConversationIDs 为空表示全量
type Scope struct {
	ConversationIDs []string
	Mode            string
}

// Report 资源同步结果
type Report struct {
	Stats
	// Processed 成功处理（包括跳过）的外部 ID
	Processed []string
}

// Resource 一种远端资源的同步服务：获取、转换、upsert、对齐关联
type Resource interface {
	Type() ResourceType
	Sync(ctx context.Context, scope Scope) Report
}

// Deps 资源同步服务共享的依赖
type Deps struct {
	Store      store.Store
	Client     *frontapi.Client
	Reconciler *relation.Reconciler
	Logger     *zap.Logger
	// IncludeComments 同步消息时一并同步评论
	IncludeComments bool
}

// Registry 资源类型到实现的映射，在编排器初始化时构建一次
type Registry struct {
	resources map[ResourceType]Resource
}

func NewRegistry(resources ...Resource) *Registry {
	r := &Registry{resources: make(map[ResourceType]Resource, len(resources))}
	for _, res := range resources {
		r.resources[res.Type()] = res
	}
	return r
}

// DefaultRegistry 注册全部六种资源
func DefaultRegistry(deps Deps) *Registry {
	if deps.Reconciler == nil {
		deps.Reconciler = relation.NewReconciler(deps.Store.Associations(), deps.Logger)
	}
	return NewRegistry(
		NewTeammateSync(deps),
		NewTagSync(deps),
		NewInboxSync(deps),
		NewContactSync(deps),
		NewConversationSync(deps),
		NewMessageSync(deps),
	)
}

func (r *Registry) Get(t ResourceType) (Resource, error) {
	res, ok := r.resources[t]
	if !ok {
		return nil, fmt.Errorf("no sync service registered for %q", t)
	}
	return res, nil
}

// tally 记录结果并收集外部 ID
type tally struct {
	resource   ResourceType
	mode       string
	start      time.Time
	report     Report
	incomplete bool
}

func newTally(resource ResourceType, mode string) *tally {
	t := &tally{resource: resource, mode: mode, start: time.Now()}
	t.report.ensureErrors()
	return t
}

func record[T any](t *tally, externalID string, out upsert.Outcome[T]) {
	t.report.Record(out.Action, out.Err)
	if out.Changed() || out.Action == upsert.ActionSkipped {
		t.report.Processed = append(t.report.Processed, externalID)
	}
}

// fetchFailed 远端获取中途失败：记录错误，阶段标记为不完整
func (t *tally) fetchFailed(err error) {
	if err == nil {
		return
	}
	t.report.AddErrorf("%s: fetch stopped: %v", t.resource, err)
	t.incomplete = true
}

func (t *tally) done() Report {
	d := time.Since(t.start)
	metrics.RecordSyncPhase(string(t.resource), t.mode, d)
	t.report.Phases = []PhaseSummary{{
		Resource:   t.resource,
		Created:    t.report.Created,
		Updated:    t.report.Updated,
		Skipped:    t.report.Skipped,
		Failed:     t.report.Failed,
		Duration:   d,
		Incomplete: t.incomplete,
	}}
	return t.report
}

var idFromURL = regexp.MustCompile(`/([a-z]{3}_[A-Za-z0-9]+)/?(?:\?.*)?$`)

// lastID 从资源链接中取出最后一个 ID，如 .../contacts/crd_1 -> crd_1
func lastID(link string) string {
	if m := idFromURL.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	return ""
}

// linkKind 链接指向的集合名，如 teammates / contacts
func linkKind(link string) string {
	for _, kind := range []string{"teammates", "contacts"} {
		if strings.Contains(link, "/"+kind+"/") {
			return kind
		}
	}
	return ""
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
