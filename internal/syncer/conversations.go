package syncer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"frontsync/internal/frontapi"
	"frontsync/internal/model"
	"frontsync/internal/relation"
	"frontsync/internal/store"
	"frontsync/internal/upsert"
)

// ConversationSync 同步会话本身以及会话-标签、会话-收件箱关联。
// 关联按页批量对齐，每页每种关联最多一次查询、一次插入、一次删除。
type ConversationSync struct {
	client     *frontapi.Client
	store      store.Store
	engine     *upsert.Engine[model.Conversation, *model.Conversation]
	reconciler *relation.Reconciler
	logger     *zap.Logger
}

func NewConversationSync(d Deps) *ConversationSync {
	return &ConversationSync{
		client:     d.Client,
		store:      d.Store,
		engine:     upsert.New[model.Conversation](string(ResourceConversations), d.Store.Conversations(), d.Logger),
		reconciler: d.Reconciler,
		logger:     d.Logger,
	}
}

func (s *ConversationSync) Type() ResourceType { return ResourceConversations }

// Sync 未指定会话 ID 时遍历全部会话，否则逐个获取指定会话
func (s *ConversationSync) Sync(ctx context.Context, scope Scope) Report {
	t := newTally(ResourceConversations, scope.Mode)
	lookups, err := BuildLookups(ctx, s.store)
	if err != nil {
		t.report.AddErrorf("conversations: %v", err)
		t.incomplete = true
		return t.done()
	}

	if len(scope.ConversationIDs) == 0 {
		res := s.client.Conversations(nil).Each(ctx, func(page []frontapi.Conversation) (bool, error) {
			s.syncBatch(ctx, t, lookups, page)
			return true, nil
		})
		t.fetchFailed(res.Err)
		return t.done()
	}

	batch := make([]frontapi.Conversation, 0, len(scope.ConversationIDs))
	for i, id := range scope.ConversationIDs {
		if ctx.Err() != nil {
			t.fetchFailed(ctx.Err())
			break
		}
		conv, err := s.client.GetConversation(ctx, id)
		if errors.Is(err, frontapi.ErrCircuitOpen) {
			t.fetchFailed(fmt.Errorf("%w, %d conversations left", err, len(scope.ConversationIDs)-i))
			break
		}
		if err != nil {
			t.report.Record(upsert.ActionFailed, fmt.Errorf("conversations %s: fetch: %w", id, err))
			continue
		}
		batch = append(batch, *conv)
	}
	s.syncBatch(ctx, t, lookups, batch)
	return t.done()
}

func (s *ConversationSync) syncBatch(ctx context.Context, t *tally, lookups *Lookups, page []frontapi.Conversation) {
	if len(page) == 0 {
		return
	}
	tags := make(map[int64][]string, len(page))
	inboxes := make(map[int64][]string, len(page))

	for _, conv := range page {
		conv := conv
		out := s.engine.Upsert(ctx, conv.ID, conv.UpdatedAt, func(rec *model.Conversation, existing bool) error {
			return applyConversation(rec, conv, lookups)
		})
		record(t, conv.ID, out)
		if out.Record == nil || out.Action == upsert.ActionFailed {
			continue
		}
		localID := out.Record.ID

		tagIDs := make([]string, 0, len(conv.Tags))
		for _, tag := range conv.Tags {
			tagIDs = append(tagIDs, tag.ID)
		}
		tags[localID] = tagIDs

		switch {
		case conv.HasInboxes():
			inboxes[localID] = refIDs(conv.Inboxes)
		case out.Changed():
			ids, err := s.fetchInboxIDs(ctx, conv.ID)
			if err != nil {
				t.report.AddErrorf("conversations %s: inboxes: %v", conv.ID, err)
				continue
			}
			inboxes[localID] = ids
		}
	}

	s.reconcile(ctx, t, store.RelationConversationTags, lookups.Tags, tags)
	s.reconcile(ctx, t, store.RelationConversationInboxes, lookups.Inboxes, inboxes)
}

func (s *ConversationSync) reconcile(ctx context.Context, t *tally, rel store.Relation, lookup map[string]int64, desired map[int64][]string) {
	res, err := s.reconciler.ReconcileBatch(ctx, rel, lookup, desired)
	if err != nil {
		t.report.AddErrorf("conversations: %s: %v", rel, err)
		return
	}
	t.report.AssociationsAdded += res.Added
	t.report.AssociationsRemoved += res.Removed
	t.report.Unresolved += len(res.Unresolved)
}

func (s *ConversationSync) fetchInboxIDs(ctx context.Context, conversationID string) ([]string, error) {
	items, res := s.client.ConversationInboxes(conversationID).All(ctx)
	if res.Err != nil {
		return nil, res.Err
	}
	ids := make([]string, 0, len(items))
	for _, inbox := range items {
		ids = append(ids, inbox.ID)
	}
	return ids, nil
}

func applyConversation(rec *model.Conversation, conv frontapi.Conversation, lookups *Lookups) error {
	rec.Subject = sanitize(conv.Subject)
	rec.Status = conv.Status
	rec.StatusCategory = model.CategorizeStatus(conv.Status)
	rec.IsPrivate = conv.IsPrivate

	rec.AssigneeID = nil
	if conv.Assignee != nil {
		if id, ok := lookups.Teammates[conv.Assignee.ID]; ok {
			rec.AssigneeID = &id
		}
	}

	rec.RecipientContactID = nil
	rec.RecipientHandle, rec.RecipientRole = "", ""
	if r := conv.Recipient; r != nil {
		rec.RecipientHandle = r.Handle
		rec.RecipientRole = r.Role
		rec.RecipientContactID = lookups.contactFor(r.Links.RelatedURL("contact"), r.Handle)
	}

	rec.LastMessageExternalID = lastID(conv.Links.RelatedURL("last_message"))
	if rec.LastMessageExternalID == "" && conv.LastMessage != nil {
		rec.LastMessageExternalID = conv.LastMessage.ID
	}
	if created, err := upsert.ParseTimestamp(conv.CreatedAt); err == nil {
		rec.RemoteCreatedAt = created
	}
	rec.Metadata = conv.Extra
	return nil
}

func refIDs(refs []frontapi.Ref) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.ID)
	}
	return out
}
