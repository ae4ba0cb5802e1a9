package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"frontsync/internal/frontapi"
	"frontsync/internal/model"
	"frontsync/internal/store"
	"frontsync/internal/upsert"
)

// MessageSync 同步指定会话的消息（可选评论），以及消息的收件人和附件。
// 每条成功处理的消息（包括跳过的）都会整体替换收件人和附件，上次替换失败的子集合在下次同步时补齐。
type MessageSync struct {
	client          *frontapi.Client
	store           store.Store
	repo            store.MessageRepository
	engine          *upsert.Engine[model.Message, *model.Message]
	includeComments bool
	logger          *zap.Logger
}

func NewMessageSync(d Deps) *MessageSync {
	return &MessageSync{
		client:          d.Client,
		store:           d.Store,
		repo:            d.Store.Messages(),
		engine:          upsert.New[model.Message](string(ResourceMessages), d.Store.Messages(), d.Logger),
		includeComments: d.IncludeComments,
		logger:          d.Logger,
	}
}

func (s *MessageSync) Type() ResourceType { return ResourceMessages }

func (s *MessageSync) Sync(ctx context.Context, scope Scope) Report {
	t := newTally(ResourceMessages, scope.Mode)
	if len(scope.ConversationIDs) == 0 {
		return t.done()
	}
	lookups, err := BuildLookups(ctx, s.store)
	if err != nil {
		t.report.AddErrorf("messages: %v", err)
		t.incomplete = true
		return t.done()
	}

	for i, convID := range scope.ConversationIDs {
		if ctx.Err() != nil {
			t.fetchFailed(ctx.Err())
			break
		}
		conv, err := s.store.Conversations().FindByExternalID(ctx, convID)
		if err != nil {
			t.report.AddErrorf("messages: conversation %s: %v", convID, err)
			continue
		}
		if err := s.syncConversation(ctx, t, lookups, conv); err != nil {
			if errors.Is(err, frontapi.ErrCircuitOpen) {
				t.fetchFailed(fmt.Errorf("%w, %d conversations left", err, len(scope.ConversationIDs)-i))
				break
			}
			t.report.AddErrorf("messages: conversation %s: %v", convID, err)
			t.incomplete = true
		}
	}
	return t.done()
}

func (s *MessageSync) syncConversation(ctx context.Context, t *tally, lookups *Lookups, conv *model.Conversation) error {
	res := s.client.ConversationMessages(conv.ExternalID).Each(ctx, func(page []frontapi.Message) (bool, error) {
		for _, msg := range page {
			s.syncMessage(ctx, t, lookups, conv.ID, msg)
		}
		return true, nil
	})
	if res.Err != nil {
		return fmt.Errorf("fetch messages: %w", res.Err)
	}
	if !s.includeComments {
		return nil
	}
	res = s.client.ConversationComments(conv.ExternalID).Each(ctx, func(page []frontapi.Comment) (bool, error) {
		for _, c := range page {
			s.syncComment(ctx, t, lookups, conv.ID, c)
		}
		return true, nil
	})
	if res.Err != nil {
		return fmt.Errorf("fetch comments: %w", res.Err)
	}
	return nil
}

func (s *MessageSync) syncMessage(ctx context.Context, t *tally, lookups *Lookups, conversationID int64, msg frontapi.Message) {
	remoteAt := msg.UpdatedAt
	if remoteAt == nil {
		remoteAt = msg.CreatedAt
	}
	out := s.engine.Upsert(ctx, msg.ID, remoteAt, func(rec *model.Message, existing bool) error {
		rec.ConversationID = conversationID
		rec.Type = msg.Type
		rec.IsInbound = msg.IsInbound
		rec.IsDraft = msg.IsDraft
		rec.Subject = sanitize(msg.Subject)
		rec.Blurb = sanitize(msg.Blurb)
		rec.Body = sanitize(msg.Body)
		rec.Text = sanitize(msg.Text)
		rec.Author = resolveAuthor(msg.Author, msg.IsInbound, msg.Recipients, lookups)
		if created, err := upsert.ParseTimestamp(msg.CreatedAt); err == nil {
			rec.RemoteCreatedAt = created
		}
		rec.Metadata = msg.Extra
		return nil
	})
	record(t, msg.ID, out)
	if out.Record == nil {
		return
	}

	recipients := make([]model.Recipient, 0, len(msg.Recipients))
	for _, r := range msg.Recipients {
		recipients = append(recipients, model.Recipient{
			Handle:    r.Handle,
			Role:      r.Role,
			ContactID: lookups.contactFor(r.Links.RelatedURL("contact"), r.Handle),
		})
	}
	if err := s.repo.ReplaceRecipients(ctx, out.Record.ID, recipients); err != nil {
		t.report.AddErrorf("messages %s: recipients: %v", msg.ID, err)
	}
	if err := s.repo.ReplaceAttachments(ctx, out.Record.ID, toAttachments(msg.Attachments)); err != nil {
		t.report.AddErrorf("messages %s: attachments: %v", msg.ID, err)
	}
}

// syncComment 评论按 type=comment 的消息保存，作者总是成员
func (s *MessageSync) syncComment(ctx context.Context, t *tally, lookups *Lookups, conversationID int64, c frontapi.Comment) {
	out := s.engine.Upsert(ctx, c.ID, c.PostedAt, func(rec *model.Message, existing bool) error {
		rec.ConversationID = conversationID
		rec.Type = model.MessageTypeComment
		rec.Body = sanitize(c.Body)
		rec.Author = model.UnknownAuthor()
		if c.Author != nil {
			id := c.Author.ID
			if id == "" {
				id = lastID(c.Author.Links.Self)
			}
			if local, ok := lookups.Teammates[id]; ok {
				rec.Author = model.TeammateAuthor(local)
			}
		}
		if posted, err := upsert.ParseTimestamp(c.PostedAt); err == nil {
			rec.RemoteCreatedAt = posted
		}
		rec.Metadata = c.Extra
		return nil
	})
	record(t, c.ID, out)
	if out.Record == nil {
		return
	}
	if err := s.repo.ReplaceAttachments(ctx, out.Record.ID, toAttachments(c.Attachments)); err != nil {
		t.report.AddErrorf("comments %s: attachments: %v", c.ID, err)
	}
}

// resolveAuthor 依次按作者链接类型、ID 前缀、入站消息的 from 收件人解析，都不命中时为 Unknown
func resolveAuthor(a *frontapi.MessageAuthor, inbound bool, recipients []frontapi.MessageRecipient, l *Lookups) model.Author {
	if a != nil {
		id := a.ID
		if id == "" {
			id = lastID(a.Links.Self)
		}
		kind := linkKind(a.Links.Self)
		if kind == "" {
			switch {
			case strings.HasPrefix(id, "tea_"):
				kind = "teammates"
			case strings.HasPrefix(id, "crd_"):
				kind = "contacts"
			}
		}
		switch kind {
		case "teammates":
			if local, ok := l.Teammates[id]; ok {
				return model.TeammateAuthor(local)
			}
		case "contacts":
			if local, ok := l.Contacts[id]; ok {
				return model.ContactAuthor(local)
			}
		}
	}
	if inbound {
		for _, r := range recipients {
			if lower(r.Role) != "from" {
				continue
			}
			if local := l.contactFor(r.Links.RelatedURL("contact"), r.Handle); local != nil {
				return model.ContactAuthor(*local)
			}
		}
	}
	return model.UnknownAuthor()
}

func toAttachments(in []frontapi.Attachment) []model.Attachment {
	out := make([]model.Attachment, 0, len(in))
	for _, a := range in {
		out = append(out, model.Attachment{
			Filename:    sanitize(a.Filename),
			URL:         a.URL,
			ContentType: a.ContentType,
			Size:        a.Size,
			IsInline:    a.Metadata.IsInline,
		})
	}
	return out
}
