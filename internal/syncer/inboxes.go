package syncer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"frontsync/internal/frontapi"
	"frontsync/internal/model"
	"frontsync/internal/upsert"
)

type InboxSync struct {
	client *frontapi.Client
	engine *upsert.Engine[model.Inbox, *model.Inbox]
	logger *zap.Logger
}

func NewInboxSync(d Deps) *InboxSync {
	return &InboxSync{
		client: d.Client,
		engine: upsert.New[model.Inbox](string(ResourceInboxes), d.Store.Inboxes(), d.Logger),
		logger: d.Logger,
	}
}

func (s *InboxSync) Type() ResourceType { return ResourceInboxes }

func (s *InboxSync) Sync(ctx context.Context, scope Scope) Report {
	t := newTally(ResourceInboxes, scope.Mode)
	channelTypes, err := s.channelTypes(ctx)
	t.fetchFailed(err)

	res := s.client.Inboxes().Each(ctx, func(page []frontapi.Inbox) (bool, error) {
		for _, inbox := range page {
			inbox := inbox
			channelType := inbox.Type
			if channelType == "" {
				channelType = channelTypes[inbox.ID]
			}
			out := s.engine.Upsert(ctx, inbox.ID, inbox.UpdatedAt, func(rec *model.Inbox, existing bool) error {
				rec.Name = sanitize(inbox.Name)
				rec.IsPrivate = inbox.IsPrivate
				// 渠道没解析出来时保留已有类型
				if channelType != "" || !existing {
					rec.ChannelType = channelType
					rec.InboxType = model.MapInboxType(channelType)
				}
				rec.Metadata = inbox.Extra
				return nil
			})
			record(t, inbox.ID, out)
		}
		return true, nil
	})
	t.fetchFailed(res.Err)
	return t.done()
}

// channelTypes 收件箱 ID -> 第一个渠道的类型；获取失败时返回已拿到的部分和错误
func (s *InboxSync) channelTypes(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	channels, res := s.client.Channels().All(ctx)
	if res.Err != nil {
		s.logger.Warn("Failed to list channels, keeping stored inbox types", zap.Error(res.Err))
	}
	for _, ch := range channels {
		inboxID := lastID(ch.Links.RelatedURL("inbox"))
		if inboxID == "" || ch.Type == "" {
			continue
		}
		if _, ok := out[inboxID]; !ok {
			out[inboxID] = ch.Type
		}
	}
	if res.Err != nil {
		return out, fmt.Errorf("channels: %w", res.Err)
	}
	return out, nil
}
