package syncer

import (
	"context"

	"go.uber.org/zap"

	"frontsync/internal/frontapi"
	"frontsync/internal/model"
	"frontsync/internal/store"
	"frontsync/internal/upsert"
)

// TagSync 两遍同步：第一遍 upsert 全部标签并暂存父标签外部 ID，
// 第一遍完成后第二遍用完整的标签 ID 映射解析父子关系。
type TagSync struct {
	client *frontapi.Client
	repo   store.TagRepository
	engine *upsert.Engine[model.Tag, *model.Tag]
	logger *zap.Logger
}

func NewTagSync(d Deps) *TagSync {
	return &TagSync{
		client: d.Client,
		repo:   d.Store.Tags(),
		engine: upsert.New[model.Tag](string(ResourceTags), d.Store.Tags(), d.Logger),
		logger: d.Logger,
	}
}

func (s *TagSync) Type() ResourceType { return ResourceTags }

func (s *TagSync) Sync(ctx context.Context, scope Scope) Report {
	t := newTally(ResourceTags, scope.Mode)
	res := s.client.Tags().Each(ctx, func(page []frontapi.Tag) (bool, error) {
		for _, tag := range page {
			tag := tag
			out := s.engine.Upsert(ctx, tag.ID, tag.UpdatedAt, func(rec *model.Tag, existing bool) error {
				rec.Name = sanitize(tag.Name)
				rec.Description = sanitize(tag.Description)
				rec.Highlight = tag.Highlight
				rec.IsPrivate = tag.IsPrivate
				rec.IsVisibleInConversationLists = tag.IsVisibleInConversationLists
				rec.ParentExternalID = parentTagID(tag)
				rec.Metadata = tag.Extra
				return nil
			})
			record(t, tag.ID, out)
		}
		return true, nil
	})
	t.fetchFailed(res.Err)

	if err := s.linkParents(ctx, &t.report.Stats); err != nil {
		t.report.AddErrorf("tags: link parents: %v", err)
	}
	return t.done()
}

func parentTagID(tag frontapi.Tag) string {
	if tag.ParentTagID != "" {
		return tag.ParentTagID
	}
	return lastID(tag.Links.RelatedURL("parent_tag"))
}

// linkParents 第二遍：解析 ParentExternalID -> ParentTagID，只写有变化的
func (s *TagSync) linkParents(ctx context.Context, stats *Stats) error {
	ids, err := s.repo.ExternalIDMap(ctx)
	if err != nil {
		return err
	}
	tags, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	for _, tag := range tags {
		var want *int64
		if tag.ParentExternalID != "" {
			id, ok := ids[tag.ParentExternalID]
			if !ok {
				stats.Unresolved++
				s.logger.Warn("Parent tag not found locally",
					zap.String("tag_id", tag.ExternalID),
					zap.String("parent_tag_id", tag.ParentExternalID),
				)
				continue
			}
			want = &id
		}
		if sameID(tag.ParentTagID, want) {
			continue
		}
		if err := s.repo.SetParent(ctx, tag.ID, want); err != nil {
			stats.AddErrorf("tags %s: set parent: %v", tag.ExternalID, err)
		}
	}
	return nil
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
