package syncer

import (
	"context"
	"errors"
	"regexp"

	"go.uber.org/zap"

	"frontsync/internal/frontapi"
	"frontsync/internal/model"
	"frontsync/internal/store"
	"frontsync/internal/upsert"
)

var emailShape = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ContactSync 按邮箱去重：新外部 ID 的邮箱与已有联系人重合时合并到已有联系人，
// 记录别名外部 ID，不新建重复记录。
type ContactSync struct {
	client *frontapi.Client
	repo   store.ContactRepository
	engine *upsert.Engine[model.Contact, *model.Contact]
	logger *zap.Logger
}

func NewContactSync(d Deps) *ContactSync {
	return &ContactSync{
		client: d.Client,
		repo:   d.Store.Contacts(),
		engine: upsert.New[model.Contact](string(ResourceContacts), d.Store.Contacts(), d.Logger),
		logger: d.Logger,
	}
}

func (s *ContactSync) Type() ResourceType { return ResourceContacts }

func (s *ContactSync) Sync(ctx context.Context, scope Scope) Report {
	t := newTally(ResourceContacts, scope.Mode)
	res := s.client.Contacts().Each(ctx, func(page []frontapi.Contact) (bool, error) {
		for _, c := range page {
			record(t, c.ID, s.syncOne(ctx, c))
		}
		return true, nil
	})
	t.fetchFailed(res.Err)
	return t.done()
}

func (s *ContactSync) syncOne(ctx context.Context, c frontapi.Contact) upsert.Outcome[model.Contact] {
	_, err := s.repo.FindByExternalID(ctx, c.ID)
	if errors.Is(err, store.ErrNotFound) {
		if emails := emailHandles(c); len(emails) > 0 {
			dup, err := s.repo.FindByHandles(ctx, emails)
			switch {
			case err == nil:
				s.logger.Info("Merging duplicate contact by email",
					zap.String("contact_id", c.ID),
					zap.String("existing_contact_id", dup.ExternalID),
				)
				return s.engine.Merge(ctx, dup, c.UpdatedAt, mergeContact(c))
			case !errors.Is(err, store.ErrNotFound):
				s.logger.Warn("Contact dedup lookup failed, falling back to upsert",
					zap.String("contact_id", c.ID), zap.Error(err))
			}
		}
	}
	return s.engine.Upsert(ctx, c.ID, c.UpdatedAt, func(rec *model.Contact, existing bool) error {
		// 通过别名找到的是合并目标，只合并不覆盖
		if existing && rec.ExternalID != c.ID {
			return mergeContact(c)(rec, existing)
		}
		rec.Name = sanitize(c.Name)
		rec.Description = sanitize(c.Description)
		rec.Handle = c.Handle
		rec.IsSpammer = c.IsSpammer
		rec.Metadata = c.Extra
		handles := toHandles(c.Handles)
		if len(rec.AliasExternalIDs) > 0 {
			rec.MergeHandles(handles)
		} else {
			rec.Handles = nil
			rec.MergeHandles(handles)
		}
		return nil
	})
}

// mergeContact 合并 handle、记录别名，空字段才用新载荷补齐
func mergeContact(c frontapi.Contact) upsert.Transform[model.Contact] {
	return func(rec *model.Contact, existing bool) error {
		rec.MergeHandles(toHandles(c.Handles))
		rec.AddAlias(c.ID)
		if rec.Name == "" {
			rec.Name = sanitize(c.Name)
		}
		if rec.Description == "" {
			rec.Description = sanitize(c.Description)
		}
		if rec.Handle == "" {
			rec.Handle = c.Handle
		}
		return nil
	}
}

func toHandles(in []frontapi.ContactHandle) []model.ContactHandle {
	out := make([]model.ContactHandle, 0, len(in))
	for _, h := range in {
		out = append(out, model.ContactHandle{Handle: h.Handle, Source: h.Source})
	}
	return out
}

// emailHandles source 为 email 或形如邮箱地址的 handle，加上形如邮箱的旧版主 handle
func emailHandles(c frontapi.Contact) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(h string) {
		h = lower(h)
		if h == "" {
			return
		}
		if _, ok := seen[h]; ok {
			return
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	for _, h := range c.Handles {
		if lower(h.Source) == "email" || emailShape.MatchString(h.Handle) {
			add(h.Handle)
		}
	}
	if emailShape.MatchString(c.Handle) {
		add(c.Handle)
	}
	return out
}
