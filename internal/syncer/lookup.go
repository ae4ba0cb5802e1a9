package syncer

import (
	"context"
	"fmt"

	"frontsync/internal/store"
)

// Lookups 外部 ID -> 本地 ID 的只读快照，每次同步开始时构建一次
type Lookups struct {
	Teammates      map[string]int64
	Contacts       map[string]int64
	ContactHandles map[string]int64 // 小写 handle
	Tags           map[string]int64
	Inboxes        map[string]int64
}

func BuildLookups(ctx context.Context, st store.Store) (*Lookups, error) {
	var l Lookups
	var err error
	if l.Teammates, err = st.Teammates().ExternalIDMap(ctx); err != nil {
		return nil, fmt.Errorf("teammate lookup: %w", err)
	}
	if l.Contacts, err = st.Contacts().ExternalIDMap(ctx); err != nil {
		return nil, fmt.Errorf("contact lookup: %w", err)
	}
	if l.ContactHandles, err = st.Contacts().HandleMap(ctx); err != nil {
		return nil, fmt.Errorf("contact handle lookup: %w", err)
	}
	if l.Tags, err = st.Tags().ExternalIDMap(ctx); err != nil {
		return nil, fmt.Errorf("tag lookup: %w", err)
	}
	if l.Inboxes, err = st.Inboxes().ExternalIDMap(ctx); err != nil {
		return nil, fmt.Errorf("inbox lookup: %w", err)
	}
	return &l, nil
}

// contactFor 先按链接中的联系人 ID，再按 handle 查找
func (l *Lookups) contactFor(link, handle string) *int64 {
	if id, ok := l.Contacts[lastID(link)]; ok {
		return &id
	}
	if handle != "" {
		if id, ok := l.ContactHandles[lower(handle)]; ok {
			return &id
		}
	}
	return nil
}
