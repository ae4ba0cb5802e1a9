package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"frontsync/internal/model"
)

// Memory 内存实现，用于测试和 dry-run
type Memory struct {
	mu  sync.RWMutex
	now func() time.Time

	teammates     *table[model.Teammate, *model.Teammate]
	tags          *memTags
	inboxes       *table[model.Inbox, *model.Inbox]
	contacts      *memContacts
	conversations *table[model.Conversation, *model.Conversation]
	messages      *memMessages
	assoc         *memAssociations
	runs          *memRuns
}

func NewMemory() *Memory {
	m := &Memory{now: time.Now}
	m.teammates = newTable[model.Teammate](m)
	m.tags = &memTags{table: newTable[model.Tag](m)}
	m.inboxes = newTable[model.Inbox](m)
	m.contacts = &memContacts{table: newTable[model.Contact](m)}
	m.conversations = newTable[model.Conversation](m)
	m.messages = &memMessages{
		table:       newTable[model.Message](m),
		recipients:  make(map[int64][]model.Recipient),
		attachments: make(map[int64][]model.Attachment),
	}
	m.assoc = &memAssociations{m: m, rows: make(map[Relation]map[Pair]struct{})}
	m.runs = &memRuns{m: m}
	return m
}

// SetClock 替换写入时使用的时钟
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) Teammates() Repository[model.Teammate]         { return m.teammates }
func (m *Memory) Tags() TagRepository                           { return m.tags }
func (m *Memory) Inboxes() Repository[model.Inbox]              { return m.inboxes }
func (m *Memory) Contacts() ContactRepository                   { return m.contacts }
func (m *Memory) Conversations() Repository[model.Conversation] { return m.conversations }
func (m *Memory) Messages() MessageRepository                   { return m.messages }
func (m *Memory) Associations() AssociationStore                { return m.assoc }
func (m *Memory) SyncRuns() SyncRunRepository                   { return m.runs }

type entityPtr[T any] interface {
	*T
	model.Entity
}

type table[T any, P entityPtr[T]] struct {
	m     *Memory
	rows  map[int64]T
	byExt map[string]int64
	next  int64
}

func newTable[T any, P entityPtr[T]](m *Memory) *table[T, P] {
	return &table[T, P]{m: m, rows: make(map[int64]T), byExt: make(map[string]int64)}
}

func (t *table[T, P]) FindByExternalID(ctx context.Context, externalID string) (*T, error) {
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	id, ok := t.byExt[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	row := t.rows[id]
	return &row, nil
}

func (t *table[T, P]) Create(ctx context.Context, rec *T) error {
	meta := P(rec).Meta()
	if strings.TrimSpace(meta.ExternalID) == "" {
		return &ValidationError{Field: "external_id", Message: "can't be blank"}
	}
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if _, exists := t.byExt[meta.ExternalID]; exists {
		return &ValidationError{Field: "external_id", Message: "has already been taken"}
	}
	t.next++
	now := t.m.now()
	meta.ID = t.next
	meta.CreatedAt = now
	meta.UpdatedAt = now
	t.rows[meta.ID] = *rec
	t.byExt[meta.ExternalID] = meta.ID
	return nil
}

func (t *table[T, P]) Update(ctx context.Context, rec *T) error {
	meta := P(rec).Meta()
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	old, ok := t.rows[meta.ID]
	if !ok {
		return ErrNotFound
	}
	if P(&old).Meta().ExternalID != meta.ExternalID {
		return &ValidationError{Field: "external_id", Message: "is immutable"}
	}
	meta.UpdatedAt = t.m.now()
	t.rows[meta.ID] = *rec
	return nil
}

func (t *table[T, P]) ExternalIDMap(ctx context.Context) (map[string]int64, error) {
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	out := make(map[string]int64, len(t.byExt))
	for k, v := range t.byExt {
		out[k] = v
	}
	return out, nil
}

type memTags struct {
	*table[model.Tag, *model.Tag]
}

func (r *memTags) List(ctx context.Context) ([]model.Tag, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make([]model.Tag, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memTags) SetParent(ctx context.Context, tagID int64, parentID *int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	row, ok := r.rows[tagID]
	if !ok {
		return ErrNotFound
	}
	row.ParentTagID = parentID
	r.rows[tagID] = row
	return nil
}

type memContacts struct {
	*table[model.Contact, *model.Contact]
}

func (r *memContacts) FindByExternalID(ctx context.Context, externalID string) (*model.Contact, error) {
	if c, err := r.table.FindByExternalID(ctx, externalID); err == nil {
		return c, nil
	}
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, row := range r.rows {
		if row.HasExternalID(externalID) {
			c := row
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memContacts) FindByHandles(ctx context.Context, handles []string) (*model.Contact, error) {
	want := make(map[string]struct{}, len(handles))
	for _, h := range handles {
		want[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	ids := make([]int64, 0, len(r.rows))
	for id := range r.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		row := r.rows[id]
		if _, ok := want[strings.ToLower(row.Handle)]; ok && row.Handle != "" {
			return &row, nil
		}
		for _, h := range row.Handles {
			if _, ok := want[strings.ToLower(h.Handle)]; ok {
				return &row, nil
			}
		}
	}
	return nil, ErrNotFound
}

func (r *memContacts) ExternalIDMap(ctx context.Context) (map[string]int64, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make(map[string]int64, len(r.rows))
	for id, row := range r.rows {
		out[row.ExternalID] = id
		for _, alias := range row.AliasExternalIDs {
			out[alias] = id
		}
	}
	return out, nil
}

func (r *memContacts) HandleMap(ctx context.Context) (map[string]int64, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make(map[string]int64)
	for id, row := range r.rows {
		if row.Handle != "" {
			out[strings.ToLower(row.Handle)] = id
		}
		for _, h := range row.Handles {
			out[strings.ToLower(h.Handle)] = id
		}
	}
	return out, nil
}

type memMessages struct {
	*table[model.Message, *model.Message]
	recipients  map[int64][]model.Recipient
	attachments map[int64][]model.Attachment
	nextChild   int64
}

func (r *memMessages) ReplaceRecipients(ctx context.Context, messageID int64, recipients []model.Recipient) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	rows := make([]model.Recipient, 0, len(recipients))
	for _, rc := range recipients {
		r.nextChild++
		rc.ID = r.nextChild
		rc.MessageID = messageID
		rows = append(rows, rc)
	}
	r.recipients[messageID] = rows
	return nil
}

func (r *memMessages) ReplaceAttachments(ctx context.Context, messageID int64, attachments []model.Attachment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	rows := make([]model.Attachment, 0, len(attachments))
	for _, a := range attachments {
		r.nextChild++
		a.ID = r.nextChild
		a.MessageID = messageID
		rows = append(rows, a)
	}
	r.attachments[messageID] = rows
	return nil
}

// RecipientsOf 测试用
func (m *Memory) RecipientsOf(messageID int64) []model.Recipient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Recipient(nil), m.messages.recipients[messageID]...)
}

// AttachmentsOf 测试用
func (m *Memory) AttachmentsOf(messageID int64) []model.Attachment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Attachment(nil), m.messages.attachments[messageID]...)
}

// AssociationCalls 返回关联表 list/insert/delete 的调用次数
func (m *Memory) AssociationCalls() (list, insert, del int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.assoc.listCalls, m.assoc.insertCalls, m.assoc.deleteCalls
}

// Counts 各实体记录数
func (m *Memory) Counts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int{
		"teammates":     len(m.teammates.rows),
		"tags":          len(m.tags.rows),
		"inboxes":       len(m.inboxes.rows),
		"contacts":      len(m.contacts.rows),
		"conversations": len(m.conversations.rows),
		"messages":      len(m.messages.rows),
	}
}

type memAssociations struct {
	m    *Memory
	rows map[Relation]map[Pair]struct{}
	// 批量调用次数，便于断言"一次批量写入"
	listCalls   int
	insertCalls int
	deleteCalls int
}

func (a *memAssociations) ListAssociations(ctx context.Context, relation Relation, parentIDs []int64) (map[int64][]int64, error) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	a.listCalls++
	want := make(map[int64]struct{}, len(parentIDs))
	for _, id := range parentIDs {
		want[id] = struct{}{}
	}
	out := make(map[int64][]int64)
	for p := range a.rows[relation] {
		if _, ok := want[p.ParentID]; ok {
			out[p.ParentID] = append(out[p.ParentID], p.RelatedID)
		}
	}
	for id := range out {
		sort.Slice(out[id], func(i, j int) bool { return out[id][i] < out[id][j] })
	}
	return out, nil
}

func (a *memAssociations) InsertAssociations(ctx context.Context, relation Relation, pairs []Pair) error {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	a.insertCalls++
	if a.rows[relation] == nil {
		a.rows[relation] = make(map[Pair]struct{})
	}
	for _, p := range pairs {
		a.rows[relation][p] = struct{}{}
	}
	return nil
}

func (a *memAssociations) DeleteAssociations(ctx context.Context, relation Relation, pairs []Pair) error {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	a.deleteCalls++
	for _, p := range pairs {
		delete(a.rows[relation], p)
	}
	return nil
}

type memRuns struct {
	m    *Memory
	runs []model.SyncRun
}

func (r *memRuns) Create(ctx context.Context, run *model.SyncRun) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.runs = append(r.runs, *run)
	return nil
}

func (r *memRuns) Finish(ctx context.Context, run *model.SyncRun) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for i := range r.runs {
		if r.runs[i].ID == run.ID {
			r.runs[i] = *run
			return nil
		}
	}
	return ErrNotFound
}

func (r *memRuns) Recent(ctx context.Context, limit int) ([]model.SyncRun, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make([]model.SyncRun, 0, limit)
	for i := len(r.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.runs[i])
	}
	return out, nil
}

func (r *memRuns) LastCompleted(ctx context.Context) (*model.SyncRun, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for i := len(r.runs) - 1; i >= 0; i-- {
		if r.runs[i].Status == model.SyncRunCompleted {
			run := r.runs[i]
			return &run, nil
		}
	}
	return nil, ErrNotFound
}
