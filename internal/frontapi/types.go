package frontapi

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"
)

// Links 远端对象的 _links 字段
type Links struct {
	Self    string            `json:"self"`
	Related map[string]string `json:"related"`
}

func (l Links) RelatedURL(name string) string {
	if l.Related == nil {
		return ""
	}
	return l.Related[name]
}

// 时间戳字段保持原始值（通常是秒级浮点数），由 upsert.ParseTimestamp 解析

type Teammate struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	Username    string         `json:"username"`
	FirstName   string         `json:"first_name"`
	LastName    string         `json:"last_name"`
	IsAdmin     bool           `json:"is_admin"`
	IsAvailable bool           `json:"is_available"`
	IsBlocked   bool           `json:"is_blocked"`
	UpdatedAt   any            `json:"updated_at"`
	Links       Links          `json:"_links"`
	Extra       map[string]any `json:"-"`
}

func (t *Teammate) UnmarshalJSON(b []byte) error {
	type alias Teammate
	return unmarshalWithExtra(b, (*alias)(t), &t.Extra)
}

type Tag struct {
	ID                           string         `json:"id"`
	Name                         string         `json:"name"`
	Description                  string         `json:"description"`
	Highlight                    string         `json:"highlight"`
	IsPrivate                    bool           `json:"is_private"`
	IsVisibleInConversationLists bool           `json:"is_visible_in_conversation_lists"`
	ParentTagID                  string         `json:"parent_tag_id"`
	CreatedAt                    any            `json:"created_at"`
	UpdatedAt                    any            `json:"updated_at"`
	Links                        Links          `json:"_links"`
	Extra                        map[string]any `json:"-"`
}

func (t *Tag) UnmarshalJSON(b []byte) error {
	type alias Tag
	return unmarshalWithExtra(b, (*alias)(t), &t.Extra)
}

type Inbox struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	IsPrivate bool           `json:"is_private"`
	Type      string         `json:"type"`
	UpdatedAt any            `json:"updated_at"`
	Links     Links          `json:"_links"`
	Extra     map[string]any `json:"-"`
}

func (i *Inbox) UnmarshalJSON(b []byte) error {
	type alias Inbox
	return unmarshalWithExtra(b, (*alias)(i), &i.Extra)
}

type Channel struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Address string `json:"address"`
	Links   Links  `json:"_links"`
}

type ContactHandle struct {
	Handle string `json:"handle"`
	Source string `json:"source"`
}

type Contact struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Handle      string          `json:"handle"`
	Handles     []ContactHandle `json:"handles"`
	IsSpammer   bool            `json:"is_spammer"`
	UpdatedAt   any             `json:"updated_at"`
	Links       Links           `json:"_links"`
	Extra       map[string]any  `json:"-"`
}

func (c *Contact) UnmarshalJSON(b []byte) error {
	type alias Contact
	return unmarshalWithExtra(b, (*alias)(c), &c.Extra)
}

// Ref 嵌入对象只关心 ID
type Ref struct {
	ID string `json:"id"`
}

type ConversationRecipient struct {
	Handle string `json:"handle"`
	Role   string `json:"role"`
	Links  Links  `json:"_links"`
}

type Conversation struct {
	ID          string                 `json:"id"`
	Subject     string                 `json:"subject"`
	Status      string                 `json:"status"`
	Assignee    *Ref                   `json:"assignee"`
	Recipient   *ConversationRecipient `json:"recipient"`
	Tags        []Ref                  `json:"tags"`
	Inboxes     []Ref                  `json:"inboxes"` // 部分接口不返回，缺失时单独请求
	IsPrivate   bool                   `json:"is_private"`
	CreatedAt   any                    `json:"created_at"`
	UpdatedAt   any                    `json:"updated_at"`
	LastMessage *Ref                   `json:"last_message"`
	Links       Links                  `json:"_links"`
	Extra       map[string]any         `json:"-"`
}

func (c *Conversation) UnmarshalJSON(b []byte) error {
	type alias Conversation
	return unmarshalWithExtra(b, (*alias)(c), &c.Extra)
}

// HasInboxes 载荷中是否带有 inboxes 字段
func (c *Conversation) HasInboxes() bool {
	return c.Inboxes != nil
}

type MessageAuthor struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Links    Links  `json:"_links"`
}

type MessageRecipient struct {
	Handle string `json:"handle"`
	Role   string `json:"role"`
	Links  Links  `json:"_links"`
}

type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Metadata    struct {
		IsInline bool `json:"is_inline"`
	} `json:"metadata"`
}

type Message struct {
	ID          string             `json:"id"`
	Type        string             `json:"type"`
	IsInbound   bool               `json:"is_inbound"`
	IsDraft     bool               `json:"is_draft"`
	Subject     string             `json:"subject"`
	Blurb       string             `json:"blurb"`
	Body        string             `json:"body"`
	Text        string             `json:"text"`
	Author      *MessageAuthor     `json:"author"`
	Recipients  []MessageRecipient `json:"recipients"`
	Attachments []Attachment       `json:"attachments"`
	CreatedAt   any                `json:"created_at"`
	UpdatedAt   any                `json:"updated_at"`
	Links       Links              `json:"_links"`
	Extra       map[string]any     `json:"-"`
}

func (m *Message) UnmarshalJSON(b []byte) error {
	type alias Message
	return unmarshalWithExtra(b, (*alias)(m), &m.Extra)
}

// Comment 会话内部评论，作为 type=comment 的消息保存
type Comment struct {
	ID          string         `json:"id"`
	Author      *MessageAuthor `json:"author"`
	Body        string         `json:"body"`
	PostedAt    any            `json:"posted_at"`
	Attachments []Attachment   `json:"attachments"`
	Links       Links          `json:"_links"`
	Extra       map[string]any `json:"-"`
}

func (c *Comment) UnmarshalJSON(b []byte) error {
	type alias Comment
	return unmarshalWithExtra(b, (*alias)(c), &c.Extra)
}

// EventConversation 事件中嵌入的会话摘要
type EventConversation struct {
	ID        string `json:"id"`
	CreatedAt any    `json:"created_at"`
}

type Event struct {
	ID           string             `json:"id"`
	Type         string             `json:"type"`
	EmittedAt    any                `json:"emitted_at"`
	Conversation *EventConversation `json:"conversation"`
}

// unmarshalWithExtra 解码已知字段，其余字段收集到 extra（写入本地 Metadata）
func unmarshalWithExtra(b []byte, target any, extra *map[string]any) error {
	if err := json.Unmarshal(b, target); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	for _, name := range jsonFieldNames(reflect.TypeOf(target).Elem()) {
		delete(all, name)
	}
	if len(all) > 0 {
		*extra = all
	} else {
		*extra = nil
	}
	return nil
}

var fieldNameCache sync.Map // reflect.Type -> []string

func jsonFieldNames(t reflect.Type) []string {
	if cached, ok := fieldNameCache.Load(t); ok {
		return cached.([]string)
	}
	names := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}
		names = append(names, name)
	}
	fieldNameCache.Store(t, names)
	return names
}
