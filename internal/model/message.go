package model

import "time"

// AuthorKind 作者类型
type AuthorKind string

const (
	AuthorUnknown  AuthorKind = "unknown"
	AuthorContact  AuthorKind = "contact"
	AuthorTeammate AuthorKind = "teammate"
)

// Author 消息作者：Contact(id) | Teammate(id) | Unknown
type Author struct {
	Kind AuthorKind
	ID   int64
}

func ContactAuthor(id int64) Author  { return Author{Kind: AuthorContact, ID: id} }
func TeammateAuthor(id int64) Author { return Author{Kind: AuthorTeammate, ID: id} }
func UnknownAuthor() Author          { return Author{Kind: AuthorUnknown} }

// ContactID 当作者为联系人时返回其 ID
func (a Author) ContactID() (int64, bool) {
	return a.ID, a.Kind == AuthorContact && a.ID != 0
}

// TeammateID 当作者为成员时返回其 ID
func (a Author) TeammateID() (int64, bool) {
	return a.ID, a.Kind == AuthorTeammate && a.ID != 0
}

const MessageTypeComment = "comment"

type Message struct {
	Base
	ConversationID  int64
	Type            string
	IsInbound       bool
	IsDraft         bool
	Subject         string
	Blurb           string
	Body            string
	Text            string
	Author          Author
	RemoteCreatedAt *time.Time
}

type Recipient struct {
	ID        int64
	MessageID int64
	Handle    string
	Role      string
	ContactID *int64
}

// Attachment 仅保存元数据，不保存文件内容
type Attachment struct {
	ID          int64
	MessageID   int64
	Filename    string
	URL         string
	ContentType string
	Size        int64
	IsInline    bool
}
