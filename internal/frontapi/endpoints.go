package frontapi

import (
	"context"
	"net/url"
)

func (c *Client) Teammates() *Paginator[Teammate] {
	return NewPaginator[Teammate](c, "/teammates", nil)
}

func (c *Client) Tags() *Paginator[Tag] {
	return NewPaginator[Tag](c, "/tags", nil)
}

func (c *Client) Inboxes() *Paginator[Inbox] {
	return NewPaginator[Inbox](c, "/inboxes", nil)
}

func (c *Client) Channels() *Paginator[Channel] {
	return NewPaginator[Channel](c, "/channels", nil)
}

func (c *Client) Contacts() *Paginator[Contact] {
	return NewPaginator[Contact](c, "/contacts", nil)
}

// Conversations 会话列表，远端按最新在前返回
func (c *Client) Conversations(query url.Values) *Paginator[Conversation] {
	return NewPaginator[Conversation](c, "/conversations", query)
}

func (c *Client) ConversationInboxes(conversationID string) *Paginator[Inbox] {
	return NewPaginator[Inbox](c, "/conversations/"+url.PathEscape(conversationID)+"/inboxes", nil)
}

func (c *Client) ConversationMessages(conversationID string) *Paginator[Message] {
	return NewPaginator[Message](c, "/conversations/"+url.PathEscape(conversationID)+"/messages", nil)
}

func (c *Client) ConversationComments(conversationID string) *Paginator[Comment] {
	return NewPaginator[Comment](c, "/conversations/"+url.PathEscape(conversationID)+"/comments", nil)
}

func (c *Client) Events(query url.Values) *Paginator[Event] {
	return NewPaginator[Event](c, "/events", query)
}

// GetConversation 获取单个会话
func (c *Client) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	if err := c.GetJSON(ctx, "/conversations/"+url.PathEscape(id), nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}
