package repository

import (
	"frontsync/internal/model"
)

var teammateColumns = columns[model.Teammate]{
	table: "teammates",
	names: []string{"email", "username", "first_name", "last_name", "is_admin", "is_available", "is_blocked"},
	values: func(t *model.Teammate) []any {
		return []any{t.Email, t.Username, t.FirstName, t.LastName, t.IsAdmin, t.IsAvailable, t.IsBlocked}
	},
	dest: func(t *model.Teammate) []any {
		return []any{&t.Email, &t.Username, &t.FirstName, &t.LastName, &t.IsAdmin, &t.IsAvailable, &t.IsBlocked}
	},
}

var tagColumns = columns[model.Tag]{
	table: "tags",
	names: []string{"name", "description", "highlight", "is_private", "is_visible_in_lists", "parent_tag_id", "parent_external_id"},
	values: func(t *model.Tag) []any {
		return []any{t.Name, t.Description, t.Highlight, t.IsPrivate, t.IsVisibleInConversationLists, t.ParentTagID, t.ParentExternalID}
	},
	dest: func(t *model.Tag) []any {
		return []any{&t.Name, &t.Description, &t.Highlight, &t.IsPrivate, &t.IsVisibleInConversationLists, &t.ParentTagID, &t.ParentExternalID}
	},
}

var inboxColumns = columns[model.Inbox]{
	table: "inboxes",
	names: []string{"name", "is_private", "channel_type", "inbox_type"},
	values: func(i *model.Inbox) []any {
		return []any{i.Name, i.IsPrivate, i.ChannelType, string(i.InboxType)}
	},
	dest: func(i *model.Inbox) []any {
		return []any{&i.Name, &i.IsPrivate, &i.ChannelType, &i.InboxType}
	},
}

var contactColumns = columns[model.Contact]{
	table: "contacts",
	names: []string{"name", "description", "handle", "handles", "is_spammer", "alias_external_ids"},
	values: func(c *model.Contact) []any {
		handles := c.Handles
		if handles == nil {
			handles = []model.ContactHandle{}
		}
		aliases := c.AliasExternalIDs
		if aliases == nil {
			aliases = []string{}
		}
		return []any{c.Name, c.Description, c.Handle, handles, c.IsSpammer, aliases}
	},
	dest: func(c *model.Contact) []any {
		return []any{&c.Name, &c.Description, &c.Handle, &c.Handles, &c.IsSpammer, &c.AliasExternalIDs}
	},
	normalize: func(c *model.Contact) {
		if c.Handles == nil {
			c.Handles = []model.ContactHandle{}
		}
		if len(c.AliasExternalIDs) == 0 {
			c.AliasExternalIDs = nil
		}
	},
}

var conversationColumns = columns[model.Conversation]{
	table: "conversations",
	names: []string{
		"subject", "status", "status_category", "assignee_id", "recipient_contact_id",
		"recipient_handle", "recipient_role", "is_private", "last_message_external_id", "remote_created_at",
	},
	values: func(c *model.Conversation) []any {
		return []any{
			c.Subject, c.Status, string(c.StatusCategory), c.AssigneeID, c.RecipientContactID,
			c.RecipientHandle, c.RecipientRole, c.IsPrivate, c.LastMessageExternalID, c.RemoteCreatedAt,
		}
	},
	dest: func(c *model.Conversation) []any {
		return []any{
			&c.Subject, &c.Status, &c.StatusCategory, &c.AssigneeID, &c.RecipientContactID,
			&c.RecipientHandle, &c.RecipientRole, &c.IsPrivate, &c.LastMessageExternalID, &c.RemoteCreatedAt,
		}
	},
	normalize: func(c *model.Conversation) {
		c.RemoteCreatedAt = utcPtr(c.RemoteCreatedAt)
	},
}

var messageColumns = columns[model.Message]{
	table: "messages",
	names: []string{
		"conversation_id", "type", "is_inbound", "is_draft", "subject", "blurb", "body", "text",
		"author_kind", "author_id", "remote_created_at",
	},
	selects: []string{
		"conversation_id", "type", "is_inbound", "is_draft", "subject", "blurb", "body", "text",
		"author_kind", "COALESCE(author_id, 0)", "remote_created_at",
	},
	values: func(m *model.Message) []any {
		var authorID *int64
		if m.Author.Kind != model.AuthorUnknown && m.Author.ID != 0 {
			id := m.Author.ID
			authorID = &id
		}
		kind := m.Author.Kind
		if kind == "" {
			kind = model.AuthorUnknown
		}
		return []any{
			m.ConversationID, m.Type, m.IsInbound, m.IsDraft, m.Subject, m.Blurb, m.Body, m.Text,
			string(kind), authorID, m.RemoteCreatedAt,
		}
	},
	dest: func(m *model.Message) []any {
		return []any{
			&m.ConversationID, &m.Type, &m.IsInbound, &m.IsDraft, &m.Subject, &m.Blurb, &m.Body, &m.Text,
			&m.Author.Kind, &m.Author.ID, &m.RemoteCreatedAt,
		}
	},
	normalize: func(m *model.Message) {
		m.RemoteCreatedAt = utcPtr(m.RemoteCreatedAt)
	},
}
