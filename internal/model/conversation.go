package model

import (
	"strings"
	"time"
)

// StatusCategory 会话状态粗分类
type StatusCategory string

const (
	StatusCategoryOpen   StatusCategory = "open"
	StatusCategoryClosed StatusCategory = "closed"
)

type Conversation struct {
	Base
	Subject               string
	Status                string
	StatusCategory        StatusCategory
	AssigneeID            *int64
	RecipientContactID    *int64
	RecipientHandle       string
	RecipientRole         string
	IsPrivate             bool
	LastMessageExternalID string
	RemoteCreatedAt       *time.Time
}

// CategorizeStatus 将原始状态字符串映射为 open / closed
func CategorizeStatus(status string) StatusCategory {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "archived", "deleted", "resolved", "closed", "spam", "trashed":
		return StatusCategoryClosed
	default:
		return StatusCategoryOpen
	}
}
