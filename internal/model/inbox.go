package model

import "strings"

// InboxType 渠道类型映射后的逻辑收件箱类型
type InboxType string

const (
	InboxTypeEmail  InboxType = "email"
	InboxTypeSMS    InboxType = "sms"
	InboxTypeChat   InboxType = "chat"
	InboxTypeSocial InboxType = "social"
	InboxTypeCustom InboxType = "custom"
)

type Inbox struct {
	Base
	Name        string
	IsPrivate   bool
	ChannelType string
	InboxType   InboxType
}

// MapInboxType 将远端渠道类型映射为逻辑类型，未知类型原样透传
func MapInboxType(channelType string) InboxType {
	t := strings.ToLower(strings.TrimSpace(channelType))
	switch t {
	case "smtp", "imap", "gmail", "google", "office365", "email":
		return InboxTypeEmail
	case "twilio", "sms", "whatsapp", "twilio_whatsapp":
		return InboxTypeSMS
	case "intercom", "front_chat", "chat", "livechat", "smooch":
		return InboxTypeChat
	case "facebook", "twitter", "twitter_dm", "instagram":
		return InboxTypeSocial
	case "custom", "api":
		return InboxTypeCustom
	default:
		return InboxType(t)
	}
}
