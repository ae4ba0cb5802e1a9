package model

type Tag struct {
	Base
	Name                         string
	Description                  string
	Highlight                    string
	IsPrivate                    bool
	IsVisibleInConversationLists bool
	ParentTagID                  *int64
	ParentExternalID             string // 第一遍同步时暂存，第二遍解析为 ParentTagID
}
