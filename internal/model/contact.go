package model

import "strings"

// ContactHandle 联系人的联系方式（通常是邮箱）
type ContactHandle struct {
	Handle string `json:"handle"`
	Source string `json:"source"`
}

type Contact struct {
	Base
	Name        string
	Description string
	Handle      string // 旧版主 handle
	Handles     []ContactHandle
	IsSpammer   bool
	// 通过邮箱去重合并进来的其他远端 ID，外部 ID 本身不会被改写
	AliasExternalIDs []string
}

// HasExternalID 判断外部 ID 是否属于该联系人（包括别名）
func (c *Contact) HasExternalID(id string) bool {
	if c.ExternalID == id {
		return true
	}
	for _, alias := range c.AliasExternalIDs {
		if alias == id {
			return true
		}
	}
	return false
}

// AddAlias 记录一个合并进来的外部 ID
func (c *Contact) AddAlias(id string) {
	if id == "" || c.HasExternalID(id) {
		return
	}
	c.AliasExternalIDs = append(c.AliasExternalIDs, id)
}

// MergeHandles 合并 handle 集合，按 source+handle 去重（不区分大小写）
func (c *Contact) MergeHandles(incoming []ContactHandle) {
	seen := make(map[string]struct{}, len(c.Handles)+len(incoming))
	merged := make([]ContactHandle, 0, len(c.Handles)+len(incoming))
	for _, h := range append(append([]ContactHandle{}, c.Handles...), incoming...) {
		if strings.TrimSpace(h.Handle) == "" {
			continue
		}
		key := strings.ToLower(h.Source) + "|" + strings.ToLower(strings.TrimSpace(h.Handle))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, h)
	}
	c.Handles = merged
}
