package syncer

import (
	"strings"
	"unicode"
)

// sanitize 去掉控制字符（保留换行、回车和制表符），修复非法 UTF-8
func sanitize(s string) string {
	if s == "" {
		return s
	}
	s = strings.ToValidUTF8(s, "�")
	return strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t':
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
