package storage

import "github.com/koopa0/shortlink/internal/shortener"

// 列表分頁限制
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ClampLimit 把調用方傳入的 limit 收斂到 [1, MaxListLimit]
//
// limit <= 0 表示未指定，使用 DefaultListLimit。
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

func clampList(links []*shortener.Link, limit int) []*shortener.Link {
	if len(links) > limit {
		return links[:limit]
	}
	return links
}
