package provider

import (
	"strconv"
	"strings"
)

// Lookup 按路径在数据中查找值，例如 "/header/title" 或 "items/0/name"。
// 分隔符只有 "/"，键名中可以包含 "."；空路径与 "/" 返回根。
func Lookup(data any, path string) (any, bool) {
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	node := data
	for _, p := range parts {
		switch n := node.(type) {
		case map[string]any:
			v, ok := n[p]
			if !ok {
				return nil, false
			}
			node = v
		case []any:
			i, err := strconv.Atoi(p)
			if err != nil || i < 0 || i >= len(n) {
				return nil, false
			}
			node = n[i]
		default:
			return nil, false
		}
	}
	return node, true
}
