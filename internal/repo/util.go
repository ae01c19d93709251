package repo

import (
	"encoding/json"
	"strings"
)

// jsonQuoted 与 serializer:json 写入的格式一致，供 LIKE 匹配数组元素
func jsonQuoted(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// likeArg 包成 %s%；"_" 仍能匹配自身，只需去掉 "%"
func likeArg(s string) string {
	return "%" + strings.ReplaceAll(strings.TrimSpace(s), "%", "") + "%"
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
