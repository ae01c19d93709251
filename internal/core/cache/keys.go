package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
)

// key 约定：<collection>:<kind>[:<arg>]，失效时按 collection 前缀整体清
const (
	PatternProducts   = "products:"
	PatternCategories = "categories:"

	KeyFeaturedProducts = "products:featured"
	KeyActiveCategories = "categories:active"
	KeyAllCategories    = "categories:all"
	KeyPreloadSnapshot  = "preload:products"
)

func KeyProduct(id string) string { return "products:id:" + id }

func KeyCategory(id string) string { return "categories:id:" + id }

// KeyProductQuery 对查询参数做摘要，作为列表缓存 key
func KeyProductQuery(parts ...any) string {
	b, _ := json.Marshal(parts)
	sum := sha1.Sum(b)
	return "products:list:" + hex.EncodeToString(sum[:8])
}

func KeyProductSearch(term string, limit int) string {
	return KeyProductQuery("search", term, limit)
}
