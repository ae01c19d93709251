// Package handler 各业务模块的路由挂载，实现 router.APIModule / router.AdminModule
package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"storefront/internal/transport/http/ez"
)

func uid(c *gin.Context) string { return c.GetString(ez.CtxUserID) }

func queryInt(c *gin.Context, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil && v >= 0 {
		return v
	}
	return def
}

type listOut[T any] struct {
	Total int64 `json:"total"`
	Items []T   `json:"items"`
}

func listOf[T any](items []T, total int64) listOut[T] {
	if items == nil {
		items = []T{}
	}
	return listOut[T]{Total: total, Items: items}
}
