package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	resp "storefront/internal/transport/http/response"
)

// MaxBodyBytes 限制请求体大小；声明的 Content-Length 已超限时直接拒绝
func MaxBodyBytes(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > n {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeBadRequest, "request body too large"))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}
