package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"storefront/internal/transport/http/ez"
	resp "storefront/internal/transport/http/response"
)

// Timeout 给请求 ctx 加截止时间；下游（DB、Redis、S3）都透传这个 ctx。
// handler 到期仍未写响应时补一个 504 信封。
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			c.Set(ez.CtxRespCode, resp.CodeTimeout)
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeTimeout, "request timed out"))
		}
	}
}
