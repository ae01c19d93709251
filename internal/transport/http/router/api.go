package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewAPIEngine 前台 /api/v1；按 IP 限流
func NewAPIEngine(l *zap.Logger, reg *Registry, o Options) *gin.Engine {
	o = o.withDefaults()
	r := baseEngine(l, "api", o, perIPLimiter(o))

	api := r.Group("/api/v1")
	reg.MountAllAPI(api)
	return r
}
