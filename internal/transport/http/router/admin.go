package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"storefront/internal/core/auth"
	mdw "storefront/internal/transport/http/middleware"
)

// NewAdminEngine 管理端 /admin/v1：JWT + admins 表双重校验
func NewAdminEngine(l *zap.Logger, reg *Registry, jwter *auth.JWTer, chk mdw.AdminChecker, o Options) *gin.Engine {
	o = o.withDefaults()
	r := baseEngine(l, "admin", o, mdw.RateLimit(rate.Limit(o.RateLimitRPS*10), o.RateLimitBurst*10))

	admin := r.Group("/admin/v1")
	admin.Use(mdw.AuthJWT(jwter), mdw.RequireAdmin(chk))
	reg.MountAllAdmin(admin)
	return r
}
