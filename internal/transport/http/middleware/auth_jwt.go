package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront/internal/core/apperr"
	"storefront/internal/core/auth"
	"storefront/internal/domain"
	"storefront/internal/transport/http/ez"
)

func bearer(c *gin.Context) string {
	ah := c.GetHeader("Authorization")
	if !strings.HasPrefix(ah, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
}

func setClaims(c *gin.Context, claims *auth.Claims) {
	c.Set("claims", claims)
	c.Set(ez.CtxUserID, claims.UID)
	c.Set(ez.CtxRole, claims.Role)
	c.Set(ez.CtxEmail, claims.Email)
}

// AuthJWT 必须登录；写入 userId / role / email
func AuthJWT(j *auth.JWTer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearer(c)
		if tok == "" {
			ez.Fail(c, apperr.Auth(apperr.AuthMissingToken))
			c.Abort()
			return
		}
		claims, err := j.Parse(tok)
		if err != nil {
			ez.Fail(c, apperr.Auth(apperr.AuthInvalidToken))
			c.Abort()
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuth 带了合法 token 就解析，没带也放行
func OptionalAuth(j *auth.JWTer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tok := bearer(c); tok != "" {
			if claims, err := j.Parse(tok); err == nil {
				setClaims(c, claims)
			}
		}
		c.Next()
	}
}

// AdminChecker 后台权限以 admins 表为准
type AdminChecker interface {
	AdminRole(ctx context.Context, uid string) (domain.Role, bool, error)
}

// RequireAdmin 须放在 AuthJWT 之后；每次请求回查 admins，并用查到的角色覆盖 token 里的
func RequireAdmin(chk AdminChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetString(ez.CtxUserID)
		if uid == "" {
			ez.Fail(c, apperr.Auth(apperr.AuthMissingToken))
			c.Abort()
			return
		}
		role, ok, err := chk.AdminRole(c.Request.Context(), uid)
		if err != nil {
			ez.Fail(c, err)
			c.Abort()
			return
		}
		if !ok {
			ez.Fail(c, apperr.Auth(apperr.AuthRequiresAdmin))
			c.Abort()
			return
		}
		c.Set(ez.CtxRole, string(role))
		c.Next()
	}
}
