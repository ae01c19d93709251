package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"storefront/internal/core/server"
	mdw "storefront/internal/transport/http/middleware"
)

// Options 两个引擎共用的限流 / 超时等参数
type Options struct {
	Mode           string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int64
	MaxBodyBytes   int64
	Timeout        time.Duration
	// 本地存储时静态文件目录，空则不挂 /uploads
	UploadsDir  string
	UploadsPath string
}

func (o Options) withDefaults() Options {
	if o.RateLimitRPS <= 0 {
		o.RateLimitRPS = 20
	}
	if o.RateLimitBurst <= 0 {
		o.RateLimitBurst = int(o.RateLimitRPS * 2)
	}
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = 300
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 16 << 20
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.UploadsPath == "" {
		o.UploadsPath = "/uploads"
	}
	return o
}

// baseEngine 公共中间件 + /health /metrics /uploads
func baseEngine(l *zap.Logger, name string, o Options, limiter gin.HandlerFunc) *gin.Engine {
	r := server.NewRouter(l, server.Options{Name: name, Mode: o.Mode, CORSOrigins: o.CORSOrigins})
	r.Use(
		mdw.RequestID(),
		limiter,
		mdw.ConcurrencyLimit(o.MaxInFlight, 2*time.Second),
		mdw.MaxBodyBytes(o.MaxBodyBytes),
		mdw.Timeout(o.Timeout),
		mdw.Recovery(l),
		mdw.Metrics(name),
		mdw.AccessLog(l),
	)

	// 健康检查
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": 1}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if o.UploadsDir != "" {
		r.Static(o.UploadsPath, o.UploadsDir)
	}
	return r
}

func perIPLimiter(o Options) gin.HandlerFunc {
	return mdw.RateLimitPerIP(rate.Limit(o.RateLimitRPS), o.RateLimitBurst, 10*time.Minute)
}
