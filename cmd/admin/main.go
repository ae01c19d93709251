package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"storefront/internal/app"
	"storefront/internal/core/config"
	"storefront/internal/core/logger"
	"storefront/internal/core/server"
	"storefront/internal/transport/http/router"
)

func main() {
	bootstrap := flag.String("bootstrap-admin", "", "grant the admin role to this (already registered) email and exit")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load(os.Getenv("CONFIG_PATH"))
	log, cleanup := logger.New(cfg.Log)
	defer cleanup()

	// 后台鉴权要查 admins 表，没有数据库不启动
	if !cfg.BackendConfigured() {
		log.Fatal("admin api requires db.driver and db.dsn")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("bootstrap failed", zap.Error(err))
	}
	defer a.Close()

	if *bootstrap != "" {
		u, err := a.Users.BootstrapAdmin(ctx, *bootstrap)
		if err != nil {
			log.Fatal("bootstrap admin failed", zap.String("email", *bootstrap), zap.Error(err))
		}
		log.Info("admin granted", zap.String("uid", u.ID), zap.String("email", u.Email))
		return
	}

	// 后台不主动预加载，只在 /preloader/refresh 时触发
	a.RunBackground(ctx, false)

	// 路由（后台端）
	r := router.NewAdminEngine(log, a.AdminRegistry(ctx), a.JWT, a.Users, a.RouterOptions(a.GinMode()))

	// HTTP Server
	addr := server.Addr(cfg.App.Admin.Host, cfg.App.Admin.Port)
	srv := server.BuildServer(
		addr, r,
		time.Duration(cfg.App.HTTP.ReadTimeoutSec)*time.Second,
		// 上传图片时写超时放宽
		time.Duration(cfg.App.HTTP.WriteTimeoutSec)*3*time.Second,
		time.Duration(cfg.App.HTTP.IdleTimeoutSec)*time.Second,
	)

	// 启动前打印可点击地址
	host4human := cfg.App.Admin.Host
	if host4human == "" || host4human == "0.0.0.0" {
		host4human = "127.0.0.1"
	}
	baseURL := "http://" + host4human + ":" + fmt.Sprint(cfg.App.Admin.Port)
	log.Info("admin api starting",
		zap.String("addr", addr),
		zap.String("open", baseURL),
		zap.String("health", baseURL+"/health"),
		zap.String("admin_v1", baseURL+"/admin/v1"),
	)

	// 异步启动；失败立即标红退出
	go func() {
		if err := server.StartHTTP(srv, log); err != nil {
			log.Fatal("admin api start FAILED", zap.Error(err))
		}
	}()

	// 关闭
	<-ctx.Done()
	server.Shutdown(srv, log, 10*time.Second)
	log.Info("admin api stopped gracefully")
}
