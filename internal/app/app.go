// Package app 两个进程共用的依赖装配：数据库、缓存、存储、各个 service
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"storefront/internal/core/auth"
	"storefront/internal/core/cache"
	"storefront/internal/core/config"
	"storefront/internal/core/database"
	"storefront/internal/core/logger"
	"storefront/internal/core/storage"
	"storefront/internal/domain"
	"storefront/internal/repo"
	"storefront/internal/service"
	"storefront/internal/transport/http/handler"
	mdw "storefront/internal/transport/http/middleware"
	"storefront/internal/transport/http/router"
)

type App struct {
	Cfg *config.Config
	Log *zap.Logger
	DB  *gorm.DB // 未配置后端时为 nil
	JWT *auth.JWTer

	Mem   *cache.Memory
	Store *cache.Persistent // 未配置 Redis 时为 nil

	Errors     *service.ErrorService
	Products   *service.ProductService
	Categories *service.CategoryService
	Preloader  *service.Preloader
	Images     *service.ImageService
	Users      *service.UserService
	Cart       *service.CartService
	Wishlist   *service.WishlistService
	Orders     *service.OrderService
	Dashboard  *service.DashboardService

	rdb     *redis.Client
	mongo   *mongo.Client
	closers []func()
}

// Build 按配置装配；数据库 / Redis / Mongo 都是可选的
func Build(ctx context.Context, cfg *config.Config, l *zap.Logger) (*App, error) {
	if cfg.JWT.Secret == "" {
		return nil, errors.New("jwt.secret is required")
	}
	a := &App{
		Cfg: cfg,
		Log: l,
		JWT: auth.NewJWTer(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.AccessTokenTTLMin)*time.Minute),
		Mem: cache.NewMemory(cfg.Cache.TTL()),
	}
	if err := a.openBackends(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildServices(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openBackends(ctx context.Context) error {
	cfg, l := a.Cfg, a.Log
	if cfg.BackendConfigured() {
		db, err := database.NewGorm(database.Opts{
			Driver:             cfg.DB.Driver,
			DSN:                cfg.DB.DSN,
			Username:           cfg.DB.Username,
			Password:           cfg.DB.Password,
			MaxOpenConns:       cfg.DB.MaxOpenConns,
			MaxIdleConns:       cfg.DB.MaxIdleConns,
			ConnMaxLifetimeMin: cfg.DB.ConnMaxLifetimeMin,
			LogLevel:           cfg.DB.LogLevel,
			LogWriter:          logger.ToWriter(l.Named("gorm"), zapcore.WarnLevel),
		})
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		a.closers = append(a.closers, func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		})
		if cfg.DB.AutoMigrate {
			if err := database.AutoMigrate(db); err != nil {
				return fmt.Errorf("automigrate: %w", err)
			}
			l.Info("automigrate done")
		}
		a.DB = db
		l.Info("database connected", zap.String("driver", cfg.DB.Driver), zap.String("dsn", database.MaskDSN(cfg.DB.DSN)))
	} else {
		l.Warn("no database configured, catalog served from mock data")
	}

	if cfg.Redis.Addr != "" {
		a.rdb = cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := a.rdb.Ping(pctx).Err(); err != nil {
			// Redis 只是二级缓存，连不上就只用进程内缓存
			l.Warn("redis unavailable, memory cache only", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			_ = a.rdb.Close()
			a.rdb = nil
		} else {
			a.Store = cache.NewPersistent(a.rdb, cfg.Cache.Prefix, cfg.Cache.Version)
			a.closers = append(a.closers, func() { _ = a.rdb.Close() })
		}
	}

	if cfg.Mongo.URI != "" {
		client, _, err := database.NewMongo(ctx, database.MongoOpts{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
			Timeout:  time.Duration(cfg.Mongo.TimeoutSec) * time.Second,
		})
		if err != nil {
			l.Warn("mongodb unavailable, error logs fall back to sql", zap.Error(err))
		} else {
			a.mongo = client
			a.closers = append(a.closers, func() {
				dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = client.Disconnect(dctx)
			})
		}
	}
	return nil
}

func (a *App) errorLogRepo() domain.ErrorLogRepository {
	switch {
	case a.mongo != nil:
		return repo.NewMongoErrorLogRepo(a.mongo.Database(a.Cfg.Mongo.Database))
	case a.DB != nil:
		return repo.NewErrorLogRepo(a.DB)
	}
	return nil
}

func (a *App) buildStorage(ctx context.Context) (storage.Store, error) {
	sc := a.Cfg.Storage
	if sc.Driver == "s3" {
		return storage.NewS3(ctx, storage.S3Opts{
			Bucket: sc.Bucket, Region: sc.Region, Endpoint: sc.Endpoint, PublicURL: sc.PublicURL,
		})
	}
	return storage.NewLocal(sc.BaseDir, sc.PublicURL), nil
}

func (a *App) buildServices(ctx context.Context) error {
	cfg, l := a.Cfg, a.Log
	tiered := cache.NewTiered(a.Mem, a.Store, l.Named("cache"))

	a.Errors = service.NewErrorService(l.Named("errors"), service.ErrorServiceOpts{
		Env:        cfg.App.Env,
		Production: cfg.App.Production(),
		RingSize:   cfg.Errors.RingSize,
		Repo:       a.errorLogRepo(),
	})

	var (
		productRepo  domain.ProductRepository
		categoryRepo domain.CategoryRepository
	)
	// 接口变量不能直接接 nil 指针
	if a.DB != nil {
		productRepo = repo.NewProductRepo(a.DB)
		categoryRepo = repo.NewCategoryRepo(a.DB)
	}
	a.Products = service.NewProductService(l.Named("products"), service.ProductServiceOpts{
		Repo: productRepo, Cache: tiered, Errors: a.Errors, TTL: cfg.Cache.TTL(),
	})
	a.Categories = service.NewCategoryService(l.Named("categories"), categoryRepo, tiered, a.Errors,
		time.Duration(cfg.Cache.CategoryTTL)*time.Second)

	pc := cfg.Preload
	var warmer service.ImageWarmer
	if pc.ImageWarmup {
		warmer = service.HTTPWarmer{}
	}
	a.Preloader = service.NewPreloader(l.Named("preload"), a.Products.PreloadBatch, a.Mem, a.Store, service.PreloaderOpts{
		Delay:      time.Duration(pc.DelayMs) * time.Millisecond,
		BatchSize:  pc.BatchSize,
		TTL:        time.Duration(pc.TTLSec) * time.Second,
		ImageCount: pc.ImageCount,
		Warmer:     warmer,
	})
	a.Products.OnWrite(a.Preloader.MarkStale)
	a.Categories.OnDelete(a.Preloader.MarkStale)

	store, err := a.buildStorage(ctx)
	if err != nil {
		return err
	}
	ic := cfg.Image
	a.Images = service.NewImageService(l.Named("images"), store, service.ImageDefaults{
		MaxBytes: ic.MaxBytes, MaxWidth: ic.MaxWidth, MaxHeight: ic.MaxHeight, Quality: ic.Quality, ThumbSize: ic.ThumbSize,
		MaxPixels: ic.MaxPixels,
	}, cfg.Storage.CDNBaseURL)

	// 账号 / 购物车 / 订单都依赖数据库
	if a.DB == nil {
		return nil
	}
	users := repo.NewUserRepo(a.DB)
	a.Users = service.NewUserService(l.Named("users"), users, a.JWT)
	a.Cart = service.NewCartService(repo.NewCartRepo(a.DB), a.Products)
	a.Wishlist = service.NewWishlistService(repo.NewWishlistRepo(a.DB), a.Products, a.Cart)
	a.Orders = service.NewOrderService(l.Named("orders"), service.OrderServiceOpts{
		Orders:    repo.NewOrderRepo(a.DB),
		Carts:     repo.NewCartRepo(a.DB),
		Products:  a.Products,
		Addresses: repo.NewAddressRepo(a.DB),
		Users:     users,
		Cache:     tiered,
		Errors:    a.Errors,
	})
	a.Dashboard = service.NewDashboardService(a.Products, a.Categories, a.Users, a.Orders, a.Errors)
	return nil
}

// RouterOptions HTTP 层参数
func (a *App) RouterOptions(mode string) router.Options {
	hc := a.Cfg.App.HTTP
	o := router.Options{
		Mode:           mode,
		CORSOrigins:    hc.CORSOrigins,
		RateLimitRPS:   hc.RateLimitRPS,
		RateLimitBurst: hc.RateLimitBurst,
		MaxInFlight:    hc.MaxInFlight,
		MaxBodyBytes:   hc.MaxBodyMB << 20,
		Timeout:        time.Duration(hc.RequestTimeoutS) * time.Second,
	}
	if a.Cfg.Storage.Driver != "s3" {
		o.UploadsDir = a.Cfg.Storage.BaseDir
	}
	return o
}

// APIRegistry 前台模块；没有数据库时只挂商品浏览
func (a *App) APIRegistry() *router.Registry {
	reg := router.NewRegistry(handler.NewCatalog(a.Products, a.Categories, a.Preloader, a.Images))
	if a.DB != nil {
		authn := mdw.AuthJWT(a.JWT)
		reg.Register(handler.NewAccount(a.Users, a.Cart, a.Wishlist, a.DB, authn))
		reg.Register(handler.NewShopping(a.Cart, a.Wishlist, a.Orders, authn))
	}
	return reg
}

// AdminRegistry 后台模块；bg 是预加载任务使用的进程级 ctx
func (a *App) AdminRegistry(bg context.Context) *router.Registry {
	return router.NewRegistry(
		handler.NewAdminCatalog(a.Products, a.Categories, a.Images),
		handler.NewAdminOps(bg, a.Orders, a.Users, a.Dashboard, a.Errors, a.Preloader),
	)
}

// GinMode 生产环境 release，其余 debug
func (a *App) GinMode() string {
	if a.Cfg.App.Production() {
		return gin.ReleaseMode
	}
	return gin.DebugMode
}

// RunBackground 预加载（可选）+ 内存缓存清理；ctx 取消时结束
func (a *App) RunBackground(ctx context.Context, preload bool) {
	if preload && a.Cfg.Preload.Enabled {
		a.Preloader.StartBackgroundPreload(ctx)
	}
	every := time.Duration(a.Cfg.Cache.CleanupSec) * time.Second
	if every <= 0 {
		every = time.Minute
	}
	go a.Mem.Run(ctx, every)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
