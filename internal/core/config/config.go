package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type HTTP struct {
	Host            string
	Port            int
	ReadTimeoutSec  int
	WriteTimeoutSec int
	IdleTimeoutSec  int
	CORSOrigins     []string `mapstructure:"corsOrigins"`
	RateLimitRPS    float64  `mapstructure:"rateLimitRps"`
	RateLimitBurst  int      `mapstructure:"rateLimitBurst"`
	MaxInFlight     int64    `mapstructure:"maxInFlight"`
	MaxBodyMB       int64    `mapstructure:"maxBodyMB"`
	RequestTimeoutS int      `mapstructure:"requestTimeoutSec"`
}
type AdminHTTP struct {
	Host string
	Port int
}

type App struct {
	Name  string
	Env   string
	HTTP  HTTP
	Admin AdminHTTP
}

// Production 只有生产环境才把错误写入 error_logs
func (a App) Production() bool { return strings.EqualFold(a.Env, "production") || strings.EqualFold(a.Env, "prod") }

type Log struct {
	Level string
	JSON  bool
	// 文件切割（可选）
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type JWT struct {
	Secret            string
	Issuer            string
	AccessTokenTTLMin int
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Mongo struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	TimeoutSec int    `mapstructure:"timeoutSec"`
}

type DB struct {
	Driver             string
	DSN                string
	Username           string
	Password           string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeMin int
	AutoMigrate        bool
	LogLevel           string
}

type Cache struct {
	TTLSec      int    `mapstructure:"ttlSec"`
	Prefix      string `mapstructure:"prefix"`
	Version     string `mapstructure:"version"`
	CleanupSec  int    `mapstructure:"cleanupSec"`
	CategoryTTL int    `mapstructure:"categoryTtlSec"`
}

func (c Cache) TTL() time.Duration { return time.Duration(c.TTLSec) * time.Second }

type Preload struct {
	Enabled     bool `mapstructure:"enabled"`
	DelayMs     int  `mapstructure:"delayMs"`
	BatchSize   int  `mapstructure:"batchSize"`
	TTLSec      int  `mapstructure:"ttlSec"`
	ImageCount  int  `mapstructure:"imageCount"`
	ImageWarmup bool `mapstructure:"imageWarmup"`
}

type Storage struct {
	Driver     string `mapstructure:"driver"` // local | s3
	BaseDir    string `mapstructure:"baseDir"`
	PublicURL  string `mapstructure:"publicUrl"`
	Bucket     string `mapstructure:"bucket"`
	Region     string `mapstructure:"region"`
	Endpoint   string `mapstructure:"endpoint"`
	CDNBaseURL string `mapstructure:"cdnBaseUrl"`
}

type Image struct {
	MaxBytes  int64 `mapstructure:"maxBytes"`
	MaxWidth  int   `mapstructure:"maxWidth"`
	MaxHeight int   `mapstructure:"maxHeight"`
	Quality   int   `mapstructure:"quality"`
	ThumbSize int   `mapstructure:"thumbSize"`
	MaxPixels int64 `mapstructure:"maxPixels"`
}

type Errors struct {
	RingSize int `mapstructure:"ringSize"`
}

type Config struct {
	App     App
	Log     Log
	JWT     JWT
	DB      DB
	Redis   Redis   `mapstructure:"redis"`
	Mongo   Mongo   `mapstructure:"mongo"`
	Cache   Cache   `mapstructure:"cache"`
	Preload Preload `mapstructure:"preload"`
	Storage Storage `mapstructure:"storage"`
	Image   Image   `mapstructure:"image"`
	Errors  Errors  `mapstructure:"errors"`
}

// BackendConfigured 没有数据库配置时，商品 / 分类走 mock 与默认数据
func (c *Config) BackendConfigured() bool {
	return strings.TrimSpace(c.DB.Driver) != "" && strings.TrimSpace(c.DB.DSN) != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "storefront")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.http.host", "0.0.0.0")
	v.SetDefault("app.http.port", 8080)
	v.SetDefault("app.http.readTimeoutSec", 5)
	v.SetDefault("app.http.writeTimeoutSec", 10)
	v.SetDefault("app.http.idleTimeoutSec", 60)
	v.SetDefault("app.http.rateLimitRps", 20)
	v.SetDefault("app.http.rateLimitBurst", 40)
	v.SetDefault("app.http.maxInFlight", 300)
	v.SetDefault("app.http.maxBodyMB", 16)
	v.SetDefault("app.http.requestTimeoutSec", 10)
	v.SetDefault("app.admin.host", "0.0.0.0")
	v.SetDefault("app.admin.port", 8081)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.maxSizeMB", 100)
	v.SetDefault("log.maxBackups", 7)
	v.SetDefault("log.maxAgeDays", 14)
	v.SetDefault("jwt.issuer", "storefront")
	v.SetDefault("jwt.accessTokenTTLMin", 120)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("db.driver", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.autoMigrate", false)
	v.SetDefault("redis.addr", "")
	v.SetDefault("mongo.uri", "")
	v.SetDefault("db.maxOpenConns", 50)
	v.SetDefault("db.maxIdleConns", 10)
	v.SetDefault("db.connMaxLifetimeMin", 30)
	v.SetDefault("db.logLevel", "warn")
	v.SetDefault("mongo.database", "storefront")
	v.SetDefault("mongo.timeoutSec", 10)
	v.SetDefault("cache.ttlSec", 300)
	v.SetDefault("cache.prefix", "storefront:")
	v.SetDefault("cache.version", "1")
	v.SetDefault("cache.cleanupSec", 60)
	v.SetDefault("cache.categoryTtlSec", 600)
	v.SetDefault("preload.enabled", true)
	v.SetDefault("preload.delayMs", 2000)
	v.SetDefault("preload.batchSize", 50)
	v.SetDefault("preload.ttlSec", 600)
	v.SetDefault("preload.imageCount", 10)
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.baseDir", "./uploads")
	v.SetDefault("storage.publicUrl", "/uploads")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.cdnBaseUrl", "")
	v.SetDefault("image.maxBytes", 10<<20)
	v.SetDefault("image.maxWidth", 1920)
	v.SetDefault("image.maxHeight", 1920)
	v.SetDefault("image.quality", 80)
	v.SetDefault("image.thumbSize", 300)
	v.SetDefault("image.maxPixels", 40_000_000)
	v.SetDefault("errors.ringSize", 100)
}

// Load 读取 YAML + 环境变量（APP_ 前缀）；文件缺失时只用默认值与环境变量
func Load(path string) *Config {
	c, err := Parse(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	return c
}

func Parse(path string) (*Config, error) {
	v := viper.New()
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		if path == "" {
			path = "./configs/config.local.yaml"
		}
	}
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &nf) {
			return nil, err
		}
		log.Printf("[config] %s not found, using defaults + env", path)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, nil
}
