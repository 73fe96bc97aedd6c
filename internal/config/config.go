package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/carwash-next/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	UserJWT  JWTConfig      `mapstructure:"user_jwt"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Queue    QueueConfig    `mapstructure:"queue"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Security SecurityConfig `mapstructure:"security"`
	Payment  PaymentConfig  `mapstructure:"payment"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Service    string `mapstructure:"service"`
	Level      string `mapstructure:"level"`
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Service:    c.Service,
		Level:      c.Level,
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string             `mapstructure:"driver"`    // 数据库驱动（sqlite/postgres）
	DSN      string             `mapstructure:"dsn"`       // 数据库连接串
	LogLevel string             `mapstructure:"log_level"` // SQL 日志级别（silent/error/warn/info）
	Pool     DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig JWT 配置
type JWTConfig struct {
	SecretKey   string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig 接口限流配置
type RateLimitConfig struct {
	Login           RateLimitRuleConfig `mapstructure:"login"`
	PaymentCreate   RateLimitRuleConfig `mapstructure:"payment_create"`
	PaymentCallback RateLimitRuleConfig `mapstructure:"payment_callback"`
}

// RateLimitRuleConfig 单条限流规则
type RateLimitRuleConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// PaymentConfig 支付核心配置
type PaymentConfig struct {
	ExpireMinutes         int                   `mapstructure:"expire_minutes"`
	GatewayTimeoutSeconds int                   `mapstructure:"gateway_timeout_seconds"`
	SweepIntervalSeconds  int                   `mapstructure:"sweep_interval_seconds"`
	SweepCron             string                `mapstructure:"sweep_cron"`
	SweepBatchSize        int                   `mapstructure:"sweep_batch_size"`
	LockTTLSeconds        int                   `mapstructure:"lock_ttl_seconds"`
	VirtualEnabled        bool                  `mapstructure:"virtual_enabled"`
	Wechat                WechatPayConfig       `mapstructure:"wechat"`
	Alipay                AlipayConfig          `mapstructure:"alipay"`
	Security              PaymentSecurityConfig `mapstructure:"security"`
}

// WechatPayConfig 微信支付配置
type WechatPayConfig struct {
	AppID     string `mapstructure:"app_id"`
	MchID     string `mapstructure:"mch_id"`
	APIKey    string `mapstructure:"api_key"`
	NotifyURL string `mapstructure:"notify_url"`
}

// AlipayConfig 支付宝配置
type AlipayConfig struct {
	AppID           string `mapstructure:"app_id"`
	PrivateKey      string `mapstructure:"private_key"`       // 应用私钥（出站签名）
	AlipayPublicKey string `mapstructure:"alipay_public_key"` // 支付宝公钥（回调验签）
	SignType        string `mapstructure:"sign_type"`
	GatewayURL      string `mapstructure:"gateway_url"`
	NotifyURL       string `mapstructure:"notify_url"`
}

// PaymentSecurityConfig 信用卡载荷加解密密钥
type PaymentSecurityConfig struct {
	RSAPublicKey  string `mapstructure:"rsa_public_key"`
	RSAPrivateKey string `mapstructure:"rsa_private_key"`
}

// ExpireDuration 支付意图有效期
func (c PaymentConfig) ExpireDuration() time.Duration {
	if c.ExpireMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.ExpireMinutes) * time.Minute
}

// GatewayTimeout 单次网关调用超时
func (c PaymentConfig) GatewayTimeout() time.Duration {
	if c.GatewayTimeoutSeconds <= 0 {
		return 12 * time.Second
	}
	return time.Duration(c.GatewayTimeoutSeconds) * time.Second
}

// SweepInterval 进程内过期扫描间隔
func (c PaymentConfig) SweepInterval() time.Duration {
	if c.SweepIntervalSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// LockTTL 创建支付分布式锁过期时间
func (c PaymentConfig) LockTTL() time.Duration {
	if c.LockTTLSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// Load 读取配置文件与环境变量
func Load() *Config {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")     // 从当前目录查找
	v.AddConfigPath("./")    // 备用路径
	v.AddConfigPath("../")   // 如果从 cmd/server 运行
	v.AddConfigPath("./etc") // etc 文件夹

	setDefaults(v)

	v.AutomaticEnv()                                   // 自动读取环境变量
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 将 . 替换为 _ (例如 server.port -> SERVER_PORT)

	if err := v.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", v.ConfigFileUsed())
	}

	cfg, err := decode(v)
	if err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}
	return cfg
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.Payment.Alipay.SignType = strings.ToUpper(strings.TrimSpace(cfg.Payment.Alipay.SignType))
	if cfg.Payment.Alipay.SignType == "" {
		cfg.Payment.Alipay.SignType = "RSA2"
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.service", "carwash-payment")
	v.SetDefault("log.level", "")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "payment.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/carwash.db")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expire_hours", 12)
	v.SetDefault("user_jwt.secret", "user-change-me-in-production")
	v.SetDefault("user_jwt.expire_hours", 24)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "cw")
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
		"X-Request-ID",
	})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("security.rate_limit.login.window_seconds", 300)
	v.SetDefault("security.rate_limit.login.max_requests", 5)
	v.SetDefault("security.rate_limit.payment_create.window_seconds", 60)
	v.SetDefault("security.rate_limit.payment_create.max_requests", 20)
	v.SetDefault("security.rate_limit.payment_callback.window_seconds", 60)
	v.SetDefault("security.rate_limit.payment_callback.max_requests", 300)
	v.SetDefault("payment.expire_minutes", 30)
	v.SetDefault("payment.gateway_timeout_seconds", 12)
	v.SetDefault("payment.sweep_interval_seconds", 300)
	v.SetDefault("payment.sweep_cron", "@every 5m")
	v.SetDefault("payment.sweep_batch_size", 200)
	v.SetDefault("payment.lock_ttl_seconds", 10)
	v.SetDefault("payment.virtual_enabled", true)
	v.SetDefault("payment.wechat.app_id", "")
	v.SetDefault("payment.wechat.mch_id", "")
	v.SetDefault("payment.wechat.api_key", "")
	v.SetDefault("payment.wechat.notify_url", "")
	v.SetDefault("payment.alipay.app_id", "")
	v.SetDefault("payment.alipay.private_key", "")
	v.SetDefault("payment.alipay.alipay_public_key", "")
	v.SetDefault("payment.alipay.sign_type", "RSA2")
	v.SetDefault("payment.alipay.gateway_url", "https://openapi.alipay.com/gateway.do")
	v.SetDefault("payment.alipay.notify_url", "")
	v.SetDefault("payment.security.rsa_public_key", "")
	v.SetDefault("payment.security.rsa_private_key", "")
}
