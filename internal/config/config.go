package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// AppConfig 聚合运行时配置：默认值 + 可选 config.yaml + SECKILL_ 前缀环境变量。
type AppConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
	LogLevel string `mapstructure:"log_level"`

	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Login    LoginConfig    `mapstructure:"login"`
	Seckill  SeckillConfig  `mapstructure:"seckill"`
	Warmup   WarmupConfig   `mapstructure:"warmup"`

	// 预热/建券等管理接口的简单管理员令牌（demo 级别保护）
	AdminToken string `mapstructure:"admin_token"`
}

// DatabaseConfig 关系库连接参数，driver 为 sqlite|mysql|postgres。
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig 订单事件：Redis Stream outbox -> Kafka -> 缓存失效消费者。
type KafkaConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	GroupID  string   `mapstructure:"group_id"`
	Stream   string   `mapstructure:"stream"`
	Group    string   `mapstructure:"stream_group"`
	Consumer string   `mapstructure:"stream_consumer"`
}

// CacheConfig 缓存相关 TTL 与重建线程池。
type CacheConfig struct {
	// ShopStrategy 店铺读取策略 passthrough|mutex|logical，整个部署只用一种
	ShopStrategy   string        `mapstructure:"shop_strategy"`
	ShopTTL        time.Duration `mapstructure:"shop_ttl"`
	NullTTL        time.Duration `mapstructure:"null_ttl"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	LogicalTTL     time.Duration `mapstructure:"logical_ttl"`
	MutexRetries   int           `mapstructure:"mutex_retries"`
	MutexInterval  time.Duration `mapstructure:"mutex_interval"`
	RebuildWorkers int           `mapstructure:"rebuild_workers"`
	RebuildQueue   int           `mapstructure:"rebuild_queue"`
}

type LoginConfig struct {
	CodeTTL  time.Duration `mapstructure:"code_ttl"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// SeckillConfig 下单限流与一人一单锁。
type SeckillConfig struct {
	OrderLockTTL time.Duration `mapstructure:"order_lock_ttl"`
	RateLimit    int           `mapstructure:"rate_limit"`
	RateWindow   time.Duration `mapstructure:"rate_window"`
}

// WarmupConfig 热点店铺逻辑过期缓存的定时预热。
type WarmupConfig struct {
	Schedule string `mapstructure:"schedule"`
	ShopIDs  []uint `mapstructure:"shop_ids"`
}

// Load 读取并校验配置，缺失时使用默认值。
func Load(paths ...string) (AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	v.SetEnvPrefix("SECKILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return AppConfig{}, fmt.Errorf("config: read file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return AppConfig{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("admin_token", "dev-admin-token")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "seckill.db")
	v.SetDefault("database.dsn", "")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "seckill-order-events")
	v.SetDefault("kafka.group_id", "seckill-cache-invalidator")
	v.SetDefault("kafka.stream", "seckill:order_events")
	v.SetDefault("kafka.stream_group", "seckill-relay-group")
	v.SetDefault("kafka.stream_consumer", "seckill-relay-1")

	v.SetDefault("cache.shop_strategy", "passthrough")
	v.SetDefault("cache.shop_ttl", "30m")
	v.SetDefault("cache.null_ttl", "2m")
	v.SetDefault("cache.lock_ttl", "10s")
	v.SetDefault("cache.logical_ttl", "30m")
	v.SetDefault("cache.mutex_retries", 20)
	v.SetDefault("cache.mutex_interval", "50ms")
	v.SetDefault("cache.rebuild_workers", 10)
	v.SetDefault("cache.rebuild_queue", 100)

	v.SetDefault("login.code_ttl", "2m")
	v.SetDefault("login.token_ttl", "600m")

	v.SetDefault("seckill.order_lock_ttl", "5s")
	v.SetDefault("seckill.rate_limit", 1000)
	v.SetDefault("seckill.rate_window", "1s")

	v.SetDefault("warmup.schedule", "@every 10m")
	v.SetDefault("warmup.shop_ids", []uint{})
}

// Validate 校验取值范围，错误信息直接指明配置项。
func (c AppConfig) Validate() error {
	positive := []struct {
		name string
		val  time.Duration
	}{
		{"cache.shop_ttl", c.Cache.ShopTTL},
		{"cache.null_ttl", c.Cache.NullTTL},
		{"cache.lock_ttl", c.Cache.LockTTL},
		{"cache.logical_ttl", c.Cache.LogicalTTL},
		{"cache.mutex_interval", c.Cache.MutexInterval},
		{"login.code_ttl", c.Login.CodeTTL},
		{"login.token_ttl", c.Login.TokenTTL},
		{"seckill.order_lock_ttl", c.Seckill.OrderLockTTL},
		{"seckill.rate_window", c.Seckill.RateWindow},
	}
	for _, p := range positive {
		if p.val <= 0 {
			return fmt.Errorf("%s must be > 0", p.name)
		}
	}
	if c.Cache.MutexRetries <= 0 {
		return fmt.Errorf("cache.mutex_retries must be > 0")
	}
	if c.Cache.RebuildWorkers <= 0 {
		return fmt.Errorf("cache.rebuild_workers must be > 0")
	}
	if c.Cache.RebuildQueue <= 0 {
		return fmt.Errorf("cache.rebuild_queue must be > 0")
	}
	if c.Seckill.RateLimit <= 0 {
		return fmt.Errorf("seckill.rate_limit must be > 0")
	}
	switch c.Cache.ShopStrategy {
	case "passthrough", "mutex", "logical":
	default:
		return fmt.Errorf("cache.shop_strategy %q is not supported", c.Cache.ShopStrategy)
	}
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers must not be empty")
		}
		if c.Kafka.Topic == "" || c.Kafka.GroupID == "" {
			return fmt.Errorf("kafka.topic and kafka.group_id must not be empty")
		}
		if c.Kafka.Stream == "" || c.Kafka.Group == "" || c.Kafka.Consumer == "" {
			return fmt.Errorf("kafka stream settings must not be empty")
		}
	}
	return nil
}
