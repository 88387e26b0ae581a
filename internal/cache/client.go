package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"seckill/pkg/logger"
)

var (
	// ErrNotFound 数据源确认不存在（或逻辑过期缓存未预热）。
	ErrNotFound = errors.New("cache: not found")
	// ErrLockTimeout 互斥重建在重试上限内没有拿到锁。
	ErrLockTimeout = errors.New("cache: rebuild lock contended")
)

const (
	defaultNullTTL       = 2 * time.Minute
	defaultLockTTL       = 10 * time.Second
	defaultMutexRetries  = 20
	defaultMutexInterval = 50 * time.Millisecond
)

// envelope 逻辑过期包装：Redis 不设 TTL，新鲜度只看 ExpireTime。
type envelope struct {
	Data       json.RawMessage `json:"data"`
	ExpireTime time.Time       `json:"expireTime"`
}

// Client 旁路缓存客户端。值统一 JSON 编码，空字符串是"数据源不存在"的占位。
type Client struct {
	rdb       rd.Cmdable
	scheduler *Scheduler
	sf        singleflight.Group
	log       *zap.Logger
	now       func() time.Time

	nullTTL       time.Duration
	lockTTL       time.Duration
	mutexRetries  int
	mutexInterval time.Duration
}

// Option 定制 Client。
type Option func(*Client)

// WithNullTTL 空值占位的过期时间。
func WithNullTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.nullTTL = ttl
		}
	}
}

// WithLockTTL 重建锁的过期时间。
func WithLockTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.lockTTL = ttl
		}
	}
}

// WithMutexRetry 互斥重建拿不到锁时的重试次数和间隔。
func WithMutexRetry(retries int, interval time.Duration) Option {
	return func(c *Client) {
		if retries > 0 {
			c.mutexRetries = retries
		}
		if interval > 0 {
			c.mutexInterval = interval
		}
	}
}

// WithNow 替换逻辑过期判断用的时钟。
func WithNow(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient scheduler 只在逻辑过期读取时使用，可以为 nil。
func NewClient(rdb rd.Cmdable, scheduler *Scheduler, opts ...Option) *Client {
	c := &Client{
		rdb:           rdb,
		scheduler:     scheduler,
		log:           logger.WithModule("cache"),
		now:           time.Now,
		nullTTL:       defaultNullTTL,
		lockTTL:       defaultLockTTL,
		mutexRetries:  defaultMutexRetries,
		mutexInterval: defaultMutexInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set 编码后写入并设置 TTL。
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.rdb.Set(ctx, key, b, ttl).Err()
}

// SetWithLogicalExpire 写入逻辑过期包装，Redis 层永不过期。
func (c *Client) SetWithLogicalExpire(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	b, err := json.Marshal(envelope{Data: data, ExpireTime: c.now().Add(ttl)})
	if err != nil {
		return fmt.Errorf("encode envelope %s: %w", key, err)
	}
	return c.rdb.Set(ctx, key, b, 0).Err()
}

// Delete 数据源更新后删除缓存。
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// get 区分三种情况：未命中(found=false)、空值占位(found=true,"")、正常值。
func (c *Client) get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, rd.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return val, true, nil
}

func (c *Client) setNull(ctx context.Context, key string) error {
	return c.rdb.Set(ctx, key, "", c.nullTTL).Err()
}

func (c *Client) readEnvelope(ctx context.Context, key string) (envelope, bool, error) {
	val, found, err := c.get(ctx, key)
	if err != nil || !found || val == "" {
		return envelope{}, false, err
	}
	var env envelope
	if err := json.Unmarshal([]byte(val), &env); err != nil {
		return envelope{}, false, fmt.Errorf("decode envelope %s: %w", key, err)
	}
	// 普通缓存值（没有 data/expireTime）按未预热处理
	if len(env.Data) == 0 || env.ExpireTime.IsZero() {
		return envelope{}, false, nil
	}
	return env, true, nil
}

// isEnvelope 判断值是否为逻辑过期包装，普通读取遇到它按未命中处理。
func isEnvelope(val string) bool {
	if !strings.Contains(val, `"expireTime"`) {
		return false
	}
	var probe struct {
		Data       json.RawMessage `json:"data"`
		ExpireTime *time.Time      `json:"expireTime"`
	}
	return json.Unmarshal([]byte(val), &probe) == nil && probe.Data != nil && probe.ExpireTime != nil
}
