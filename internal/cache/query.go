package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"seckill/pkg/metrics"
	rediskey "seckill/pkg/redis"
)

// QueryWithPassThrough 缓存空值解决缓存穿透。
// fallback 返回 nil, nil 表示数据源中不存在。
func QueryWithPassThrough[T any, ID any](
	ctx context.Context, c *Client, keyPrefix string, id ID,
	fallback func(context.Context, ID) (*T, error), ttl time.Duration,
) (*T, error) {
	key := keyPrefix + fmt.Sprint(id)

	// 1. 查缓存
	if v, done, err := lookup[T](ctx, c, key, "passthrough"); done {
		return v, err
	}

	// 2. 未命中，查数据源并回写
	metrics.CacheLookups.WithLabelValues("passthrough", "miss").Inc()
	return loadAndFill(ctx, c, key, func(ctx context.Context) (*T, error) {
		return fallback(ctx, id)
	}, ttl)
}

// QueryWithMutex 互斥锁解决缓存击穿：只有拿到 lock:{lockPrefix}{id} 的调用方回源，
// 其余调用方按固定间隔重试，超过重试上限返回 ErrLockTimeout。
// 同进程内的并发请求先经 singleflight 合并。
func QueryWithMutex[T any, ID any](
	ctx context.Context, c *Client, keyPrefix, lockPrefix string, id ID,
	fallback func(context.Context, ID) (*T, error), ttl time.Duration,
) (*T, error) {
	key := keyPrefix + fmt.Sprint(id)
	lockName := lockPrefix + fmt.Sprint(id)

	// 合并后的调用不跟随任何一个调用方取消，由重试上限兜底；
	// 每个调用方只按自己的 ctx 决定何时放弃等待
	ch := c.sf.DoChan(key, func() (any, error) {
		return queryWithMutex(context.WithoutCancel(ctx), c, key, lockName, func(ctx context.Context) (*T, error) {
			return fallback(ctx, id)
		}, ttl)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		// 共享结果做一次浅拷贝，调用方之间互不影响
		out := *r.Val.(*T)
		return &out, nil
	}
}

func queryWithMutex[T any](
	ctx context.Context, c *Client, key, lockName string,
	load func(context.Context) (*T, error), ttl time.Duration,
) (*T, error) {
	for attempt := 0; attempt < c.mutexRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(c.mutexInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		if v, done, err := lookup[T](ctx, c, key, "mutex"); done {
			return v, err
		}

		lock := rediskey.NewSimpleLock(c.rdb, lockName)
		ok, err := lock.TryLock(ctx, c.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("try lock %s: %w", lock.Key(), err)
		}
		if !ok {
			continue
		}
		return rebuildUnderLock(ctx, c, key, lock, load, ttl)
	}
	metrics.CacheLookups.WithLabelValues("mutex", "timeout").Inc()
	return nil, ErrLockTimeout
}

func rebuildUnderLock[T any](
	ctx context.Context, c *Client, key string, lock *rediskey.SimpleLock,
	load func(context.Context) (*T, error), ttl time.Duration,
) (*T, error) {
	defer func() {
		if _, err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			c.log.Warn("release rebuild lock failed", zap.String("key", lock.Key()), zap.Error(err))
		}
	}()

	// 拿到锁后再查一次，前一个持有者可能已经写好了
	if v, done, err := lookup[T](ctx, c, key, "mutex"); done {
		return v, err
	}
	metrics.CacheLookups.WithLabelValues("mutex", "miss").Inc()
	return loadAndFill(ctx, c, key, load, ttl)
}

// QueryWithLogicalExpire 逻辑过期解决缓存击穿。
// 缓存不存在直接返回 ErrNotFound（热点 key 需提前预热）；过期时由拿到锁的调用方
// 提交一个异步重建任务，所有调用方都立即拿到旧值。
func QueryWithLogicalExpire[T any, ID any](
	ctx context.Context, c *Client, keyPrefix, lockPrefix string, id ID,
	fallback func(context.Context, ID) (*T, error), ttl time.Duration,
) (*T, error) {
	key := keyPrefix + fmt.Sprint(id)

	// 1. 查缓存，未命中不回源
	env, found, err := c.readEnvelope(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		metrics.CacheLookups.WithLabelValues("logical", "miss").Inc()
		return nil, ErrNotFound
	}
	stale, err := decodeEnvelope[T](key, env)
	if err != nil {
		return nil, err
	}

	// 2. 未过期直接返回
	if env.ExpireTime.After(c.now()) {
		metrics.CacheLookups.WithLabelValues("logical", "hit").Inc()
		return stale, nil
	}

	// 3. 已过期，抢重建锁；抢不到说明已有人在重建
	metrics.CacheLookups.WithLabelValues("logical", "stale").Inc()
	lock := rediskey.NewSimpleLock(c.rdb, lockPrefix+fmt.Sprint(id))
	ok, err := lock.TryLock(ctx, c.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("try lock %s: %w", lock.Key(), err)
	}
	if !ok {
		return stale, nil
	}

	// 拿到锁后再检查一次，上一轮重建可能刚刚完成
	if fresh, found, err := c.readEnvelope(ctx, key); err == nil && found && fresh.ExpireTime.After(c.now()) {
		c.release(ctx, lock)
		if v, err := decodeEnvelope[T](key, fresh); err == nil {
			return v, nil
		}
		return stale, nil
	}

	task := func(taskCtx context.Context) error {
		return rebuildLogical(taskCtx, c, key, lock, func(ctx context.Context) (*T, error) {
			return fallback(ctx, id)
		}, ttl)
	}
	if c.scheduler == nil {
		c.release(ctx, lock)
		return stale, nil
	}
	if err := c.scheduler.Submit(task); err != nil {
		metrics.CacheRebuilds.WithLabelValues("rejected").Inc()
		c.log.Warn("rebuild task rejected", zap.String("key", key), zap.Error(err))
		c.release(ctx, lock)
		return stale, nil
	}
	metrics.CacheRebuilds.WithLabelValues("submitted").Inc()
	return stale, nil
}

// rebuildLogical 在线程池里执行：回源、写回逻辑过期缓存，无论成败都释放锁。
func rebuildLogical[T any](
	ctx context.Context, c *Client, key string, lock *rediskey.SimpleLock,
	load func(context.Context) (*T, error), ttl time.Duration,
) (err error) {
	defer func() {
		if _, uerr := lock.Unlock(ctx); uerr != nil {
			err = multierr.Append(err, fmt.Errorf("unlock %s: %w", lock.Key(), uerr))
		}
	}()

	v, err := load(ctx)
	if err != nil {
		return fmt.Errorf("rebuild %s: %w", key, err)
	}
	if v == nil {
		// 数据源已删除，去掉缓存，后续读取返回不存在
		return c.Delete(ctx, key)
	}
	return c.SetWithLogicalExpire(ctx, key, v, ttl)
}

// lookup 读普通缓存，逻辑过期包装视为未命中，回源后会被覆盖。done=true 时调用方直接返回 (v, err)。
func lookup[T any](ctx context.Context, c *Client, key, strategy string) (*T, bool, error) {
	val, found, err := c.get(ctx, key)
	if err != nil {
		return nil, true, err
	}
	if !found || isEnvelope(val) {
		return nil, false, nil
	}
	if val == "" {
		metrics.CacheLookups.WithLabelValues(strategy, "null").Inc()
		return nil, true, ErrNotFound
	}
	v := new(T)
	if err := json.Unmarshal([]byte(val), v); err != nil {
		return nil, true, fmt.Errorf("decode %s: %w", key, err)
	}
	metrics.CacheLookups.WithLabelValues(strategy, "hit").Inc()
	return v, true, nil
}

// loadAndFill 回源；不存在写空值占位，存在按 ttl 回写。
func loadAndFill[T any](
	ctx context.Context, c *Client, key string,
	load func(context.Context) (*T, error), ttl time.Duration,
) (*T, error) {
	v, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if v == nil {
		if err := c.setNull(ctx, key); err != nil {
			return nil, fmt.Errorf("cache null %s: %w", key, err)
		}
		return nil, ErrNotFound
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		return nil, fmt.Errorf("cache set %s: %w", key, err)
	}
	return v, nil
}

func decodeEnvelope[T any](key string, env envelope) (*T, error) {
	v := new(T)
	if err := json.Unmarshal(env.Data, v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, nil
}

func (c *Client) release(ctx context.Context, lock *rediskey.SimpleLock) {
	if _, err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
		c.log.Warn("release rebuild lock failed", zap.String("key", lock.Key()), zap.Error(err))
	}
}
