package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

// luaUnlockIfMatch 仅当锁值等于持有者令牌时才删除，避免误删别人在 TTL 过期后拿到的锁。
const luaUnlockIfMatch = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

// SimpleLock 基于 SET NX PX 的分布式互斥锁。
// 一个 SimpleLock 实例代表一次加锁尝试，令牌在创建时生成。
type SimpleLock struct {
	rdb   rd.Cmdable
	name  string
	token string
}

// NewSimpleLock 创建名为 name 的锁，实际键为 lock:{name}。
func NewSimpleLock(rdb rd.Cmdable, name string) *SimpleLock {
	return &SimpleLock{
		rdb:   rdb,
		name:  name,
		token: strings.ReplaceAll(uuid.NewString(), "-", ""),
	}
}

// Key 锁在 Redis 中的键。
func (l *SimpleLock) Key() string { return LockKey(l.name) }

// Token 持有者令牌。
func (l *SimpleLock) Token() string { return l.token }

// TryLock 非阻塞加锁。锁已被占用返回 false, nil；只有 Redis 故障才返回 error。
func (l *SimpleLock) TryLock(ctx context.Context, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, errors.New("lock ttl must be > 0")
	}
	return l.rdb.SetNX(ctx, l.Key(), l.token, ttl).Result()
}

// Unlock 比较令牌后删除。返回 false 表示锁已过期或已被他人持有。
func (l *SimpleLock) Unlock(ctx context.Context) (bool, error) {
	n, err := l.rdb.Eval(ctx, luaUnlockIfMatch, []string{l.Key()}, l.token).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
