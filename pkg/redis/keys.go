package redis

import "fmt"

// 缓存键前缀，外部巡检工具按这些命名空间查看缓存，不要随意改动。
const (
	CacheShopKey    = "cache:shop:"
	CacheVoucherKey = "cache:voucher:"
	LoginCodeKey    = "login:code:"
	LoginTokenKey   = "login:token:"

	// 锁名前缀，SimpleLock 会再加上 "lock:"
	ShopLockName  = "shop:"
	OrderLockName = "order:"

	lockKeyPrefix = "lock:"
	idKeyPrefix   = "icr:"
)

// LockKey 锁名对应的 Redis 键。
func LockKey(name string) string {
	return lockKeyPrefix + name
}

// ShopCacheKey cache:shop:{id}
func ShopCacheKey(id uint) string {
	return fmt.Sprintf("%s%d", CacheShopKey, id)
}

// VoucherCacheKey cache:voucher:{id}
func VoucherCacheKey(id uint) string {
	return fmt.Sprintf("%s%d", CacheVoucherKey, id)
}

// OrderLock 一人一单锁名，最终键为 lock:order:{userId}
func OrderLock(userID int64) string {
	return fmt.Sprintf("%s%d", OrderLockName, userID)
}

// IDCounterKey icr:{prefix}:{yyyy:MM:dd}
func IDCounterKey(prefix, date string) string {
	return idKeyPrefix + prefix + ":" + date
}

// RateLimitUserKey 按用户限流。
func RateLimitUserKey(userID int64) string {
	return fmt.Sprintf("rate_limit:seckill:user:%d", userID)
}

// RateLimitIPKey 未登录时按 IP 降级限流。
func RateLimitIPKey(ip string) string {
	return "rate_limit:seckill:ip:" + ip
}
