package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"seckill/pkg/logger"
	rediskey "seckill/pkg/redis"
)

// luaRateLimit：Redis 滑动窗口限流 Lua 脚本（原子操作）
// KEYS[1]=限流key，ARGV[1]=当前时间(毫秒)，ARGV[2]=窗口开始时间(毫秒)，ARGV[3]=窗口毫秒数
// ARGV[4]=本次请求的成员，ARGV[5]=窗口内上限
// 返回：当前窗口内的请求数（超限返回 -1）
var luaRateLimit = rd.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local windowMs = tonumber(ARGV[3])
local member = ARGV[4]

-- 删除窗口外的旧记录
redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)

local count = redis.call('ZCARD', key)
if count < tonumber(ARGV[5]) then
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, windowMs)
  return count + 1
end
return -1
`)

// RedisRateLimit Redis 分布式滑动窗口限流。
// 已登录按用户限流，未登录按 IP 降级，需要挂在 RefreshToken 之后。
func RedisRateLimit(rdb rd.Cmdable, limit int, window time.Duration) gin.HandlerFunc {
	log := logger.WithModule("ratelimit")
	return func(c *gin.Context) {
		var key string
		if user := CurrentUser(c); user != nil {
			key = rediskey.RateLimitUserKey(user.ID)
		} else {
			key = rediskey.RateLimitIPKey(c.ClientIP())
		}

		now := time.Now()
		nowMs := now.UnixMilli()
		windowMs := window.Milliseconds()
		member := fmt.Sprintf("%d-%d", nowMs, now.UnixNano())

		res, err := luaRateLimit.Run(c.Request.Context(), rdb, []string{key},
			nowMs, nowMs-windowMs, windowMs, member, limit).Int()
		if err != nil {
			// Redis 出错时放行（降级策略）
			log.Warn("rate limit check failed", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		if res < 0 {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": 429,
				"msg":  "请求过于频繁，请稍后再试",
			})
			return
		}
		c.Next()
	}
}
