package redis

import (
	"context"
	"fmt"
	"time"

	rd "github.com/redis/go-redis/v9"
)

const (
	// 2022-01-01T00:00:00Z
	beginTimestamp = int64(1640995200)
	// 序列号位数
	countBits = 32
	// 日计数器保留两天，跨零点的请求还能读到前一天的键
	counterTTL = 48 * time.Hour
)

// IDWorker 全局唯一 ID：31 位秒级时间戳 + 32 位当日序列号。
// 序列号超过 2^32 会溢出到时间戳位，单前缀单日四十亿次以内不处理。
type IDWorker struct {
	rdb rd.Cmdable
	now func() time.Time
}

func NewIDWorker(rdb rd.Cmdable) *IDWorker {
	return &IDWorker{rdb: rdb, now: time.Now}
}

// WithNow 替换时钟，测试用。
func (w *IDWorker) WithNow(now func() time.Time) *IDWorker {
	w.now = now
	return w
}

// NextID 生成 prefix 业务下的下一个 ID。
func (w *IDWorker) NextID(ctx context.Context, prefix string) (int64, error) {
	now := w.now().UTC()
	ts := now.Unix() - beginTimestamp

	// 按天分键：计数器每天重置，也方便按日统计
	key := IDCounterKey(prefix, now.Format("2006:01:02"))
	count, err := w.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	if count == 1 {
		if err := w.rdb.Expire(ctx, key, counterTTL).Err(); err != nil {
			return 0, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return ts<<countBits | count, nil
}
