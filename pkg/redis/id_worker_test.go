package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDWorkerStrictlyIncreasing(t *testing.T) {
	_, rdb := newTestRedis(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewIDWorker(rdb).WithNow(func() time.Time { return now })
	ctx := context.Background()

	var prev int64
	for i := 0; i < 100; i++ {
		id, err := w.NextID(ctx, "order")
		require.NoError(t, err)
		require.Greater(t, id, prev)
		prev = id
	}

	require.Equal(t, now.Unix()-beginTimestamp, prev>>countBits)
	require.Equal(t, int64(100), prev&(1<<countBits-1))
}

func TestIDWorkerUniqueUnderConcurrency(t *testing.T) {
	_, rdb := newTestRedis(t)
	w := NewIDWorker(rdb)
	ctx := context.Background()

	const n = 300
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := w.NextID(ctx, "order")
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]struct{}, n)
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
	require.Len(t, seen, n)
}

func TestIDWorkerDailyCounterKeys(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	day1 := time.Date(2026, 3, 1, 23, 59, 59, 0, time.UTC)
	day2 := day1.Add(2 * time.Second)

	id1, err := NewIDWorker(rdb).WithNow(func() time.Time { return day1 }).NextID(ctx, "order")
	require.NoError(t, err)
	id2, err := NewIDWorker(rdb).WithNow(func() time.Time { return day2 }).NextID(ctx, "order")
	require.NoError(t, err)

	// 两天的计数器都从 1 开始，但时间戳不同，ID 不会冲突
	require.Equal(t, int64(1), id1&(1<<countBits-1))
	require.Equal(t, int64(1), id2&(1<<countBits-1))
	require.NotEqual(t, id1, id2)
	require.Greater(t, id2, id1)

	require.True(t, mr.Exists("icr:order:2026:03:01"))
	require.True(t, mr.Exists("icr:order:2026:03:02"))
	require.Greater(t, mr.TTL("icr:order:2026:03:01"), time.Duration(0))
}

func TestIDWorkerPrefixesDoNotShareCounters(t *testing.T) {
	mr, rdb := newTestRedis(t)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	w := NewIDWorker(rdb).WithNow(func() time.Time { return now })
	ctx := context.Background()

	_, err := w.NextID(ctx, "order")
	require.NoError(t, err)
	_, err = w.NextID(ctx, "order")
	require.NoError(t, err)
	_, err = w.NextID(ctx, "refund")
	require.NoError(t, err)

	v, err := mr.Get("icr:order:2026:03:01")
	require.NoError(t, err)
	require.Equal(t, "2", v)
	v, err = mr.Get("icr:refund:2026:03:01")
	require.NoError(t, err)
	require.Equal(t, "1", v)
}
