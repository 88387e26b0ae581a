package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups 按读策略(passthrough|mutex|logical)和结果(hit|null|miss|stale)统计缓存查询。
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seckill_cache_lookups_total",
			Help: "Total number of cache lookups by strategy and result",
		},
		[]string{"strategy", "result"},
	)

	// CacheRebuilds 统计逻辑过期重建任务(submitted|rejected|succeeded|failed)。
	CacheRebuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seckill_cache_rebuilds_total",
			Help: "Total number of logical expiry rebuild tasks",
		},
		[]string{"result"},
	)

	// SeckillResults 统计秒杀请求的终态。
	SeckillResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seckill_results_total",
			Help: "Total number of seckill requests by terminal status",
		},
		[]string{"status"},
	)

	// SeckillLatency 秒杀下单耗时。
	SeckillLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seckill_order_latency_seconds",
			Help:    "Latency of the seckill admission flow",
			Buckets: prometheus.DefBuckets,
		},
	)
)
