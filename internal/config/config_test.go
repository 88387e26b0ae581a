package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "passthrough", cfg.Cache.ShopStrategy)
	require.Equal(t, 30*time.Minute, cfg.Cache.ShopTTL)
	require.Equal(t, 2*time.Minute, cfg.Cache.NullTTL)
	require.Equal(t, 10*time.Second, cfg.Cache.LockTTL)
	require.Equal(t, 5*time.Second, cfg.Seckill.OrderLockTTL)
	require.Equal(t, 600*time.Minute, cfg.Login.TokenTTL)
	require.Equal(t, 10, cfg.Cache.RebuildWorkers)
	require.False(t, cfg.Kafka.Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SECKILL_CACHE_NULL_TTL", "30s")
	t.Setenv("SECKILL_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("SECKILL_SECKILL_RATE_LIMIT", "5")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 30*time.Second, cfg.Cache.NullTTL)
	require.Len(t, cfg.Kafka.Brokers, 2)
	require.Equal(t, 5, cfg.Seckill.RateLimit)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("SECKILL_CACHE_REBUILD_WORKERS", "0")

	_, err := Load(t.TempDir())
	require.ErrorContains(t, err, "cache.rebuild_workers")
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	cfg.Database.Driver = "oracle"
	require.ErrorContains(t, cfg.Validate(), "oracle")
}

func TestLoadShopStrategy(t *testing.T) {
	t.Setenv("SECKILL_CACHE_SHOP_STRATEGY", "logical")
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "logical", cfg.Cache.ShopStrategy)

	t.Setenv("SECKILL_CACHE_SHOP_STRATEGY", "random")
	_, err = Load(t.TempDir())
	require.ErrorContains(t, err, "cache.shop_strategy")
}
