package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"seckill/pkg/logger"
)

// ShopWarmer 把店铺以逻辑过期形式写入缓存。
type ShopWarmer interface {
	SaveShop2Redis(ctx context.Context, id uint, ttl time.Duration) error
}

// Warmer 定时预热热点店铺。逻辑过期缓存未命中不会回源，热点 key 必须提前写入。
type Warmer struct {
	shops    ShopWarmer
	ids      []uint
	ttl      time.Duration
	schedule string
	timeout  time.Duration

	cron *cron.Cron
	log  *zap.Logger
}

func NewWarmer(shops ShopWarmer, ids []uint, ttl time.Duration, schedule string) *Warmer {
	return &Warmer{
		shops:    shops,
		ids:      ids,
		ttl:      ttl,
		schedule: schedule,
		timeout:  30 * time.Second,
		log:      logger.WithModule("warmup"),
	}
}

// RunOnce 预热所有配置的店铺，单个失败不影响其余店铺。
func (w *Warmer) RunOnce(ctx context.Context) error {
	var errs error
	for _, id := range w.ids {
		if err := w.shops.SaveShop2Redis(ctx, id, w.ttl); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("warm shop %d: %w", id, err))
		}
	}
	if errs != nil {
		w.log.Warn("warm up finished with errors", zap.Error(errs))
	} else {
		w.log.Debug("warm up finished", zap.Int("shops", len(w.ids)))
	}
	return errs
}

// Start 按 schedule 周期执行；没有配置店铺时什么都不做。
func (w *Warmer) Start() error {
	if len(w.ids) == 0 {
		return nil
	}
	if w.cron != nil {
		return errors.New("warmer already started")
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(w.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		_ = w.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("warmup schedule %q: %w", w.schedule, err)
	}
	w.cron = c
	c.Start()
	return nil
}

// Stop 停止调度并等待正在执行的预热结束。
func (w *Warmer) Stop() {
	if w.cron == nil {
		return
	}
	<-w.cron.Stop().Done()
	w.cron = nil
}
