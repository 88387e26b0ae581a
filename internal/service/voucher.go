package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"seckill/internal/cache"
	"seckill/internal/model"
	"seckill/pkg/logger"
	rediskey "seckill/pkg/redis"
)

// VoucherService 秒杀券的创建与查询。
type VoucherService struct {
	db    *gorm.DB
	cache *cache.Client
	ttl   time.Duration
	log   *zap.Logger
}

func NewVoucherService(db *gorm.DB, c *cache.Client, ttl time.Duration) *VoucherService {
	return &VoucherService{db: db, cache: c, ttl: ttl, log: logger.WithModule("voucher")}
}

// AddSeckillVoucher 新增秒杀券（含时间窗校验）。
// 入库成功即返回成功，清理旧的空值缓存失败只记日志，空值最多残留 null TTL。
func (s *VoucherService) AddSeckillVoucher(ctx context.Context, v *model.Voucher) error {
	if v.Stock < 0 {
		return ErrInvalidStock
	}
	if !v.EndTime.After(v.BeginTime) {
		return ErrInvalidSaleWindow
	}
	if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
		return fmt.Errorf("create voucher: %w", err)
	}
	if err := s.cache.Delete(ctx, rediskey.VoucherCacheKey(v.ID)); err != nil {
		s.log.Warn("invalidate voucher cache failed", zap.Uint("voucher_id", v.ID), zap.Error(err))
	}
	return nil
}

func (s *VoucherService) getByID(ctx context.Context, id uint) (*model.Voucher, error) {
	var v model.Voucher
	err := s.db.WithContext(ctx).First(&v, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query voucher %d: %w", id, err)
	}
	return &v, nil
}

// QueryByID 展示用的缓存读取，库存以数据库为准。
func (s *VoucherService) QueryByID(ctx context.Context, id uint) (*model.Voucher, error) {
	return cache.QueryWithPassThrough(ctx, s.cache, rediskey.CacheVoucherKey, id, s.getByID, s.ttl)
}
