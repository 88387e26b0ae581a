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

// ShopStrategy 店铺读取使用的缓存策略，一个部署只用一种，
// 因为几种策略共用 cache:shop:{id}，存储格式不同。
type ShopStrategy string

const (
	ShopPassThrough   ShopStrategy = "passthrough"
	ShopMutex         ShopStrategy = "mutex"
	ShopLogicalExpire ShopStrategy = "logical"
)

// ParseShopStrategy 空字符串按 passthrough 处理。
func ParseShopStrategy(s string) (ShopStrategy, error) {
	switch ShopStrategy(s) {
	case "", ShopPassThrough:
		return ShopPassThrough, nil
	case ShopMutex, ShopLogicalExpire:
		return ShopStrategy(s), nil
	default:
		return "", fmt.Errorf("unknown shop cache strategy %q", s)
	}
}

// ShopService 店铺查询走缓存，更新先写库再删缓存。
type ShopService struct {
	db         *gorm.DB
	cache      *cache.Client
	strategy   ShopStrategy
	ttl        time.Duration
	logicalTTL time.Duration
	log        *zap.Logger
}

func NewShopService(db *gorm.DB, c *cache.Client, strategy ShopStrategy, ttl, logicalTTL time.Duration) *ShopService {
	if strategy == "" {
		strategy = ShopPassThrough
	}
	return &ShopService{
		db:         db,
		cache:      c,
		strategy:   strategy,
		ttl:        ttl,
		logicalTTL: logicalTTL,
		log:        logger.WithModule("shop"),
	}
}

// Strategy 当前部署使用的读取策略。
func (s *ShopService) Strategy() ShopStrategy { return s.strategy }

// Query 按部署配置的策略读取店铺。
func (s *ShopService) Query(ctx context.Context, id uint) (*model.Shop, error) {
	switch s.strategy {
	case ShopMutex:
		return s.QueryByIDWithMutex(ctx, id)
	case ShopLogicalExpire:
		return s.QueryByIDWithLogicalExpire(ctx, id)
	default:
		return s.QueryByID(ctx, id)
	}
}

// getByID 回源函数，不存在返回 nil, nil。
func (s *ShopService) getByID(ctx context.Context, id uint) (*model.Shop, error) {
	var shop model.Shop
	err := s.db.WithContext(ctx).First(&shop, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query shop %d: %w", id, err)
	}
	return &shop, nil
}

// QueryByID 缓存空值防穿透。
func (s *ShopService) QueryByID(ctx context.Context, id uint) (*model.Shop, error) {
	return cache.QueryWithPassThrough(ctx, s.cache, rediskey.CacheShopKey, id, s.getByID, s.ttl)
}

// QueryByIDWithMutex 互斥锁防击穿。
func (s *ShopService) QueryByIDWithMutex(ctx context.Context, id uint) (*model.Shop, error) {
	return cache.QueryWithMutex(ctx, s.cache, rediskey.CacheShopKey, rediskey.ShopLockName, id, s.getByID, s.ttl)
}

// QueryByIDWithLogicalExpire 逻辑过期防击穿，需要先 SaveShop2Redis 预热。
func (s *ShopService) QueryByIDWithLogicalExpire(ctx context.Context, id uint) (*model.Shop, error) {
	return cache.QueryWithLogicalExpire(ctx, s.cache, rediskey.CacheShopKey, rediskey.ShopLockName, id, s.getByID, s.logicalTTL)
}

// SaveShop2Redis 把店铺以逻辑过期的形式写入缓存。
func (s *ShopService) SaveShop2Redis(ctx context.Context, id uint, ttl time.Duration) error {
	shop, err := s.getByID(ctx, id)
	if err != nil {
		return err
	}
	if shop == nil {
		return cache.ErrNotFound
	}
	return s.cache.SetWithLogicalExpire(ctx, rediskey.ShopCacheKey(id), shop, ttl)
}

// Create 新增店铺。
func (s *ShopService) Create(ctx context.Context, shop *model.Shop) error {
	if err := s.db.WithContext(ctx).Create(shop).Error; err != nil {
		return fmt.Errorf("create shop: %w", err)
	}
	// 之前可能缓存过"不存在"
	return s.cache.Delete(ctx, rediskey.ShopCacheKey(shop.ID))
}

// Update 先更新数据库，再删除缓存；逻辑过期策略下改为重写缓存。
func (s *ShopService) Update(ctx context.Context, shop *model.Shop) error {
	if shop.ID == 0 {
		return ErrShopIDRequired
	}
	res := s.db.WithContext(ctx).Model(&model.Shop{ID: shop.ID}).Updates(shop)
	if res.Error != nil {
		return fmt.Errorf("update shop %d: %w", shop.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return cache.ErrNotFound
	}
	// 逻辑过期缓存不会回源，删掉后读取只会返回不存在，所以直接重写
	var err error
	if s.strategy == ShopLogicalExpire {
		err = s.SaveShop2Redis(ctx, shop.ID, s.logicalTTL)
	} else {
		err = s.cache.Delete(ctx, rediskey.ShopCacheKey(shop.ID))
	}
	if err != nil {
		s.log.Warn("invalidate shop cache failed", zap.Uint("shop_id", shop.ID), zap.Error(err))
		return fmt.Errorf("invalidate shop %d: %w", shop.ID, err)
	}
	return nil
}
