package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"seckill/internal/model"
	"seckill/internal/queue"
	"seckill/pkg/logger"
	"seckill/pkg/metrics"
	rediskey "seckill/pkg/redis"
)

// SeckillStatus 秒杀请求的终态。
type SeckillStatus string

const (
	SeckillSuccess           SeckillStatus = "success"
	SeckillVoucherNotFound   SeckillStatus = "not_found"
	SeckillNotStarted        SeckillStatus = "not_started"
	SeckillEnded             SeckillStatus = "ended"
	SeckillSoldOut           SeckillStatus = "sold_out"
	SeckillDuplicateInflight SeckillStatus = "duplicate_inflight"
	SeckillAlreadyPurchased  SeckillStatus = "already_purchased"
)

var seckillReasons = map[SeckillStatus]string{
	SeckillVoucherNotFound:   "优惠券不存在",
	SeckillNotStarted:        "秒杀尚未开始!",
	SeckillEnded:             "秒杀已结束!",
	SeckillSoldOut:           "库存不足!",
	SeckillDuplicateInflight: "不允许重复下单",
	SeckillAlreadyPurchased:  "用户已经购买过一次!",
}

// SeckillResult 业务结果。业务拒绝不是 error，只有基础设施故障才返回 error。
type SeckillResult struct {
	Status  SeckillStatus `json:"status"`
	OrderID int64         `json:"order_id,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

// OK 是否下单成功。
func (r SeckillResult) OK() bool { return r.Status == SeckillSuccess }

func reject(status SeckillStatus) SeckillResult {
	return SeckillResult{Status: status, Reason: seckillReasons[status]}
}

// OrderEventPublisher 订单提交后的事件出口（Redis Stream outbox）。
type OrderEventPublisher interface {
	Append(ctx context.Context, msg queue.OrderMessage) error
}

// IDGenerator 订单号生成器。
type IDGenerator interface {
	NextID(ctx context.Context, prefix string) (int64, error)
}

// VoucherOrderService 秒杀下单：准入校验 -> 用户锁 -> 事务内一人一单 + 乐观扣库存 -> 建单。
type VoucherOrderService struct {
	db        *gorm.DB
	rdb       rd.Cmdable
	ids       IDGenerator
	publisher OrderEventPublisher
	lockTTL   time.Duration
	now       func() time.Time
	log       *zap.Logger
}

// NewVoucherOrderService publisher 为 nil 时不发订单事件。
func NewVoucherOrderService(db *gorm.DB, rdb rd.Cmdable, ids IDGenerator, publisher OrderEventPublisher, lockTTL time.Duration) *VoucherOrderService {
	return &VoucherOrderService{
		db:        db,
		rdb:       rdb,
		ids:       ids,
		publisher: publisher,
		lockTTL:   lockTTL,
		now:       time.Now,
		log:       logger.WithModule("seckill"),
	}
}

// SeckillVoucher 秒杀下单入口。
// 关键流程：
// 1. 查券，校验秒杀时间段与库存
// 2. 以用户为粒度加分布式锁，同一用户的并发请求只放行一个
// 3. 事务内建单；事务提交后才释放锁
func (s *VoucherOrderService) SeckillVoucher(ctx context.Context, voucherID uint, userID int64) (res SeckillResult, err error) {
	start := time.Now()
	defer func() {
		status := string(res.Status)
		if err != nil {
			status = "error"
		}
		metrics.SeckillResults.WithLabelValues(status).Inc()
		metrics.SeckillLatency.Observe(time.Since(start).Seconds())
	}()

	// 1. 查询优惠券
	var voucher model.Voucher
	if err := s.db.WithContext(ctx).First(&voucher, voucherID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return reject(SeckillVoucherNotFound), nil
		}
		return SeckillResult{}, fmt.Errorf("query voucher %d: %w", voucherID, err)
	}

	// 2. 判断秒杀时间段和库存
	now := s.now()
	if now.Before(voucher.BeginTime) {
		return reject(SeckillNotStarted), nil
	}
	if now.After(voucher.EndTime) {
		return reject(SeckillEnded), nil
	}
	if voucher.Stock < 1 {
		return reject(SeckillSoldOut), nil
	}

	// 3. 一人一把锁，集群内有效
	lock := rediskey.NewSimpleLock(s.rdb, rediskey.OrderLock(userID))
	ok, err := lock.TryLock(ctx, s.lockTTL)
	if err != nil {
		return SeckillResult{}, fmt.Errorf("lock order user %d: %w", userID, err)
	}
	if !ok {
		return reject(SeckillDuplicateInflight), nil
	}
	// createVoucherOrder 返回时事务已提交（或已回滚），解锁一定排在提交之后
	defer func() {
		if _, uerr := lock.Unlock(context.WithoutCancel(ctx)); uerr != nil {
			s.log.Warn("release order lock failed", zap.Int64("user_id", userID), zap.Error(uerr))
		}
	}()

	res, err = s.createVoucherOrder(ctx, voucherID, userID)
	if err != nil {
		return SeckillResult{}, err
	}
	if res.OK() {
		s.publishCreated(ctx, res.OrderID, userID, voucherID)
	}
	return res, nil
}

// createVoucherOrder 在一个事务里完成：一人一单检查、乐观扣减库存、生成订单号、写订单。
// 返回时事务已经结束。
func (s *VoucherOrderService) createVoucherOrder(ctx context.Context, voucherID uint, userID int64) (SeckillResult, error) {
	var result SeckillResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 一人一单
		var count int64
		if err := tx.Model(&model.VoucherOrder{}).
			Where("user_id = ? AND voucher_id = ?", userID, voucherID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			result = reject(SeckillAlreadyPurchased)
			return nil
		}

		// 2. 扣减库存，stock > 0 由存储引擎原子判断
		upd := tx.Model(&model.Voucher{}).
			Where("id = ? AND stock > 0", voucherID).
			UpdateColumn("stock", gorm.Expr("stock - 1"))
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			result = reject(SeckillSoldOut)
			return nil
		}

		// 3. 生成订单号并建单；失败时整个事务回滚，库存恢复
		orderID, err := s.ids.NextID(ctx, "order")
		if err != nil {
			return err
		}
		order := &model.VoucherOrder{
			ID:        orderID,
			UserID:    userID,
			VoucherID: voucherID,
		}
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		result = SeckillResult{Status: SeckillSuccess, OrderID: orderID}
		return nil
	})
	if err != nil {
		return SeckillResult{}, fmt.Errorf("create voucher order: %w", err)
	}
	return result, nil
}

// publishCreated 订单已落库，事件写失败只记日志。
func (s *VoucherOrderService) publishCreated(ctx context.Context, orderID, userID int64, voucherID uint) {
	if s.publisher == nil {
		return
	}
	msg := queue.OrderMessage{OrderID: orderID, UserID: userID, VoucherID: voucherID}
	if err := s.publisher.Append(ctx, msg); err != nil {
		s.log.Warn("append order event failed", zap.Int64("order_id", orderID), zap.Error(err))
	}
}
