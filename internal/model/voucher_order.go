package model

import (
	"time"
)

// VoucherOrder 秒杀订单。ID 由 IDWorker 生成，不走自增。
// (user_id, voucher_id) 上没有唯一约束，一人一单靠事务内查询 + 用户锁保证。
type VoucherOrder struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID    int64 `gorm:"not null;index:idx_user_voucher" json:"user_id"`
	VoucherID uint  `gorm:"not null;index:idx_user_voucher" json:"voucher_id"`
	PayType   int   `gorm:"not null;default:1" json:"pay_type"` // 1 余额 2 支付宝 3 微信
	Status    int   `gorm:"not null;default:1" json:"status"`   // 1 未支付 2 已支付 3 已核销 4 已取消
}

func (VoucherOrder) TableName() string { return "voucher_orders" }
