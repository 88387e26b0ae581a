package model

import (
	"time"
)

// Voucher 秒杀券：库存、秒杀时间段
type Voucher struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ShopID      uint   `gorm:"not null;index" json:"shop_id"`
	Title       string `gorm:"size:255;not null" json:"title"`
	SubTitle    string `gorm:"size:255" json:"sub_title"`
	Rules       string `gorm:"size:1024" json:"rules"`
	PayValue    int64  `gorm:"not null" json:"pay_value"`    // 支付金额，单位分
	ActualValue int64  `gorm:"not null" json:"actual_value"` // 抵扣金额，单位分
	Status      int    `gorm:"not null;default:1" json:"status"`

	// Stock 只允许通过 stock = stock - 1 WHERE stock > 0 扣减
	Stock     int64     `gorm:"not null;default:0" json:"stock"`
	BeginTime time.Time `gorm:"not null" json:"begin_time"`
	EndTime   time.Time `gorm:"not null" json:"end_time"`
}

func (Voucher) TableName() string { return "vouchers" }
