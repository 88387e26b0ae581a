package model

import (
	"time"
)

// User 手机号登录的用户
type User struct {
	ID        int64     `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Phone    string `gorm:"size:11;uniqueIndex;not null" json:"phone"`
	NickName string `gorm:"size:32" json:"nick_name"`
	Icon     string `gorm:"size:255" json:"icon"`
}

func (User) TableName() string { return "users" }

// UserDTO 存进 login:token 哈希、放进请求上下文的用户信息
type UserDTO struct {
	ID       int64  `json:"id"`
	NickName string `json:"nick_name"`
	Icon     string `json:"icon"`
}

// All 全部需要迁移的表。
func All() []any {
	return []any{&Shop{}, &Voucher{}, &VoucherOrder{}, &User{}}
}
