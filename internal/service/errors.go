package service

import "errors"

var (
	// ErrInvalidPhone 手机号格式错误。
	ErrInvalidPhone = errors.New("手机号格式错误")
	// ErrInvalidCode 验证码错误或已过期。
	ErrInvalidCode = errors.New("验证码错误")
	// ErrShopIDRequired 更新店铺时缺少 id。
	ErrShopIDRequired = errors.New("店铺id不能为空")
	// ErrInvalidSaleWindow 秒杀结束时间不晚于开始时间。
	ErrInvalidSaleWindow = errors.New("end_time 必须晚于 begin_time")
	// ErrInvalidStock 库存不能为负。
	ErrInvalidStock = errors.New("库存不能为负数")
)
