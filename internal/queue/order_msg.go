package queue

import "fmt"

// OrderMessage 订单创建事件，事务提交后写入 outbox。
type OrderMessage struct {
	OrderID   int64 `json:"order_id"`
	UserID    int64 `json:"user_id"`
	VoucherID uint  `json:"voucher_id"`
}

// Validate 做最小字段校验，防止处理脏消息。
func (m OrderMessage) Validate() error {
	if m.OrderID <= 0 {
		return fmt.Errorf("order_id is required")
	}
	if m.UserID <= 0 {
		return fmt.Errorf("user_id is required")
	}
	if m.VoucherID == 0 {
		return fmt.Errorf("voucher_id is required")
	}
	return nil
}

// Key 作为 Kafka key，同一张券的事件落到同一分区。
func (m OrderMessage) Key() string {
	return fmt.Sprintf("%d", m.VoucherID)
}
