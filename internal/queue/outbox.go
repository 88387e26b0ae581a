package queue

import (
	"context"
	"strconv"

	rd "github.com/redis/go-redis/v9"
)

// Outbox 把订单事件写入 Redis Stream，由 Relay 异步转发到 Kafka。
type Outbox struct {
	rdb    rd.Cmdable
	stream string
}

func NewOutbox(rdb rd.Cmdable, stream string) *Outbox {
	return &Outbox{rdb: rdb, stream: stream}
}

// Append 追加一条事件。
func (o *Outbox) Append(ctx context.Context, msg OrderMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	return o.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: o.stream,
		Values: map[string]interface{}{
			"order_id":   strconv.FormatInt(msg.OrderID, 10),
			"user_id":    strconv.FormatInt(msg.UserID, 10),
			"voucher_id": strconv.FormatUint(uint64(msg.VoucherID), 10),
		},
	}).Err()
}
