package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"seckill/pkg/logger"
)

// Relay 将 Redis Stream 中的订单事件异步转发到 Kafka。
// 语义：发布成功后才 ACK Stream，失败则保留消息等待重试。
type Relay struct {
	rdb       rd.Cmdable
	publisher Publisher
	log       *zap.Logger

	stream   string
	group    string
	consumer string
}

func NewRelay(rdb rd.Cmdable, publisher Publisher, stream, group, consumer string) *Relay {
	return &Relay{
		rdb:       rdb,
		publisher: publisher,
		log:       logger.WithModule("order-relay"),
		stream:    stream,
		group:     group,
		consumer:  consumer,
	}
}

func (r *Relay) Run(ctx context.Context) {
	if err := r.ensureGroup(ctx); err != nil {
		r.log.Error("relay ensure group", zap.Error(err))
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.drainOnce(ctx, 2*time.Second); err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			r.log.Warn("relay drain", zap.Error(err))
			time.Sleep(300 * time.Millisecond)
		}
	}
}

// drainOnce 先处理当前消费者的历史 pending，没有再阻塞读新消息，返回成功转发的条数。
func (r *Relay) drainOnce(ctx context.Context, block time.Duration) (int, error) {
	msgs, err := r.readGroup(ctx, "0", 0)
	if err != nil {
		return 0, fmt.Errorf("read pending: %w", err)
	}
	if len(msgs) == 0 {
		msgs, err = r.readGroup(ctx, ">", block)
		if err != nil {
			return 0, fmt.Errorf("read new: %w", err)
		}
	}

	done := 0
	for _, xm := range msgs {
		if err := r.processOne(ctx, xm); err != nil {
			// 发布失败不 ACK，消息会继续保留用于重试。
			return done, fmt.Errorf("process message id=%s: %w", xm.ID, err)
		}
		done++
	}
	return done, nil
}

func (r *Relay) ensureGroup(ctx context.Context) error {
	err := r.rdb.XGroupCreateMkStream(ctx, r.stream, r.group, "0").Err()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

func (r *Relay) readGroup(ctx context.Context, streamID string, block time.Duration) ([]rd.XMessage, error) {
	if block == 0 {
		block = -1 // 不阻塞
	}
	streams, err := r.rdb.XReadGroup(ctx, &rd.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{r.stream, streamID},
		Count:    16,
		Block:    block,
		NoAck:    false,
	}).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]rd.XMessage, 0, 16)
	for _, s := range streams {
		out = append(out, s.Messages...)
	}
	return out, nil
}

func (r *Relay) processOne(ctx context.Context, xm rd.XMessage) error {
	msg, err := parseOrderEvent(xm.Values)
	if err != nil {
		// 脏消息直接 ACK 丢弃，避免阻塞队列。
		r.log.Warn("relay drop malformed event", zap.String("id", xm.ID), zap.Error(err))
		if ackErr := r.ackAndDelete(ctx, xm.ID); ackErr != nil {
			return fmt.Errorf("parse failed: %v, ack failed: %w", err, ackErr)
		}
		return nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.publisher.Publish(pubCtx, msg); err != nil {
		return err
	}
	return r.ackAndDelete(ctx, xm.ID)
}

func (r *Relay) ackAndDelete(ctx context.Context, id string) error {
	pipe := r.rdb.TxPipeline()
	pipe.XAck(ctx, r.stream, r.group, id)
	pipe.XDel(ctx, r.stream, id)
	_, err := pipe.Exec(ctx)
	return err
}

func parseOrderEvent(values map[string]interface{}) (OrderMessage, error) {
	orderStr, err := getStreamString(values, "order_id")
	if err != nil {
		return OrderMessage{}, err
	}
	userStr, err := getStreamString(values, "user_id")
	if err != nil {
		return OrderMessage{}, err
	}
	voucherStr, err := getStreamString(values, "voucher_id")
	if err != nil {
		return OrderMessage{}, err
	}

	orderID, err := strconv.ParseInt(orderStr, 10, 64)
	if err != nil {
		return OrderMessage{}, fmt.Errorf("invalid order_id %q", orderStr)
	}
	userID, err := strconv.ParseInt(userStr, 10, 64)
	if err != nil {
		return OrderMessage{}, fmt.Errorf("invalid user_id %q", userStr)
	}
	voucherID, err := strconv.ParseUint(voucherStr, 10, 64)
	if err != nil {
		return OrderMessage{}, fmt.Errorf("invalid voucher_id %q", voucherStr)
	}

	msg := OrderMessage{
		OrderID:   orderID,
		UserID:    userID,
		VoucherID: uint(voucherID),
	}
	if err := msg.Validate(); err != nil {
		return OrderMessage{}, err
	}
	return msg, nil
}

func getStreamString(values map[string]interface{}, key string) (string, error) {
	v, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing field %s", key)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float64:
		return strconv.FormatInt(int64(x), 10), nil
	default:
		return "", fmt.Errorf("unsupported field type %s: %T", key, v)
	}
}
