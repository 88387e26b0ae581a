package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"seckill/pkg/logger"
	rediskey "seckill/pkg/redis"
)

// Invalidator 删除缓存键。
type Invalidator interface {
	Delete(ctx context.Context, keys ...string) error
}

// Consumer 消费订单事件，删除对应秒杀券的展示缓存，让库存尽快刷新。
type Consumer struct {
	r     *kafka.Reader
	cache Invalidator
	log   *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, c Invalidator) *Consumer {
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		cache: c,
		log:   logger.WithModule("order-consumer"),
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				c.log.Warn("consumer read", zap.Error(err))
			}
			return // ctx cancel / 连接断开等
		}
		if err := c.handle(ctx, m.Value); err != nil {
			c.log.Warn("consumer handle", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// handle 解析事件并删除券缓存；删除是幂等的，重复消息无副作用。
func (c *Consumer) handle(ctx context.Context, value []byte) error {
	var msg OrderMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.cache.Delete(ctx, rediskey.VoucherCacheKey(msg.VoucherID))
}
