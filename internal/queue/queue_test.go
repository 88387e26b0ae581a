package queue

import (
	"context"
	"errors"
	"sync"
	"testing"

	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"seckill/internal/database/testutil"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []OrderMessage
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, msg OrderMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

type fakeInvalidator struct {
	keys []string
}

func (f *fakeInvalidator) Delete(_ context.Context, keys ...string) error {
	f.keys = append(f.keys, keys...)
	return nil
}

func TestOrderMessageValidate(t *testing.T) {
	require.NoError(t, OrderMessage{OrderID: 1, UserID: 2, VoucherID: 3}.Validate())
	require.Error(t, OrderMessage{UserID: 2, VoucherID: 3}.Validate())
	require.Error(t, OrderMessage{OrderID: 1, VoucherID: 3}.Validate())
	require.Error(t, OrderMessage{OrderID: 1, UserID: 2}.Validate())
}

func TestOutboxRejectsInvalidMessage(t *testing.T) {
	_, rdb := testutil.MustStartRedis(t)
	require.Error(t, NewOutbox(rdb, "events").Append(context.Background(), OrderMessage{}))
}

func TestRelayForwardsAndAcks(t *testing.T) {
	_, rdb := testutil.MustStartRedis(t)
	ctx := context.Background()
	outbox := NewOutbox(rdb, "events")
	pub := &fakePublisher{}
	relay := NewRelay(rdb, pub, "events", "relay", "relay-1")
	require.NoError(t, relay.ensureGroup(ctx))
	require.NoError(t, relay.ensureGroup(ctx))

	require.NoError(t, outbox.Append(ctx, OrderMessage{OrderID: 10, UserID: 1, VoucherID: 5}))
	require.NoError(t, rdb.XAdd(ctx, &rd.XAddArgs{Stream: "events", Values: map[string]interface{}{"order_id": "x"}}).Err())
	require.NoError(t, outbox.Append(ctx, OrderMessage{OrderID: 11, UserID: 2, VoucherID: 5}))

	n, err := relay.drainOnce(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	require.Len(t, pub.msgs, 2)
	require.Equal(t, int64(10), pub.msgs[0].OrderID)
	require.Equal(t, int64(11), pub.msgs[1].OrderID)

	length, err := rdb.XLen(ctx, "events").Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), length)
}

func TestRelayKeepsMessagesWhenPublishFails(t *testing.T) {
	_, rdb := testutil.MustStartRedis(t)
	ctx := context.Background()
	pub := &fakePublisher{err: errors.New("kafka down")}
	relay := NewRelay(rdb, pub, "events", "relay", "relay-1")
	require.NoError(t, relay.ensureGroup(ctx))
	require.NoError(t, NewOutbox(rdb, "events").Append(ctx, OrderMessage{OrderID: 10, UserID: 1, VoucherID: 5}))

	_, err := relay.drainOnce(ctx, 0)
	require.Error(t, err)

	length, err := rdb.XLen(ctx, "events").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), length)

	// 恢复后从 pending 里重新投递
	pub.err = nil
	n, err := relay.drainOnce(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, pub.msgs, 1)
}

func TestParseOrderEvent(t *testing.T) {
	msg, err := parseOrderEvent(map[string]interface{}{
		"order_id":   "123",
		"user_id":    int64(7),
		"voucher_id": []byte("9"),
	})
	require.NoError(t, err)
	require.Equal(t, OrderMessage{OrderID: 123, UserID: 7, VoucherID: 9}, msg)

	_, err = parseOrderEvent(map[string]interface{}{"order_id": "1", "user_id": "2"})
	require.ErrorContains(t, err, "voucher_id")

	_, err = parseOrderEvent(map[string]interface{}{"order_id": "a", "user_id": "2", "voucher_id": "3"})
	require.ErrorContains(t, err, "order_id")
}

func TestConsumerHandleInvalidatesVoucherCache(t *testing.T) {
	inv := &fakeInvalidator{}
	c := &Consumer{cache: inv}

	require.NoError(t, c.handle(context.Background(), []byte(`{"order_id":1,"user_id":2,"voucher_id":3}`)))
	require.Equal(t, []string{"cache:voucher:3"}, inv.keys)

	require.Error(t, c.handle(context.Background(), []byte(`not json`)))
	require.Error(t, c.handle(context.Background(), []byte(`{"order_id":1}`)))
	require.Len(t, inv.keys, 1)
}
