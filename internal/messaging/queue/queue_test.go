package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-dispatch/internal/common/logger"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestPartitionForIsStable(t *testing.T) {
	topic := Topic{Name: "notifications.send", Partitions: 3}

	p1 := topic.PartitionFor("org-123")
	for i := 0; i < 10; i++ {
		assert.Equal(t, p1, topic.PartitionFor("org-123"))
	}
	assert.GreaterOrEqual(t, p1, 0)
	assert.Less(t, p1, 3)
}

func TestPartitionForSinglePartition(t *testing.T) {
	topic := Topic{Name: "notifications.send.dlq", Partitions: 1}
	assert.Equal(t, 0, topic.PartitionFor("anything"))
	assert.Equal(t, 0, topic.PartitionFor(""))
}

func TestPublishCarriesKeyPayloadAndHeaders(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()
	topic := Topic{Name: "notifications.send", Partitions: 3}

	pub := NewPublisher(rdb)
	res, err := pub.Publish(ctx, topic, "org-1", []byte(`{"id":"n-1"}`), map[string]string{
		"correlationId": "c-1",
	})
	require.NoError(t, err)
	assert.Equal(t, topic.PartitionFor("org-1"), res.Partition)

	msgs, err := rdb.XRange(ctx, res.Stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "org-1", msgs[0].Values["key"])
	assert.Equal(t, `{"id":"n-1"}`, msgs[0].Values["payload"])
	assert.Equal(t, "c-1", msgs[0].Values["correlationId"])
}

func TestConsumerDeliversInPublishOrderPerKey(t *testing.T) {
	rdb := setupRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	topic := Topic{Name: "notifications.send", Partitions: 3}
	pub := NewPublisher(rdb)

	const total = 20
	for i := 0; i < total; i++ {
		_, err := pub.Publish(ctx, topic, "org-1", []byte(fmt.Sprintf("seq-%02d", i)), nil)
		require.NoError(t, err)
	}

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})

	consumer := NewConsumer(rdb, topic, "test-group", "worker", logger.NewNoOpLogger())
	go func() {
		_ = consumer.Run(ctx, func(ctx context.Context, d *Delivery) error {
			mu.Lock()
			got = append(got, string(d.Payload))
			n := len(got)
			mu.Unlock()
			if err := d.Ack(ctx); err != nil {
				return err
			}
			if n == total {
				close(done)
			}
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for deliveries")
	}
	cancel()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, total)
	for i := 0; i < total; i++ {
		assert.Equal(t, fmt.Sprintf("seq-%02d", i), got[i])
	}
}

func TestUnackedEntriesAreRedeliveredToSameConsumer(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()

	topic := Topic{Name: "notifications.send", Partitions: 1}
	pub := NewPublisher(rdb)
	_, err := pub.Publish(ctx, topic, "org-1", []byte("once"), nil)
	require.NoError(t, err)

	// First incarnation consumes but does not ack.
	runCtx, cancel := context.WithCancel(ctx)
	seen := make(chan struct{})
	consumer := NewConsumer(rdb, topic, "test-group", "worker", logger.NewNoOpLogger())
	go func() {
		_ = consumer.Run(runCtx, func(ctx context.Context, d *Delivery) error {
			close(seen)
			return nil
		})
	}()
	select {
	case <-seen:
	case <-time.After(5 * time.Second):
		t.Fatal("first delivery never arrived")
	}
	cancel()

	// Second incarnation drains the pending entry before new ones.
	runCtx2, cancel2 := context.WithCancel(ctx)
	defer cancel2()
	redelivered := make(chan string, 1)
	consumer2 := NewConsumer(rdb, topic, "test-group", "worker", logger.NewNoOpLogger())
	go func() {
		_ = consumer2.Run(runCtx2, func(ctx context.Context, d *Delivery) error {
			if err := d.Ack(ctx); err != nil {
				return err
			}
			redelivered <- string(d.Payload)
			return nil
		})
	}()

	select {
	case payload := <-redelivered:
		assert.Equal(t, "once", payload)
	case <-time.After(5 * time.Second):
		t.Fatal("pending entry was not redelivered")
	}
}

func TestPublishPropagatesRedisErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	topic := Topic{Name: "notifications.send", Partitions: 1}

	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "notifications.send.p0",
		Values: map[string]interface{}{"key": "org-1", "payload": "x"},
	}).SetErr(fmt.Errorf("broker down"))

	pub := NewPublisher(db)
	res, err := pub.Publish(context.Background(), topic, "org-1", []byte("x"), nil)
	assert.Nil(t, res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notifications.send.p0")
}

func TestKeysSpreadAcrossPartitions(t *testing.T) {
	topic := Topic{Name: "notifications.send", Partitions: 3}

	used := make(map[int]bool)
	for i := 0; i < 100; i++ {
		used[topic.PartitionFor(fmt.Sprintf("org-%d", i))] = true
	}
	// 100 keys over 3 partitions should touch every partition.
	assert.Len(t, used, 3)
}
