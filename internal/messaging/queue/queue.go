// Package queue implements a partitioned, at-least-once message transport on
// Redis Streams. A logical topic is a set of partition streams
// ("<topic>.p<N>"); the publisher hashes the ordering key onto a partition,
// so entries sharing a key are appended to a single stream in publish order.
// Consumers read through consumer groups and acknowledge explicitly, which
// redelivers unacked entries after a crash.
package queue

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"notification-dispatch/internal/common/logger"
)

const (
	fieldKey     = "key"
	fieldPayload = "payload"
)

// Topic names a logical queue spread over a fixed number of partition streams.
type Topic struct {
	Name       string
	Partitions int
}

// Stream returns the Redis stream key for one partition.
func (t Topic) Stream(partition int) string {
	return fmt.Sprintf("%s.p%d", t.Name, partition)
}

// PartitionFor maps an ordering key onto a partition.
func (t Topic) PartitionFor(key string) int {
	if t.Partitions <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(t.Partitions))
}

// PublishResult reports where an entry landed.
type PublishResult struct {
	Stream    string
	Partition int
	MessageID string
}

// Publisher appends entries to partition streams.
type Publisher struct {
	rdb redis.Cmdable
}

func NewPublisher(rdb redis.Cmdable) *Publisher {
	return &Publisher{rdb: rdb}
}

// Publish appends payload to the partition selected by key, carrying headers
// as flat stream fields.
func (p *Publisher) Publish(ctx context.Context, topic Topic, key string, payload []byte, headers map[string]string) (*PublishResult, error) {
	partition := topic.PartitionFor(key)
	stream := topic.Stream(partition)

	values := map[string]interface{}{
		fieldKey:     key,
		fieldPayload: string(payload),
	}
	for k, v := range headers {
		values[k] = v
	}

	id, err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xadd %s: %w", stream, err)
	}

	return &PublishResult{Stream: stream, Partition: partition, MessageID: id}, nil
}

// Delivery is one consumed entry. The handler owns acknowledgment: an entry
// left unacked is redelivered to the next consumer incarnation.
type Delivery struct {
	Topic     string
	Partition int
	MessageID string
	Key       string
	Payload   []byte
	Headers   map[string]string

	ack func(ctx context.Context) error
}

// NewDelivery builds a delivery with an explicit ack callback. Consumers
// construct deliveries internally; this is for synthesizing them elsewhere.
func NewDelivery(topic string, partition int, messageID, key string, payload []byte, headers map[string]string, ack func(ctx context.Context) error) *Delivery {
	if headers == nil {
		headers = make(map[string]string)
	}
	return &Delivery{
		Topic:     topic,
		Partition: partition,
		MessageID: messageID,
		Key:       key,
		Payload:   payload,
		Headers:   headers,
		ack:       ack,
	}
}

// Ack marks the entry as processed.
func (d *Delivery) Ack(ctx context.Context) error {
	return d.ack(ctx)
}

// Handler processes a single delivery. Errors are logged by the consumer;
// redelivery is governed solely by whether the handler acked.
type Handler func(ctx context.Context, d *Delivery) error

// Consumer reads a topic through a consumer group, one goroutine per
// partition so per-key ordering is preserved.
type Consumer struct {
	rdb    redis.Cmdable
	topic  Topic
	group  string
	name   string
	block  time.Duration
	logger logger.Logger
}

func NewConsumer(rdb redis.Cmdable, topic Topic, group, name string, log logger.Logger) *Consumer {
	return &Consumer{
		rdb:    rdb,
		topic:  topic,
		group:  group,
		name:   name,
		block:  time.Second,
		logger: log.WithFields(map[string]interface{}{"topic": topic.Name, "group": group}),
	}
}

// Run consumes until ctx is cancelled. It first drains entries that were
// delivered to a previous incarnation of the same consumer but never acked,
// then follows new entries.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	if err := c.ensureGroups(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	for partition := 0; partition < c.topic.Partitions; partition++ {
		wg.Add(1)
		go func(partition int) {
			defer wg.Done()
			c.consumePartition(ctx, partition, handler)
		}(partition)
	}

	wg.Wait()
	return ctx.Err()
}

func (c *Consumer) ensureGroups(ctx context.Context) error {
	for partition := 0; partition < c.topic.Partitions; partition++ {
		stream := c.topic.Stream(partition)
		err := c.rdb.XGroupCreateMkStream(ctx, stream, c.group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("create group %s on %s: %w", c.group, stream, err)
		}
	}
	return nil
}

func (c *Consumer) consumePartition(ctx context.Context, partition int, handler Handler) {
	stream := c.topic.Stream(partition)
	consumer := fmt.Sprintf("%s-p%d", c.name, partition)

	// Own pending entries first, then new ones.
	cursor := "0"
	for {
		if ctx.Err() != nil {
			return
		}

		res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: consumer,
			Streams:  []string{stream, cursor},
			Count:    10,
			Block:    c.block,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				if ctx.Err() != nil {
					return
				}
				// An empty read with the "0" cursor means the pending
				// backlog is drained.
				if cursor == "0" {
					cursor = ">"
				}
				continue
			}
			c.logger.WithError(err).Error("stream read failed", map[string]interface{}{
				"stream": stream,
			})
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		delivered := 0
		for _, streamRes := range res {
			for _, msg := range streamRes.Messages {
				delivered++
				c.handleMessage(ctx, stream, partition, msg, handler)
			}
		}

		// The pending backlog is exhausted once a "0" read returns nothing.
		if cursor == "0" && delivered == 0 {
			cursor = ">"
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, stream string, partition int, msg redis.XMessage, handler Handler) {
	d := &Delivery{
		Topic:     c.topic.Name,
		Partition: partition,
		MessageID: msg.ID,
		Headers:   make(map[string]string),
		ack: func(ctx context.Context) error {
			return c.rdb.XAck(ctx, stream, c.group, msg.ID).Err()
		},
	}

	for k, v := range msg.Values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch k {
		case fieldKey:
			d.Key = s
		case fieldPayload:
			d.Payload = []byte(s)
		default:
			d.Headers[k] = s
		}
	}

	if err := handler(ctx, d); err != nil {
		c.logger.WithError(err).Error("handler failed", map[string]interface{}{
			"stream":    stream,
			"messageId": msg.ID,
		})
	}
}
