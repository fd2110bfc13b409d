package messaging

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/common/metrics"
	"notification-dispatch/internal/messaging/queue"
)

// publisher is the transport surface the producer needs.
type publisher interface {
	Publish(ctx context.Context, topic queue.Topic, key string, payload []byte, headers map[string]string) (*queue.PublishResult, error)
}

// Topics groups the four pipeline queues.
type Topics struct {
	Send   queue.Topic
	Retry  queue.Topic
	Dlq    queue.Topic
	Events queue.Topic
}

// DispatchProducer publishes envelopes to the pipeline topics. Publishes are
// fire-and-forget: failures are logged and counted but never propagated, so a
// broken broker can not take a worker down with it.
type DispatchProducer struct {
	pub    publisher
	topics Topics
	logger logger.Logger
}

func NewDispatchProducer(pub publisher, topics Topics, log logger.Logger) *DispatchProducer {
	return &DispatchProducer{
		pub:    pub,
		topics: topics,
		logger: log.WithFields(map[string]interface{}{"component": "dispatch_producer"}),
	}
}

// PublishToSend enqueues an envelope for delivery, keyed by tenant so that a
// tenant's notifications are attempted in submission order.
func (p *DispatchProducer) PublishToSend(ctx context.Context, env *Envelope) {
	if env.CorrelationID == "" {
		env.CorrelationID = uuid.New().String()
	}
	headers := map[string]string{
		HeaderCorrelationID: env.CorrelationID,
	}
	if env.OrganizationID != "" {
		headers[HeaderOrganizationID] = env.OrganizationID
	}
	p.publish(ctx, p.topics.Send, env.PartitionKey(), env, headers)
}

// PublishToRetry enqueues an envelope for a later attempt. nextRetryAt is the
// earliest moment the next attempt may run; the retry scheduler holds the
// message until then.
func (p *DispatchProducer) PublishToRetry(ctx context.Context, env *Envelope, nextRetryAt time.Time) {
	headers := map[string]string{
		HeaderCorrelationID: env.CorrelationID,
		HeaderNextRetryAt:   strconv.FormatInt(nextRetryAt.UnixMilli(), 10),
		HeaderRetryCount:    strconv.Itoa(env.RetryCount),
	}
	if env.OrganizationID != "" {
		headers[HeaderOrganizationID] = env.OrganizationID
	}
	p.publish(ctx, p.topics.Retry, env.PartitionKey(), env, headers)
}

// PublishToDlq parks an envelope that will never be delivered. Dead-letter
// entries are keyed by notification id: ordering no longer matters once a
// message is out of the pipeline.
func (p *DispatchProducer) PublishToDlq(ctx context.Context, env *Envelope, reason string) {
	headers := map[string]string{
		HeaderCorrelationID: env.CorrelationID,
		HeaderReason:        reason,
	}
	if env.OrganizationID != "" {
		headers[HeaderOrganizationID] = env.OrganizationID
	}
	metrics.DeadLettered.Inc()
	p.publish(ctx, p.topics.Dlq, env.ID, env, headers)
}

func (p *DispatchProducer) publish(ctx context.Context, topic queue.Topic, key string, env *Envelope, headers map[string]string) {
	payload, err := json.Marshal(env)
	if err != nil {
		metrics.QueuePublishes.WithLabelValues(topic.Name, "error").Inc()
		p.logger.WithError(err).Error("envelope marshal failed", map[string]interface{}{
			"topic":          topic.Name,
			"notificationId": env.ID,
		})
		return
	}

	res, err := p.pub.Publish(ctx, topic, key, payload, headers)
	if err != nil {
		metrics.QueuePublishes.WithLabelValues(topic.Name, "error").Inc()
		p.logger.WithError(err).Error("publish failed", map[string]interface{}{
			"topic":          topic.Name,
			"notificationId": env.ID,
			"key":            key,
		})
		return
	}

	metrics.QueuePublishes.WithLabelValues(topic.Name, "success").Inc()
	p.logger.Debug("published", map[string]interface{}{
		"topic":          topic.Name,
		"partition":      res.Partition,
		"notificationId": env.ID,
		"correlationId":  env.CorrelationID,
	})
}
