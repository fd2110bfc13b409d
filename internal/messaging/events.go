package messaging

import (
	"context"
	"encoding/json"
	"time"

	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/common/metrics"
	"notification-dispatch/internal/messaging/queue"
	"notification-dispatch/internal/models"
)

// EventEmitter appends audit events to the events topic. Like the dispatch
// producer it is fire-and-forget: an unreachable broker loses the event but
// never fails the operation that produced it.
type EventEmitter struct {
	pub    publisher
	topic  queue.Topic
	logger logger.Logger
	now    func() time.Time
}

func NewEventEmitter(pub publisher, topic queue.Topic, log logger.Logger) *EventEmitter {
	return &EventEmitter{
		pub:    pub,
		topic:  topic,
		logger: log.WithFields(map[string]interface{}{"component": "event_emitter"}),
		now:    time.Now,
	}
}

// PublishCreated records that a notification entered the pipeline.
func (e *EventEmitter) PublishCreated(ctx context.Context, n *models.Notification) {
	e.emit(ctx, n.ID, n.OrganizationID, EventCreated, map[string]interface{}{
		"type":      string(n.Type),
		"recipient": n.Recipient,
	})
}

// PublishSendAttempted records the start of a delivery attempt.
func (e *EventEmitter) PublishSendAttempted(ctx context.Context, n *models.Notification) {
	e.emit(ctx, n.ID, n.OrganizationID, EventSendAttempted, map[string]interface{}{
		"retryCount": n.RetryCount,
	})
}

// PublishSent records a successful delivery.
func (e *EventEmitter) PublishSent(ctx context.Context, n *models.Notification) {
	details := map[string]interface{}{
		"retryCount": n.RetryCount,
	}
	if n.ProviderName != "" {
		details["provider"] = n.ProviderName
	}
	if n.ProviderID != "" {
		details["providerId"] = n.ProviderID
	}
	e.emit(ctx, n.ID, n.OrganizationID, EventSent, details)
}

// PublishFailed records a terminal failure.
func (e *EventEmitter) PublishFailed(ctx context.Context, n *models.Notification, reason string) {
	e.emit(ctx, n.ID, n.OrganizationID, EventFailed, map[string]interface{}{
		"reason":     reason,
		"errorCode":  n.ErrorCode,
		"retryCount": n.RetryCount,
	})
}

// PublishRetried records that a retry was scheduled.
func (e *EventEmitter) PublishRetried(ctx context.Context, n *models.Notification, nextRetryAt time.Time) {
	e.emit(ctx, n.ID, n.OrganizationID, EventRetried, map[string]interface{}{
		"retryCount":  n.RetryCount,
		"nextRetryAt": nextRetryAt.UTC().Format(time.RFC3339),
	})
}

func (e *EventEmitter) emit(ctx context.Context, notificationID, organizationID string, eventType EventType, details map[string]interface{}) {
	event := &Event{
		NotificationID: notificationID,
		OrganizationID: organizationID,
		EventType:      eventType,
		Details:        details,
		Timestamp:      e.now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		metrics.AuditEvents.WithLabelValues(string(eventType), "error").Inc()
		e.logger.WithError(err).Error("event marshal failed", map[string]interface{}{
			"notificationId": notificationID,
			"eventType":      string(eventType),
		})
		return
	}

	key := organizationID
	if key == "" {
		key = DefaultPartitionKey
	}

	if _, err := e.pub.Publish(ctx, e.topic, key, payload, nil); err != nil {
		metrics.AuditEvents.WithLabelValues(string(eventType), "error").Inc()
		e.logger.WithError(err).Error("event publish failed", map[string]interface{}{
			"notificationId": notificationID,
			"eventType":      string(eventType),
		})
		return
	}

	metrics.AuditEvents.WithLabelValues(string(eventType), "success").Inc()
}
