package worker

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/codes"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/common/metrics"
	"notification-dispatch/internal/common/observability"
	"notification-dispatch/internal/messaging"
	"notification-dispatch/internal/messaging/queue"
	"notification-dispatch/internal/models"
	"notification-dispatch/internal/repository"
	"notification-dispatch/internal/sender"
)

// NotificationStore is the persistence surface the workers need.
type NotificationStore interface {
	FindByID(ctx context.Context, id string) (*models.Notification, error)
	Update(ctx context.Context, n *models.Notification) error
}

// SenderRegistry resolves a channel to an available sender.
type SenderRegistry interface {
	GetSender(channel models.Channel) (sender.Sender, bool)
}

// RetryProducer publishes follow-up messages for failed attempts.
type RetryProducer interface {
	PublishToRetry(ctx context.Context, env *messaging.Envelope, nextRetryAt time.Time)
	PublishToDlq(ctx context.Context, env *messaging.Envelope, reason string)
}

// AuditEmitter records lifecycle events.
type AuditEmitter interface {
	PublishSendAttempted(ctx context.Context, n *models.Notification)
	PublishSent(ctx context.Context, n *models.Notification)
	PublishFailed(ctx context.Context, n *models.Notification, reason string)
	PublishRetried(ctx context.Context, n *models.Notification, nextRetryAt time.Time)
}

const maxRetriesExceededReason = "Max retries exceeded"

// SendWorker consumes the send topic and drives each notification through
// one delivery attempt. Every message is acked exactly once, in every branch:
// at-least-once delivery is reconciled by the idempotency check, not by
// leaving messages pending.
type SendWorker struct {
	store       NotificationStore
	registry    SenderRegistry
	producer    RetryProducer
	emitter     AuditEmitter
	backoff     *BackoffSchedule
	tracer      *observability.Tracer
	obs         *observability.Observability
	sendTimeout time.Duration
	logger      logger.Logger
	now         func() time.Time
}

type SendWorkerOptions struct {
	Store       NotificationStore
	Registry    SenderRegistry
	Producer    RetryProducer
	Emitter     AuditEmitter
	Backoff     *BackoffSchedule
	Tracer      *observability.Tracer
	Obs         *observability.Observability
	SendTimeout time.Duration
	Logger      logger.Logger
}

func NewSendWorker(opts SendWorkerOptions) *SendWorker {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	if opts.Backoff == nil {
		opts.Backoff = DefaultBackoffSchedule()
	}
	return &SendWorker{
		store:       opts.Store,
		registry:    opts.Registry,
		producer:    opts.Producer,
		emitter:     opts.Emitter,
		backoff:     opts.Backoff,
		tracer:      opts.Tracer,
		obs:         opts.Obs,
		sendTimeout: opts.SendTimeout,
		logger:      opts.Logger.WithFields(map[string]interface{}{"component": "send_worker"}),
		now:         time.Now,
	}
}

// Handle processes one delivery from the send topic.
func (w *SendWorker) Handle(ctx context.Context, d *queue.Delivery) error {
	var env messaging.Envelope
	if err := json.Unmarshal(d.Payload, &env); err != nil {
		// Poison message: redelivering it can never succeed.
		w.logger.WithError(err).Error("dropping malformed envelope", map[string]interface{}{
			"messageId": d.MessageID,
		})
		return d.Ack(ctx)
	}

	log := w.logger.WithFields(map[string]interface{}{
		"notificationId": env.ID,
		"correlationId":  env.CorrelationID,
	})

	n, err := w.store.FindByID(ctx, env.ID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			log.Warn("notification record missing, dropping", nil)
			return d.Ack(ctx)
		}
		// Leave unacked so the attempt is redelivered once storage recovers.
		return err
	}

	// Idempotency: a duplicate delivery of an already-settled notification
	// is a no-op.
	if n.Status.Terminal() {
		log.Info("notification already settled, skipping", map[string]interface{}{
			"status": string(n.Status),
		})
		return d.Ack(ctx)
	}

	// A record already in PROCESSING is a crashed attempt being redelivered;
	// re-claim it and try again. Anything else outside the sendable states
	// is skipped.
	if n.Status != models.StatusProcessing && !models.CanTransition(n.Status, models.StatusProcessing) {
		log.Warn("notification not in a sendable state, skipping", map[string]interface{}{
			"status": string(n.Status),
		})
		return d.Ack(ctx)
	}

	n.Status = models.StatusProcessing
	if err := w.store.Update(ctx, n); err != nil {
		if stderrors.Is(err, repository.ErrStaleState) {
			// A concurrent worker settled it between the read and the write.
			log.Info("notification settled concurrently, skipping", nil)
			return d.Ack(ctx)
		}
		return err
	}

	w.emitter.PublishSendAttempted(ctx, n)

	result, sendErr := w.attempt(ctx, n)
	if sendErr != nil {
		return w.handleFailure(ctx, d, &env, n, sendErr, log)
	}

	now := w.now().UTC()
	sentAt := result.SentAt
	if sentAt.IsZero() {
		sentAt = now
	}
	n.Status = models.StatusSent
	n.SentAt = &sentAt
	n.ProviderID = result.ProviderID
	n.ProviderName = result.ProviderName
	n.ErrorCode = ""
	n.ErrorMessage = ""
	if err := w.store.Update(ctx, n); err != nil && !stderrors.Is(err, repository.ErrStaleState) {
		return err
	}

	w.emitter.PublishSent(ctx, n)
	log.Info("notification sent", map[string]interface{}{
		"channel":    string(n.Type),
		"provider":   n.ProviderName,
		"retryCount": n.RetryCount,
	})
	return d.Ack(ctx)
}

// attempt runs one provider call under the send timeout.
func (w *SendWorker) attempt(ctx context.Context, n *models.Notification) (*sender.SendResult, error) {
	s, ok := w.registry.GetSender(n.Type)
	if !ok {
		// No point retrying a channel nothing can serve; dead-letter it.
		return nil, errors.Permanentf(errors.ErrCodeNoSenderAvailable,
			"No sender available for type: %s", n.Type)
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	defer cancel()

	start := w.now()
	var result *sender.SendResult
	var err error
	if w.tracer != nil {
		spanCtx, span := w.tracer.StartAttempt(sendCtx, n.ID, string(n.Type))
		result, err = s.Send(spanCtx, n)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	} else {
		result, err = s.Send(sendCtx, n)
	}
	duration := w.now().Sub(start)

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.SendAttempts.WithLabelValues(string(n.Type), outcome).Inc()
	metrics.SendDuration.WithLabelValues(string(n.Type)).Observe(duration.Seconds())
	if w.obs != nil {
		w.obs.RecordAttempt(ctx, outcome)
		w.obs.RecordAttemptDuration(ctx, duration, outcome)
	}

	return result, err
}

func (w *SendWorker) handleFailure(ctx context.Context, d *queue.Delivery, env *messaging.Envelope, n *models.Notification, sendErr error, log logger.Logger) error {
	log = log.WithError(sendErr)

	if errors.IsPermanent(sendErr) {
		return w.settleFailed(ctx, d, env, n, errors.MessageOf(sendErr), log)
	}

	newRetryCount := n.RetryCount + 1
	if newRetryCount > n.MaxRetries {
		log.Warn("retries exhausted, dead-lettering", map[string]interface{}{
			"retryCount": n.RetryCount,
			"maxRetries": n.MaxRetries,
		})
		reason := fmt.Sprintf("%s: %s", maxRetriesExceededReason, errors.MessageOf(sendErr))
		return w.settleFailed(ctx, d, env, n, reason, log)
	}

	n.Status = models.StatusRetrying
	n.RetryCount = newRetryCount
	n.ErrorCode = string(errors.CodeOf(sendErr))
	n.ErrorMessage = errors.MessageOf(sendErr)
	if err := w.store.Update(ctx, n); err != nil && !stderrors.Is(err, repository.ErrStaleState) {
		return err
	}

	delay := w.backoff.DelayFor(newRetryCount)
	nextRetryAt := w.now().Add(delay)

	env.RetryCount = newRetryCount
	w.producer.PublishToRetry(ctx, env, nextRetryAt)
	w.emitter.PublishRetried(ctx, n, nextRetryAt)
	metrics.RetriesScheduled.WithLabelValues(strconv.Itoa(w.backoff.LevelFor(newRetryCount))).Inc()

	log.Info("retry scheduled", map[string]interface{}{
		"retryCount":  newRetryCount,
		"delayMs":     delay.Milliseconds(),
		"nextRetryAt": nextRetryAt.UTC().Format(time.RFC3339),
	})
	return d.Ack(ctx)
}

// settleFailed marks the notification FAILED, parks it in the dead-letter
// queue and acks the delivery. Every failed record carries the same terminal
// error code; the specific classification stays in the message and the audit
// trail.
func (w *SendWorker) settleFailed(ctx context.Context, d *queue.Delivery, env *messaging.Envelope, n *models.Notification, reason string, log logger.Logger) error {
	n.Status = models.StatusFailed
	n.ErrorCode = string(errors.ErrCodePermanentFailure)
	n.ErrorMessage = reason
	if err := w.store.Update(ctx, n); err != nil && !stderrors.Is(err, repository.ErrStaleState) {
		return err
	}

	w.producer.PublishToDlq(ctx, env, reason)
	w.emitter.PublishFailed(ctx, n, reason)

	log.Error("notification failed permanently", map[string]interface{}{
		"reason": reason,
	})
	return d.Ack(ctx)
}
