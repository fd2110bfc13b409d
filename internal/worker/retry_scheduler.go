package worker

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/common/metrics"
	"notification-dispatch/internal/messaging"
	"notification-dispatch/internal/messaging/queue"
)

// DispatchRequeuer republishes envelopes back into the pipeline.
type DispatchRequeuer interface {
	PublishToSend(ctx context.Context, env *messaging.Envelope)
	PublishToRetry(ctx context.Context, env *messaging.Envelope, nextRetryAt time.Time)
}

// RetryScheduler consumes the retry topic and releases each envelope back to
// the send topic once its nextRetryAt has passed. Messages that are not due
// yet are held in place, but never longer than holdCap per cycle: long delays
// are served as a chain of short holds with a requeue in between, so shutdown
// latency stays bounded regardless of the backoff level.
type RetryScheduler struct {
	producer DispatchRequeuer
	holdCap  time.Duration
	logger   logger.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewRetryScheduler(producer DispatchRequeuer, holdCap time.Duration, log logger.Logger) *RetryScheduler {
	if holdCap <= 0 {
		holdCap = 5 * time.Second
	}
	return &RetryScheduler{
		producer: producer,
		holdCap:  holdCap,
		logger:   log.WithFields(map[string]interface{}{"component": "retry_scheduler"}),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Handle processes one delivery from the retry topic. A cancelled hold
// returns without acking, so the message is redelivered to the next
// incarnation and the retry is never lost.
func (s *RetryScheduler) Handle(ctx context.Context, d *queue.Delivery) error {
	var env messaging.Envelope
	if err := json.Unmarshal(d.Payload, &env); err != nil {
		s.logger.WithError(err).Error("dropping malformed retry envelope", map[string]interface{}{
			"messageId": d.MessageID,
		})
		return d.Ack(ctx)
	}

	log := s.logger.WithFields(map[string]interface{}{
		"notificationId": env.ID,
		"correlationId":  env.CorrelationID,
	})

	nextRetryAt, ok := parseNextRetryAt(d.Headers[messaging.HeaderNextRetryAt])
	if !ok {
		// Without a schedule the safest move is to attempt immediately.
		log.Warn("retry message without a valid schedule, releasing now", nil)
		s.producer.PublishToSend(ctx, &env)
		return d.Ack(ctx)
	}

	remaining := nextRetryAt.Sub(s.now())
	if remaining <= 0 {
		log.Info("retry due, releasing to send queue", map[string]interface{}{
			"retryCount": env.RetryCount,
		})
		s.producer.PublishToSend(ctx, &env)
		return d.Ack(ctx)
	}

	hold := remaining
	if hold > s.holdCap {
		hold = s.holdCap
	}
	if err := s.sleep(ctx, hold); err != nil {
		// Shutting down: leave the message unacked for redelivery.
		return err
	}

	metrics.RetryHolds.Inc()
	// Requeue with the original schedule; the next cycle re-evaluates it.
	s.producer.PublishToRetry(ctx, &env, nextRetryAt)
	return d.Ack(ctx)
}

func parseNextRetryAt(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || millis <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(millis), true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
