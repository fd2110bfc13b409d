package worker

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/messaging"
	"notification-dispatch/internal/messaging/queue"
)

type schedulerFixture struct {
	scheduler *RetryScheduler
	producer  *fakeRetryProducer
	slept     []time.Duration
	sleepErr  error
	now       time.Time
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()
	f := &schedulerFixture{
		producer: &fakeRetryProducer{},
		now:      time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
	}
	f.scheduler = NewRetryScheduler(f.producer, 5*time.Second, logger.NewNoOpLogger())
	f.scheduler.now = func() time.Time { return f.now }
	f.scheduler.sleep = func(ctx context.Context, d time.Duration) error {
		f.slept = append(f.slept, d)
		return f.sleepErr
	}
	return f
}

func retryDelivery(t *testing.T, nextRetryAt time.Time, acked *bool) *queue.Delivery {
	t.Helper()
	env := &messaging.Envelope{
		ID:             "n-1",
		OrganizationID: "org-1",
		RetryCount:     1,
		MaxRetries:     5,
		CorrelationID:  "c-1",
	}
	payload, err := json.Marshal(env)
	require.NoError(t, err)

	headers := map[string]string{
		messaging.HeaderNextRetryAt: strconv.FormatInt(nextRetryAt.UnixMilli(), 10),
		messaging.HeaderRetryCount:  "1",
	}
	return queue.NewDelivery("notifications.send.retry", 0, "1-0", "org-1", payload, headers,
		func(ctx context.Context) error {
			*acked = true
			return nil
		})
}

func TestDueRetryIsReleasedToSendQueue(t *testing.T) {
	f := newSchedulerFixture(t)

	acked := false
	d := retryDelivery(t, f.now.Add(-time.Second), &acked)
	require.NoError(t, f.scheduler.Handle(context.Background(), d))

	assert.True(t, acked)
	require.Len(t, f.producer.sends, 1)
	assert.Equal(t, "n-1", f.producer.sends[0].ID)
	assert.Empty(t, f.producer.retries)
	assert.Empty(t, f.slept)
}

func TestNotDueRetryIsHeldThenRequeued(t *testing.T) {
	f := newSchedulerFixture(t)
	nextRetryAt := f.now.Add(3 * time.Second)

	acked := false
	require.NoError(t, f.scheduler.Handle(context.Background(), retryDelivery(t, nextRetryAt, &acked)))

	assert.True(t, acked)
	require.Len(t, f.slept, 1)
	assert.Equal(t, 3*time.Second, f.slept[0])

	require.Len(t, f.producer.retries, 1)
	assert.Equal(t, nextRetryAt.UnixMilli(), f.producer.retries[0].nextRetryAt.UnixMilli())
	assert.Empty(t, f.producer.sends)
}

func TestHoldIsCappedForLongDelays(t *testing.T) {
	f := newSchedulerFixture(t)

	acked := false
	require.NoError(t, f.scheduler.Handle(context.Background(), retryDelivery(t, f.now.Add(10*time.Minute), &acked)))

	assert.True(t, acked)
	require.Len(t, f.slept, 1)
	assert.Equal(t, 5*time.Second, f.slept[0])
	require.Len(t, f.producer.retries, 1)
}

func TestCancelledHoldLeavesMessageUnacked(t *testing.T) {
	f := newSchedulerFixture(t)
	f.sleepErr = context.Canceled

	acked := false
	err := f.scheduler.Handle(context.Background(), retryDelivery(t, f.now.Add(time.Minute), &acked))

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, acked)
	assert.Empty(t, f.producer.retries)
	assert.Empty(t, f.producer.sends)
}

func TestMissingScheduleReleasesImmediately(t *testing.T) {
	f := newSchedulerFixture(t)

	acked := false
	d := retryDelivery(t, f.now.Add(time.Minute), &acked)
	delete(d.Headers, messaging.HeaderNextRetryAt)

	require.NoError(t, f.scheduler.Handle(context.Background(), d))
	assert.True(t, acked)
	require.Len(t, f.producer.sends, 1)
	assert.Empty(t, f.slept)
}

func TestInvalidScheduleReleasesImmediately(t *testing.T) {
	f := newSchedulerFixture(t)

	acked := false
	d := retryDelivery(t, f.now.Add(time.Minute), &acked)
	d.Headers[messaging.HeaderNextRetryAt] = "not-a-timestamp"

	require.NoError(t, f.scheduler.Handle(context.Background(), d))
	assert.True(t, acked)
	require.Len(t, f.producer.sends, 1)
}

func TestMalformedRetryEnvelopeIsDropped(t *testing.T) {
	f := newSchedulerFixture(t)

	acked := false
	d := queue.NewDelivery("notifications.send.retry", 0, "1-0", "org-1", []byte("junk"), nil,
		func(ctx context.Context) error {
			acked = true
			return nil
		})

	require.NoError(t, f.scheduler.Handle(context.Background(), d))
	assert.True(t, acked)
	assert.Empty(t, f.producer.sends)
	assert.Empty(t, f.producer.retries)
}
