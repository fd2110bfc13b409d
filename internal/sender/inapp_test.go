package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/models"
)

func newTestInAppSender(t *testing.T, maxSize int) (*InAppSender, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewInAppSender(rdb, maxSize, logger.NewNoOpLogger()), rdb
}

func TestInAppSendStoresInboxEntry(t *testing.T) {
	s, rdb := newTestInAppSender(t, 10)
	ctx := context.Background()

	n := &models.Notification{
		ID:        "n-1",
		Title:     "Invoice ready",
		Message:   "Your invoice is ready",
		Recipient: "user-1",
		Type:      models.ChannelInApp,
	}

	res, err := s.Send(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, "redis-inbox", res.ProviderName)
	assert.Equal(t, "inbox-n-1", res.ProviderID)

	raw, err := rdb.LRange(ctx, InboxKey("user-1"), 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, raw, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw[0]), &entry))
	assert.Equal(t, "n-1", entry["id"])
	assert.Equal(t, "Invoice ready", entry["title"])
}

func TestInAppInboxIsCapped(t *testing.T) {
	s, rdb := newTestInAppSender(t, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Send(ctx, &models.Notification{
			ID:        fmt.Sprintf("n-%d", i),
			Title:     "t",
			Message:   "m",
			Recipient: "user-1",
			Type:      models.ChannelInApp,
		})
		require.NoError(t, err)
	}

	size, err := rdb.LLen(ctx, InboxKey("user-1")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)

	// Newest entry sits at the head.
	head, err := rdb.LIndex(ctx, InboxKey("user-1"), 0).Result()
	require.NoError(t, err)
	assert.Contains(t, head, `"n-4"`)
}

func TestInAppMissingRecipientIsPermanent(t *testing.T) {
	s, _ := newTestInAppSender(t, 10)

	_, err := s.Send(context.Background(), &models.Notification{ID: "n-1", Type: models.ChannelInApp})
	assert.True(t, errors.IsPermanent(err))
	assert.Equal(t, errors.ErrCodeRecipientMissing, errors.CodeOf(err))
}
