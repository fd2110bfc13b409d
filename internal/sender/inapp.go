package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/models"
)

// InAppSender delivers IN_APP notifications into a per-recipient Redis inbox
// list. The inbox is capped; the oldest entries fall off first.
type InAppSender struct {
	rdb     redis.Cmdable
	maxSize int
	logger  logger.Logger
}

func NewInAppSender(rdb redis.Cmdable, maxSize int, log logger.Logger) *InAppSender {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &InAppSender{
		rdb:     rdb,
		maxSize: maxSize,
		logger:  log.WithFields(map[string]interface{}{"sender": "in_app"}),
	}
}

func (s *InAppSender) SupportedChannel() models.Channel {
	return models.ChannelInApp
}

func (s *InAppSender) IsAvailable() bool {
	return s.rdb != nil
}

// InboxKey returns the Redis list key holding a recipient's inbox.
func InboxKey(recipient string) string {
	return "inbox:" + recipient
}

type inboxEntry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *InAppSender) Send(ctx context.Context, n *models.Notification) (*SendResult, error) {
	recipient := strings.TrimSpace(n.Recipient)
	if recipient == "" {
		return nil, errors.Permanent(errors.ErrCodeRecipientMissing,
			"notification has no recipient", nil)
	}

	payload, err := json.Marshal(inboxEntry{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		CreatedAt: n.CreatedAt,
	})
	if err != nil {
		return nil, errors.Permanent(errors.ErrCodeValidationFailed, "inbox entry marshal failed", err)
	}

	key := InboxKey(recipient)
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, int64(s.maxSize-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.Transient(errors.ErrCodeProviderError, "inbox write failed", err)
	}

	s.logger.Debug("in-app notification stored", map[string]interface{}{
		"notificationId": n.ID,
		"inbox":          key,
	})

	return &SendResult{
		ProviderID:   fmt.Sprintf("inbox-%s", n.ID),
		ProviderName: "redis-inbox",
		SentAt:       time.Now().UTC(),
	}, nil
}
