// Package sender holds the per-channel delivery providers and the registry
// that routes notifications to them.
package sender

import (
	"context"
	"time"

	"notification-dispatch/internal/models"
)

// SendResult reports a successful provider delivery.
type SendResult struct {
	ProviderID   string
	ProviderName string
	SentAt       time.Time
}

// Sender delivers notifications over one channel. Send must classify its
// failures through the errors package so the worker can route them; an
// unclassified error is treated as transient.
type Sender interface {
	Send(ctx context.Context, n *models.Notification) (*SendResult, error)
	SupportedChannel() models.Channel
	IsAvailable() bool
}
