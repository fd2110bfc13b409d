package models

import (
	"time"
)

// Status is the notification lifecycle state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSent       Status = "SENT"
	StatusRetrying   Status = "RETRYING"
	StatusFailed     Status = "FAILED"

	// Downstream states owned by the API layer, never set by the dispatch core.
	StatusDelivered Status = "DELIVERED"
	StatusRead      Status = "READ"
)

// Channel is the delivery channel.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
	ChannelInApp Channel = "IN_APP"
)

// ValidChannel reports whether s names a known channel.
func ValidChannel(s string) bool {
	switch Channel(s) {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp:
		return true
	}
	return false
}

// Notification is the durable unit of work. ID is the process-wide-unique
// idempotency key; StorageID is the record-store surrogate key and is only
// meaningful for storage addressing.
type Notification struct {
	StorageID      int64      `json:"-"`
	ID             string     `json:"id"`
	OrganizationID string     `json:"organizationId,omitempty"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	Recipient      string     `json:"recipient"`
	RecipientEmail string     `json:"recipientEmail,omitempty"`
	Type           Channel    `json:"type"`
	Status         Status     `json:"status"`
	RetryCount     int        `json:"retryCount"`
	MaxRetries     int        `json:"maxRetries"`
	ErrorCode      string     `json:"errorCode,omitempty"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`
	ProviderID     string     `json:"providerId,omitempty"`
	ProviderName   string     `json:"providerName,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	SentAt         *time.Time `json:"sentAt,omitempty"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
}

// Terminal reports whether s is a sink state for the dispatch core.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// CanTransition encodes the dispatch-core state machine. Transitions are
// monotonic: SENT and FAILED are never left, and nothing ever moves back
// to PENDING.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusSent || to == StatusRetrying || to == StatusFailed
	case StatusRetrying:
		return to == StatusProcessing
	case StatusSent, StatusFailed:
		return false
	}
	return false
}
