package messaging

import (
	"time"

	"notification-dispatch/internal/models"
)

// Message metadata attached to queue entries alongside the payload.
const (
	HeaderCorrelationID  = "correlationId"
	HeaderOrganizationID = "organizationId"
	HeaderNextRetryAt    = "nextRetryAt" // epoch millis
	HeaderRetryCount     = "retryCount"
	HeaderReason         = "reason"
)

// Ordering key used when a notification carries no organization id.
const DefaultPartitionKey = "default"

// Envelope is the wire contract carried through every queue stage. It is a
// read-mostly projection of the Notification: consumers must re-read the
// record by ID before acting and never trust embedded state beyond identity
// and payload. RetryCount is the only field mutated between hops.
type Envelope struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organizationId,omitempty"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	Recipient      string         `json:"recipient"`
	RecipientEmail string         `json:"recipientEmail,omitempty"`
	Type           models.Channel `json:"type"`
	RetryCount     int            `json:"retryCount"`
	MaxRetries     int            `json:"maxRetries"`
	CreatedAt      time.Time      `json:"createdAt"`
	CorrelationID  string         `json:"correlationId,omitempty"`
}

// NewEnvelope builds the queue projection of a notification.
func NewEnvelope(n *models.Notification) *Envelope {
	return &Envelope{
		ID:             n.ID,
		OrganizationID: n.OrganizationID,
		Title:          n.Title,
		Message:        n.Message,
		Recipient:      n.Recipient,
		RecipientEmail: n.RecipientEmail,
		Type:           n.Type,
		RetryCount:     n.RetryCount,
		MaxRetries:     n.MaxRetries,
		CreatedAt:      n.CreatedAt,
		CorrelationID:  n.ID,
	}
}

// PartitionKey returns the tenant-ordering key for send/retry topics.
func (e *Envelope) PartitionKey() string {
	if e.OrganizationID == "" {
		return DefaultPartitionKey
	}
	return e.OrganizationID
}

// EventType labels an audit event.
type EventType string

const (
	EventCreated       EventType = "CREATED"
	EventSendAttempted EventType = "SEND_ATTEMPTED"
	EventSent          EventType = "SENT"
	EventFailed        EventType = "FAILED"
	EventRetried       EventType = "RETRIED"
)

// Event is an immutable audit fact appended to the events topic. Events are
// never mutated or deleted; together they form a replayable history per
// notification.
type Event struct {
	NotificationID string                 `json:"notificationId"`
	OrganizationID string                 `json:"organizationId,omitempty"`
	EventType      EventType              `json:"eventType"`
	Details        map[string]interface{} `json:"details"`
	Timestamp      time.Time              `json:"timestamp"`
}
