// Package service exposes the submission and query operations in front of
// the dispatch pipeline.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/messaging"
	"notification-dispatch/internal/models"
)

// notificationStore is the persistence surface the service needs.
type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	FindByID(ctx context.Context, id string) (*models.Notification, error)
	ListByRecipient(ctx context.Context, recipient string, limit int) ([]*models.Notification, error)
	ListByStatus(ctx context.Context, status models.Status, limit int) ([]*models.Notification, error)
}

// sendPublisher enqueues new notifications for delivery.
type sendPublisher interface {
	PublishToSend(ctx context.Context, env *messaging.Envelope)
}

// createdEmitter records the CREATED audit event.
type createdEmitter interface {
	PublishCreated(ctx context.Context, n *models.Notification)
}

// CreateRequest is an incoming notification submission.
type CreateRequest struct {
	OrganizationID string `json:"organizationId,omitempty"`
	Title          string `json:"title"`
	Message        string `json:"message"`
	Recipient      string `json:"recipient"`
	RecipientEmail string `json:"recipientEmail,omitempty"`
	Type           string `json:"type"`
	MaxRetries     int    `json:"maxRetries,omitempty"`
}

// NotificationService accepts submissions, persists them and hands them to
// the pipeline. Publishing is fire-and-forget: once the record is stored the
// submission has succeeded, even if the enqueue is lost.
type NotificationService struct {
	store             notificationStore
	producer          sendPublisher
	emitter           createdEmitter
	validator         *SubmissionValidator
	defaultMaxRetries int
	logger            logger.Logger
	now               func() time.Time
}

func NewNotificationService(store notificationStore, producer sendPublisher, emitter createdEmitter, validator *SubmissionValidator, defaultMaxRetries int, log logger.Logger) *NotificationService {
	if defaultMaxRetries <= 0 {
		defaultMaxRetries = 5
	}
	return &NotificationService{
		store:             store,
		producer:          producer,
		emitter:           emitter,
		validator:         validator,
		defaultMaxRetries: defaultMaxRetries,
		logger:            log.WithFields(map[string]interface{}{"component": "notification_service"}),
		now:               time.Now,
	}
}

// Create validates and persists a submission, then enqueues it for delivery.
func (s *NotificationService) Create(ctx context.Context, req *CreateRequest) (*models.Notification, error) {
	document, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal submission: %w", err)
	}
	if err := s.validator.Validate(document); err != nil {
		return nil, err
	}

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.defaultMaxRetries
	}

	n := &models.Notification{
		ID:             uuid.New().String(),
		OrganizationID: req.OrganizationID,
		Title:          req.Title,
		Message:        req.Message,
		Recipient:      req.Recipient,
		RecipientEmail: req.RecipientEmail,
		Type:           models.Channel(req.Type),
		Status:         models.StatusPending,
		MaxRetries:     maxRetries,
		CreatedAt:      s.now().UTC(),
	}

	if err := s.validator.ValidateNotification(n); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, n); err != nil {
		return nil, err
	}

	s.producer.PublishToSend(ctx, messaging.NewEnvelope(n))
	s.emitter.PublishCreated(ctx, n)

	s.logger.Info("notification accepted", map[string]interface{}{
		"notificationId": n.ID,
		"organizationId": n.OrganizationID,
		"channel":        string(n.Type),
	})
	return n, nil
}

// GetByID loads one notification.
func (s *NotificationService) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	return s.store.FindByID(ctx, id)
}

// ListByRecipient returns a recipient's notifications, newest first.
func (s *NotificationService) ListByRecipient(ctx context.Context, recipient string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByRecipient(ctx, recipient, limit)
}

// ListByStatus returns notifications in the given state, oldest first.
func (s *NotificationService) ListByStatus(ctx context.Context, status models.Status, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByStatus(ctx, status, limit)
}
