// Package repository persists notifications in Postgres. The notification id
// (not the surrogate storage key) is the lookup handle everywhere else in the
// pipeline uses.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/models"
)

var (
	// ErrNotFound is returned when no row matches the given notification id.
	ErrNotFound = errors.New("notification not found")

	// ErrStaleState is returned when an update would move a notification out
	// of a terminal state. Terminal rows are immutable to the dispatch core.
	ErrStaleState = errors.New("notification is in a terminal state")
)

const notificationColumns = `storage_id, id, organization_id, title, message, recipient,
	recipient_email, type, status, retry_count, max_retries, error_code,
	error_message, provider_id, provider_name, created_at, sent_at, read_at`

// NotificationRepository provides CRUD access to the notifications table.
type NotificationRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewNotificationRepository(db *sql.DB, log logger.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "notification_repository"}),
	}
}

// Create inserts a new notification and fills in its storage id.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	query := `INSERT INTO notifications (
			id, organization_id, title, message, recipient, recipient_email,
			type, status, retry_count, max_retries, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING storage_id`

	err := r.db.QueryRowContext(ctx, query,
		n.ID, nullable(n.OrganizationID), n.Title, n.Message, n.Recipient,
		nullable(n.RecipientEmail), string(n.Type), string(n.Status),
		n.RetryCount, n.MaxRetries, n.CreatedAt,
	).Scan(&n.StorageID)
	if err != nil {
		return fmt.Errorf("insert notification %s: %w", n.ID, err)
	}
	return nil
}

// FindByID loads one notification by its pipeline id.
func (r *NotificationRepository) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE id = $1`, notificationColumns)

	n, err := scanNotification(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find notification %s: %w", id, err)
	}
	return n, nil
}

// Update persists the mutable fields of a notification. Rows already in a
// terminal state are left untouched and ErrStaleState is returned, so a
// concurrent duplicate delivery can never rewind SENT or FAILED.
func (r *NotificationRepository) Update(ctx context.Context, n *models.Notification) error {
	query := `UPDATE notifications SET
			status = $2, retry_count = $3, error_code = $4, error_message = $5,
			provider_id = $6, provider_name = $7, sent_at = $8, read_at = $9
		WHERE id = $1 AND status NOT IN ('SENT', 'FAILED')`

	res, err := r.db.ExecContext(ctx, query,
		n.ID, string(n.Status), n.RetryCount, nullable(n.ErrorCode),
		nullable(n.ErrorMessage), nullable(n.ProviderID), nullable(n.ProviderName),
		n.SentAt, n.ReadAt,
	)
	if err != nil {
		return fmt.Errorf("update notification %s: %w", n.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update notification %s: %w", n.ID, err)
	}
	if affected == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1)`, n.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("update notification %s: %w", n.ID, err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrStaleState
	}
	return nil
}

// ListByRecipient returns the recipient's notifications, newest first.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipient string, limit int) ([]*models.Notification, error) {
	query := fmt.Sprintf(`SELECT %s FROM notifications
		WHERE recipient = $1 ORDER BY created_at DESC LIMIT $2`, notificationColumns)

	rows, err := r.db.QueryContext(ctx, query, recipient, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications for %s: %w", recipient, err)
	}
	defer rows.Close()

	return collectNotifications(rows)
}

// ListByStatus returns notifications in the given state, oldest first.
func (r *NotificationRepository) ListByStatus(ctx context.Context, status models.Status, limit int) ([]*models.Notification, error) {
	query := fmt.Sprintf(`SELECT %s FROM notifications
		WHERE status = $1 ORDER BY created_at ASC LIMIT $2`, notificationColumns)

	rows, err := r.db.QueryContext(ctx, query, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications by status %s: %w", status, err)
	}
	defer rows.Close()

	return collectNotifications(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var (
		n              models.Notification
		organizationID sql.NullString
		recipientEmail sql.NullString
		errorCode      sql.NullString
		errorMessage   sql.NullString
		providerID     sql.NullString
		providerName   sql.NullString
		channel        string
		status         string
	)

	err := row.Scan(
		&n.StorageID, &n.ID, &organizationID, &n.Title, &n.Message, &n.Recipient,
		&recipientEmail, &channel, &status, &n.RetryCount, &n.MaxRetries,
		&errorCode, &errorMessage, &providerID, &providerName,
		&n.CreatedAt, &n.SentAt, &n.ReadAt,
	)
	if err != nil {
		return nil, err
	}

	n.OrganizationID = organizationID.String
	n.RecipientEmail = recipientEmail.String
	n.ErrorCode = errorCode.String
	n.ErrorMessage = errorMessage.String
	n.ProviderID = providerID.String
	n.ProviderName = providerName.String
	n.Type = models.Channel(channel)
	n.Status = models.Status(status)
	return &n, nil
}

func collectNotifications(rows *sql.Rows) ([]*models.Notification, error) {
	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
