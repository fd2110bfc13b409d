package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/models"
)

func newMockRepo(t *testing.T) (*NotificationRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewNotificationRepository(db, logger.NewNoOpLogger()), mock
}

func notificationRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"storage_id", "id", "organization_id", "title", "message", "recipient",
		"recipient_email", "type", "status", "retry_count", "max_retries",
		"error_code", "error_message", "provider_id", "provider_name",
		"created_at", "sent_at", "read_at",
	})
}

func TestCreateReturnsStorageID(t *testing.T) {
	repo, mock := newMockRepo(t)

	n := &models.Notification{
		ID:             "n-1",
		OrganizationID: "org-1",
		Title:          "Invoice ready",
		Message:        "Your invoice is ready",
		Recipient:      "user-1",
		RecipientEmail: "user@example.com",
		Type:           models.ChannelEmail,
		Status:         models.StatusPending,
		MaxRetries:     5,
		CreatedAt:      time.Now().UTC(),
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO notifications")).
		WithArgs(n.ID, sqlmock.AnyArg(), n.Title, n.Message, n.Recipient,
			sqlmock.AnyArg(), "EMAIL", "PENDING", 0, 5, n.CreatedAt).
		WillReturnRows(sqlmock.NewRows([]string{"storage_id"}).AddRow(int64(42)))

	require.NoError(t, repo.Create(context.Background(), n))
	assert.Equal(t, int64(42), n.StorageID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs("n-1").
		WillReturnRows(notificationRows().AddRow(
			int64(42), "n-1", "org-1", "Invoice ready", "Your invoice is ready",
			"user-1", "user@example.com", "EMAIL", "SENT", 1, 5,
			nil, nil, "smtp-123", "smtp", created, created, nil,
		))

	n, err := repo.FindByID(context.Background(), "n-1")
	require.NoError(t, err)
	assert.Equal(t, "n-1", n.ID)
	assert.Equal(t, models.StatusSent, n.Status)
	assert.Equal(t, models.ChannelEmail, n.Type)
	assert.Equal(t, "smtp", n.ProviderName)
	assert.Equal(t, 1, n.RetryCount)
	require.NotNil(t, n.SentAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	n, err := repo.FindByID(context.Background(), "missing")
	assert.Nil(t, n)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdatePersistsMutableFields(t *testing.T) {
	repo, mock := newMockRepo(t)
	sentAt := time.Now().UTC()

	n := &models.Notification{
		ID:           "n-1",
		Status:       models.StatusSent,
		RetryCount:   1,
		ProviderID:   "smtp-123",
		ProviderName: "smtp",
		SentAt:       &sentAt,
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET")).
		WithArgs("n-1", "SENT", 1, sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Update(context.Background(), n))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRefusesTerminalRows(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("n-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := repo.Update(context.Background(), &models.Notification{ID: "n-1", Status: models.StatusProcessing})
	assert.ErrorIs(t, err, ErrStaleState)
}

func TestUpdateMissingRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.Update(context.Background(), &models.Notification{ID: "gone", Status: models.StatusProcessing})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListByRecipient(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE recipient =")).
		WithArgs("user-1", 10).
		WillReturnRows(notificationRows().
			AddRow(int64(2), "n-2", nil, "Second", "msg", "user-1", nil,
				"SMS", "PENDING", 0, 5, nil, nil, nil, nil, created, nil, nil).
			AddRow(int64(1), "n-1", "org-1", "First", "msg", "user-1", nil,
				"EMAIL", "SENT", 0, 5, nil, nil, nil, nil, created, created, nil))

	list, err := repo.ListByRecipient(context.Background(), "user-1", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "n-2", list[0].ID)
	assert.Empty(t, list[0].OrganizationID)
	assert.Equal(t, models.StatusSent, list[1].Status)
}

func TestListByStatusPropagatesQueryErrors(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status =")).
		WithArgs("FAILED", 10).
		WillReturnError(errors.New("connection reset"))

	list, err := repo.ListByStatus(context.Background(), models.StatusFailed, 10)
	assert.Nil(t, list)
	assert.Error(t, err)
}
