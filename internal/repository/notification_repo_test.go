package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/medlink-health/medlink-api/internal/models"
)

func seedNotification(t *testing.T, repo NotificationRepository, recipient models.ParticipantRef, title string) models.Notification {
	t.Helper()
	notification := models.Notification{
		RecipientID:   recipient.ID,
		RecipientKind: recipient.Kind,
		Type:          "chat_message",
		Title:         title,
		Message:       "you have a new message",
	}
	require.NoError(t, repo.Create(context.Background(), &notification))
	return notification
}

func TestNotificationRepositoryScopesByRecipient(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNotificationRepository(db)

	patient := models.ParticipantRef{ID: 3, Kind: models.KindPatient}
	doctor := models.ParticipantRef{ID: 3, Kind: models.KindProvider}

	seedNotification(t, repo, patient, "for the patient")
	seedNotification(t, repo, doctor, "for the doctor")

	// same numeric id, different kind: feeds must not bleed into each other
	items, err := repo.ListByRecipient(context.Background(), patient, 10, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "for the patient", items[0].Title)

	count, err := repo.UnreadCount(context.Background(), doctor)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestNotificationRepositoryMarkReadIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNotificationRepository(db)

	patient := models.ParticipantRef{ID: 3, Kind: models.KindPatient}
	created := seedNotification(t, repo, patient, "first")

	read, err := repo.MarkRead(context.Background(), created.ID, patient)
	require.NoError(t, err)
	require.True(t, read.IsRead)
	require.NotNil(t, read.ReadAt)
	firstReadAt := *read.ReadAt

	again, err := repo.MarkRead(context.Background(), created.ID, patient)
	require.NoError(t, err)
	require.True(t, again.IsRead)
	require.WithinDuration(t, firstReadAt, *again.ReadAt, time.Second)

	count, err := repo.UnreadCount(context.Background(), patient)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestNotificationRepositoryMarkReadRejectsOtherRecipient(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNotificationRepository(db)

	patient := models.ParticipantRef{ID: 3, Kind: models.KindPatient}
	other := models.ParticipantRef{ID: 9, Kind: models.KindPatient}
	created := seedNotification(t, repo, patient, "private")

	_, err := repo.MarkRead(context.Background(), created.ID, other)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestNotificationRepositoryMarkAllRead(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNotificationRepository(db)

	patient := models.ParticipantRef{ID: 3, Kind: models.KindPatient}
	seedNotification(t, repo, patient, "one")
	seedNotification(t, repo, patient, "two")

	require.NoError(t, repo.MarkAllRead(context.Background(), patient))

	count, err := repo.UnreadCount(context.Background(), patient)
	require.NoError(t, err)
	require.Zero(t, count)

	// nothing left unread; repeat call still succeeds
	require.NoError(t, repo.MarkAllRead(context.Background(), patient))
}

func TestNotificationRepositoryDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNotificationRepository(db)

	patient := models.ParticipantRef{ID: 3, Kind: models.KindPatient}
	other := models.ParticipantRef{ID: 9, Kind: models.KindPatient}
	created := seedNotification(t, repo, patient, "to delete")

	require.ErrorIs(t, repo.Delete(context.Background(), created.ID, other), gorm.ErrRecordNotFound)
	require.NoError(t, repo.Delete(context.Background(), created.ID, patient))
	require.ErrorIs(t, repo.Delete(context.Background(), created.ID, patient), gorm.ErrRecordNotFound)
}
