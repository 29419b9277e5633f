package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/medlink-health/medlink-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Provider{},
		&models.Patient{},
		&models.Chat{},
		&models.ChatParticipant{},
		&models.ChatMessage{},
		&models.Notification{},
	))
	return db
}

func newChatWithMembers(t *testing.T, repo ChatRepository, members ...models.ParticipantRef) models.Chat {
	t.Helper()
	chat := models.Chat{
		ID:         uuid.NewString(),
		MemberHash: models.MemberSetHash(members),
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, repo.CreateChatWithMembers(context.Background(), &chat, members, chat.CreatedAt))
	return chat
}

func TestChatRepositoryCreateChatWithMembers(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)

	doctor := models.ParticipantRef{ID: 7, Kind: models.KindProvider}
	patient := models.ParticipantRef{ID: 3, Kind: models.KindPatient}
	chat := newChatWithMembers(t, repo, doctor, patient)

	found, err := repo.FindChatByMemberHash(context.Background(), chat.MemberHash)
	require.NoError(t, err)
	require.Equal(t, chat.ID, found.ID)

	memberships, err := repo.Memberships(context.Background(), chat.ID)
	require.NoError(t, err)
	require.Len(t, memberships, 2)
	for _, m := range memberships {
		require.True(t, m.Active())
	}
}

func TestChatRepositoryDuplicateMemberHashRejected(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)

	doctor := models.ParticipantRef{ID: 7, Kind: models.KindProvider}
	patient := models.ParticipantRef{ID: 3, Kind: models.KindPatient}
	newChatWithMembers(t, repo, doctor, patient)

	duplicate := models.Chat{
		ID:         uuid.NewString(),
		MemberHash: models.MemberSetHash([]models.ParticipantRef{doctor, patient}),
		CreatedAt:  time.Now().UTC(),
	}
	err := repo.CreateChatWithMembers(context.Background(), &duplicate, []models.ParticipantRef{doctor, patient}, duplicate.CreatedAt)
	require.Error(t, err)
}

func TestChatRepositoryFindChatByActiveMemberSet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)

	doctor := models.ParticipantRef{ID: 7, Kind: models.KindProvider}
	patient := models.ParticipantRef{ID: 3, Kind: models.KindPatient}
	nurse := models.ParticipantRef{ID: 9, Kind: models.KindProvider}
	group := newChatWithMembers(t, repo, doctor, patient, nurse)

	found, err := repo.FindChatByActiveMemberSet(context.Background(), []models.ParticipantRef{patient, doctor, nurse})
	require.NoError(t, err)
	require.Equal(t, group.ID, found.ID)

	// a strict subset of the active members is not a match
	_, err = repo.FindChatByActiveMemberSet(context.Background(), []models.ParticipantRef{doctor, patient})
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// once the nurse leaves, the remaining pair identifies the same room
	leftAt := time.Now().UTC()
	require.NoError(t, repo.UpdateMembership(context.Background(), group.ID, nurse, MembershipPatch{LeftAt: &leftAt}))

	found, err = repo.FindChatByActiveMemberSet(context.Background(), []models.ParticipantRef{doctor, patient})
	require.NoError(t, err)
	require.Equal(t, group.ID, found.ID)

	// and the full original set no longer matches on active members alone
	_, err = repo.FindChatByActiveMemberSet(context.Background(), []models.ParticipantRef{doctor, patient, nurse})
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	stranger := models.ParticipantRef{ID: 99, Kind: models.KindPatient}
	_, err = repo.FindChatByActiveMemberSet(context.Background(), []models.ParticipantRef{doctor, stranger})
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestChatRepositoryReviveMembership(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)

	doctor := models.ParticipantRef{ID: 7, Kind: models.KindProvider}
	patient := models.ParticipantRef{ID: 3, Kind: models.KindPatient}
	chat := newChatWithMembers(t, repo, doctor, patient)

	leftAt := time.Now().UTC()
	require.NoError(t, repo.UpdateMembership(context.Background(), chat.ID, patient, MembershipPatch{LeftAt: &leftAt}))

	active, err := repo.ActiveMembershipExists(context.Background(), chat.ID, patient)
	require.NoError(t, err)
	require.False(t, active)

	require.NoError(t, repo.ReviveMembership(context.Background(), chat.ID, patient))

	active, err = repo.ActiveMembershipExists(context.Background(), chat.ID, patient)
	require.NoError(t, err)
	require.True(t, active)

	// unknown member has no row to revive
	stranger := models.ParticipantRef{ID: 99, Kind: models.KindPatient}
	err = repo.ReviveMembership(context.Background(), chat.ID, stranger)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestChatRepositoryUpdateMembershipMute(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)

	doctor := models.ParticipantRef{ID: 7, Kind: models.KindProvider}
	patient := models.ParticipantRef{ID: 3, Kind: models.KindPatient}
	chat := newChatWithMembers(t, repo, doctor, patient)

	muted := true
	require.NoError(t, repo.UpdateMembership(context.Background(), chat.ID, doctor, MembershipPatch{IsMuted: &muted}))

	memberships, err := repo.Memberships(context.Background(), chat.ID)
	require.NoError(t, err)
	for _, m := range memberships {
		if m.Ref() == doctor {
			require.True(t, m.IsMuted)
		} else {
			require.False(t, m.IsMuted)
		}
	}

	// empty patch is a no-op, not an error
	require.NoError(t, repo.UpdateMembership(context.Background(), chat.ID, doctor, MembershipPatch{}))
}

func appendTestMessage(t *testing.T, repo ChatRepository, chatID string, sender models.ParticipantRef, text string, sentAt time.Time) models.ChatMessage {
	t.Helper()
	message := models.ChatMessage{
		ID:         uuid.NewString(),
		ChatID:     chatID,
		SenderID:   sender.ID,
		SenderKind: sender.Kind,
		TextType:   models.TextTypeString,
		Text:       text,
		SentAt:     sentAt,
	}
	require.NoError(t, repo.AppendMessage(context.Background(), &message))
	return message
}

func TestChatRepositoryListMessagesPagination(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)

	doctor := models.ParticipantRef{ID: 7, Kind: models.KindProvider}
	patient := models.ParticipantRef{ID: 3, Kind: models.KindPatient}
	chat := newChatWithMembers(t, repo, doctor, patient)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		appendTestMessage(t, repo, chat.ID, patient, fmt.Sprintf("message %d", i), base.Add(time.Duration(i)*time.Minute))
	}

	all, err := repo.ListMessages(context.Background(), chat.ID, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.Equal(t, "message 0", all[0].Text, "messages should come back oldest first")
	require.Equal(t, "message 4", all[4].Text)

	// before bound pages backwards, newest-first window rendered ascending
	page, err := repo.ListMessages(context.Background(), chat.ID, base.Add(3*time.Minute), 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "message 1", page[0].Text)
	require.Equal(t, "message 2", page[1].Text)
}

func TestChatRepositorySoftDeleteMessageIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)

	doctor := models.ParticipantRef{ID: 7, Kind: models.KindProvider}
	patient := models.ParticipantRef{ID: 3, Kind: models.KindPatient}
	chat := newChatWithMembers(t, repo, doctor, patient)

	sentAt := time.Now().UTC()
	message := appendTestMessage(t, repo, chat.ID, doctor, "for your eyes only", sentAt)
	appendTestMessage(t, repo, chat.ID, patient, "still here", sentAt.Add(time.Minute))

	firstDelete := sentAt.Add(2 * time.Minute)
	require.NoError(t, repo.SoftDeleteMessage(context.Background(), message.ID, firstDelete))
	require.NoError(t, repo.SoftDeleteMessage(context.Background(), message.ID, firstDelete.Add(time.Hour)))

	stored, err := repo.FindMessageByID(context.Background(), message.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.DeletedAt)
	require.WithinDuration(t, firstDelete, *stored.DeletedAt, time.Second, "second delete must not move the timestamp")

	visible, err := repo.ListMessages(context.Background(), chat.ID, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	require.Equal(t, "still here", visible[0].Text)
}

func TestChatRepositoryLatestMessageSkipsDeleted(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)

	doctor := models.ParticipantRef{ID: 7, Kind: models.KindProvider}
	patient := models.ParticipantRef{ID: 3, Kind: models.KindPatient}
	chat := newChatWithMembers(t, repo, doctor, patient)

	base := time.Now().UTC()
	appendTestMessage(t, repo, chat.ID, patient, "older", base)
	newest := appendTestMessage(t, repo, chat.ID, doctor, "newest", base.Add(time.Minute))

	latest, err := repo.LatestMessage(context.Background(), chat.ID)
	require.NoError(t, err)
	require.Equal(t, newest.ID, latest.ID)

	require.NoError(t, repo.SoftDeleteMessage(context.Background(), newest.ID, base.Add(2*time.Minute)))

	latest, err = repo.LatestMessage(context.Background(), chat.ID)
	require.NoError(t, err)
	require.Equal(t, "older", latest.Text)
}

func TestChatRepositoryListActiveChats(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)

	doctor := models.ParticipantRef{ID: 7, Kind: models.KindProvider}
	patientA := models.ParticipantRef{ID: 3, Kind: models.KindPatient}
	patientB := models.ParticipantRef{ID: 4, Kind: models.KindPatient}

	chatA := newChatWithMembers(t, repo, doctor, patientA)
	chatB := newChatWithMembers(t, repo, doctor, patientB)
	appendTestMessage(t, repo, chatA.ID, patientA, "hello doctor", time.Now().UTC())

	// leaving chatB hides it from the doctor's list
	leftAt := time.Now().UTC()
	require.NoError(t, repo.UpdateMembership(context.Background(), chatB.ID, doctor, MembershipPatch{LeftAt: &leftAt}))

	previews, err := repo.ListActiveChats(context.Background(), doctor)
	require.NoError(t, err)
	require.Len(t, previews, 1)
	require.Equal(t, chatA.ID, previews[0].Chat.ID)
	require.NotNil(t, previews[0].LastMessage)
	require.Equal(t, "hello doctor", previews[0].LastMessage.Text)

	// patientB still sees the chat the doctor left
	previews, err = repo.ListActiveChats(context.Background(), patientB)
	require.NoError(t, err)
	require.Len(t, previews, 1)
	require.Nil(t, previews[0].LastMessage)
}
