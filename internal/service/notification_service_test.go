package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/medlink-health/medlink-api/internal/dto"
	"github.com/medlink-health/medlink-api/internal/models"
)

type memNotificationRepo struct {
	items  []models.Notification
	nextID uint
}

func (r *memNotificationRepo) Create(_ context.Context, notification *models.Notification) error {
	r.nextID++
	notification.ID = r.nextID
	notification.CreatedAt = time.Now().UTC()
	r.items = append(r.items, *notification)
	return nil
}

func (r *memNotificationRepo) ListByRecipient(_ context.Context, ref models.ParticipantRef, limit, offset int) ([]models.Notification, error) {
	var out []models.Notification
	for i := len(r.items) - 1; i >= 0; i-- {
		item := r.items[i]
		if item.RecipientID == ref.ID && item.RecipientKind == ref.Kind {
			out = append(out, item)
		}
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memNotificationRepo) UnreadCount(_ context.Context, ref models.ParticipantRef) (int64, error) {
	var count int64
	for _, item := range r.items {
		if item.RecipientID == ref.ID && item.RecipientKind == ref.Kind && !item.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *memNotificationRepo) MarkRead(_ context.Context, id uint, ref models.ParticipantRef) (models.Notification, error) {
	for i := range r.items {
		item := &r.items[i]
		if item.ID == id && item.RecipientID == ref.ID && item.RecipientKind == ref.Kind {
			if !item.IsRead {
				now := time.Now().UTC()
				item.IsRead = true
				item.ReadAt = &now
			}
			return *item, nil
		}
	}
	return models.Notification{}, gorm.ErrRecordNotFound
}

func (r *memNotificationRepo) MarkAllRead(_ context.Context, ref models.ParticipantRef) error {
	now := time.Now().UTC()
	for i := range r.items {
		item := &r.items[i]
		if item.RecipientID == ref.ID && item.RecipientKind == ref.Kind && !item.IsRead {
			item.IsRead = true
			item.ReadAt = &now
		}
	}
	return nil
}

func (r *memNotificationRepo) Delete(_ context.Context, id uint, ref models.ParticipantRef) error {
	for i, item := range r.items {
		if item.ID == id && item.RecipientID == ref.ID && item.RecipientKind == ref.Kind {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func newTestNotificationService(redisClient *redis.Client, channelBase string) NotificationService {
	return NewNotificationService(&memNotificationRepo{}, redisClient, channelBase, nil, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())
}

func TestNotificationServicePublishSanitizesAndStores(t *testing.T) {
	svc := newTestNotificationService(nil, "")

	recipient := models.ParticipantRef{ID: 3, Kind: models.KindPatient}
	published, err := svc.Publish(context.Background(), dto.NotificationCreateRequest{
		RecipientID:   recipient.ID,
		RecipientKind: string(recipient.Kind),
		Type:          "chat_message",
		Title:         "<b>Dr. Amira</b>",
		Message:       "<script>alert(1)</script>lab results ready",
	})
	require.NoError(t, err)
	require.Equal(t, "lab results ready", published.Message)
	require.Equal(t, "Dr. Amira", published.Title)
	require.False(t, published.IsRead)
	require.NotZero(t, published.ID)

	items, err := svc.List(context.Background(), recipient, 10, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)

	count, err := svc.UnreadCount(context.Background(), recipient)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestNotificationServicePublishRejectsInvalidPayload(t *testing.T) {
	svc := newTestNotificationService(nil, "")

	_, err := svc.Publish(context.Background(), dto.NotificationCreateRequest{
		RecipientID:   3,
		RecipientKind: "martian",
		Type:          "chat_message",
		Message:       "hello",
	})
	require.Error(t, err)

	// message that sanitizes away entirely is rejected too
	_, err = svc.Publish(context.Background(), dto.NotificationCreateRequest{
		RecipientID:   3,
		RecipientKind: "patient",
		Type:          "chat_message",
		Message:       "<script>only markup</script>",
	})
	require.Error(t, err)
}

func TestNotificationServiceMarkReadUnknownID(t *testing.T) {
	svc := newTestNotificationService(nil, "")

	recipient := models.ParticipantRef{ID: 3, Kind: models.KindPatient}
	_, err := svc.MarkRead(context.Background(), 42, recipient)
	require.ErrorIs(t, err, ErrNotificationNotFound)

	require.ErrorIs(t, svc.Delete(context.Background(), 42, recipient), ErrNotificationNotFound)
}

func TestNotificationServiceStreamsToSubscribers(t *testing.T) {
	svc := newTestNotificationService(nil, "")

	recipient := models.ParticipantRef{ID: 3, Kind: models.KindPatient}
	stream, cancel := svc.Subscribe(recipient.Key())
	defer cancel()

	otherStream, otherCancel := svc.Subscribe(models.ParticipantRef{ID: 9, Kind: models.KindPatient}.Key())
	defer otherCancel()

	_, err := svc.Publish(context.Background(), dto.NotificationCreateRequest{
		RecipientID:   recipient.ID,
		RecipientKind: string(recipient.Kind),
		Type:          "chat_message",
		Message:       "new message waiting",
	})
	require.NoError(t, err)

	select {
	case got := <-stream:
		require.Equal(t, "new message waiting", got.Message)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the published notification")
	}

	select {
	case unexpected := <-otherStream:
		t.Fatalf("notification leaked to another recipient: %+v", unexpected)
	default:
	}
}

func TestNotificationServiceMirrorsAcrossNodes(t *testing.T) {
	mr := miniredis.RunT(t)

	clientA := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clientB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = clientA.Close()
		_ = clientB.Close()
	})

	nodeA := newTestNotificationService(clientA, "medlink-test")
	nodeB := newTestNotificationService(clientB, "medlink-test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	nodeA.Start(ctx)
	nodeB.Start(ctx)

	recipient := models.ParticipantRef{ID: 3, Kind: models.KindPatient}
	stream, unsubscribe := nodeB.Subscribe(recipient.Key())
	defer unsubscribe()

	// the consumer goroutine races test startup; retry the publish until the
	// mirrored copy lands on the other node
	deadline := time.After(5 * time.Second)
	for {
		_, err := nodeA.Publish(context.Background(), dto.NotificationCreateRequest{
			RecipientID:   recipient.ID,
			RecipientKind: string(recipient.Kind),
			Type:          "chat_message",
			Message:       "mirrored across nodes",
		})
		require.NoError(t, err)

		select {
		case got := <-stream:
			require.Equal(t, "mirrored across nodes", got.Message)
			return
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("notification was never mirrored to the second node")
		}
	}
}
