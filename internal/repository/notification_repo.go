package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/medlink-health/medlink-api/internal/models"
)

// NotificationRepository handles persistence for the per-recipient
// notification feed. Every query is scoped by recipient so one user can
// never read or mutate another user's items.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByRecipient(ctx context.Context, ref models.ParticipantRef, limit, offset int) ([]models.Notification, error)
	UnreadCount(ctx context.Context, ref models.ParticipantRef) (int64, error)
	MarkRead(ctx context.Context, id uint, ref models.ParticipantRef) (models.Notification, error)
	MarkAllRead(ctx context.Context, ref models.ParticipantRef) error
	Delete(ctx context.Context, id uint, ref models.ParticipantRef) error
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository constructs a repository backed by GORM.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, ref models.ParticipantRef, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var notifications []models.Notification
	if err := r.db.WithContext(ctx).
		Where("recipient_id = ? AND recipient_kind = ?", ref.ID, ref.Kind).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&notifications).Error; err != nil {
		return nil, err
	}

	return notifications, nil
}

func (r *notificationRepository) UnreadCount(ctx context.Context, ref models.ParticipantRef) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient_id = ? AND recipient_kind = ? AND is_read = ?", ref.ID, ref.Kind, false).
		Count(&count).Error
	return count, err
}

// MarkRead sets the read state. Marking an already-read item is a no-op
// that returns the row unchanged.
func (r *notificationRepository) MarkRead(ctx context.Context, id uint, ref models.ParticipantRef) (models.Notification, error) {
	var notification models.Notification
	if err := r.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ? AND recipient_kind = ?", id, ref.ID, ref.Kind).
		First(&notification).Error; err != nil {
		return models.Notification{}, err
	}

	if notification.IsRead {
		return notification, nil
	}

	now := time.Now().UTC()
	notification.IsRead = true
	notification.ReadAt = &now
	if err := r.db.WithContext(ctx).Save(&notification).Error; err != nil {
		return models.Notification{}, err
	}

	return notification, nil
}

// MarkAllRead flips every unread item for the recipient. Calling it with
// nothing unread succeeds without touching any row.
func (r *notificationRepository) MarkAllRead(ctx context.Context, ref models.ParticipantRef) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient_id = ? AND recipient_kind = ? AND is_read = ?", ref.ID, ref.Kind, false).
		Updates(map[string]any{"is_read": true, "read_at": now}).Error
}

func (r *notificationRepository) Delete(ctx context.Context, id uint, ref models.ParticipantRef) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ? AND recipient_kind = ?", id, ref.ID, ref.Kind).
		Delete(&models.Notification{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
