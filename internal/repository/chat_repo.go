package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/medlink-health/medlink-api/internal/models"
)

// MembershipPatch is a partial update of one membership row. Nil fields are
// left untouched.
type MembershipPatch struct {
	LeftAt  *time.Time
	IsMuted *bool
}

// ChatPreview pairs a chat with its most recent visible message for the
// chat-list endpoint.
type ChatPreview struct {
	Chat        models.Chat
	Membership  models.ChatParticipant
	LastMessage *models.ChatMessage
}

// ChatRepository persists chat rooms, memberships and messages. It carries
// no authorization of its own; callers gate access before reaching it.
type ChatRepository interface {
	CreateChatWithMembers(ctx context.Context, chat *models.Chat, members []models.ParticipantRef, joinedAt time.Time) error
	FindChatByID(ctx context.Context, id string) (models.Chat, error)
	FindChatByMemberHash(ctx context.Context, hash string) (models.Chat, error)
	FindChatByActiveMemberSet(ctx context.Context, refs []models.ParticipantRef) (models.Chat, error)
	Memberships(ctx context.Context, chatID string) ([]models.ChatParticipant, error)
	ActiveMembershipExists(ctx context.Context, chatID string, ref models.ParticipantRef) (bool, error)
	ReviveMembership(ctx context.Context, chatID string, ref models.ParticipantRef) error
	UpdateMembership(ctx context.Context, chatID string, ref models.ParticipantRef, patch MembershipPatch) error
	AppendMessage(ctx context.Context, message *models.ChatMessage) error
	FindMessageByID(ctx context.Context, id string) (models.ChatMessage, error)
	ListMessages(ctx context.Context, chatID string, before time.Time, limit int) ([]models.ChatMessage, error)
	SoftDeleteMessage(ctx context.Context, id string, deletedAt time.Time) error
	LatestMessage(ctx context.Context, chatID string) (models.ChatMessage, error)
	ListActiveChats(ctx context.Context, ref models.ParticipantRef) ([]ChatPreview, error)
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository constructs a chat repository backed by GORM.
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

// CreateChatWithMembers inserts the chat row and one active membership per
// participant in a single transaction. The unique member-hash index makes
// concurrent first-contact races surface as gorm.ErrDuplicatedKey.
func (r *chatRepository) CreateChatWithMembers(ctx context.Context, chat *models.Chat, members []models.ParticipantRef, joinedAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(chat).Error; err != nil {
			return err
		}
		for _, member := range members {
			row := models.ChatParticipant{
				ChatID:          chat.ID,
				ParticipantID:   member.ID,
				ParticipantKind: member.Kind,
				JoinedAt:        joinedAt,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *chatRepository) FindChatByID(ctx context.Context, id string) (models.Chat, error) {
	var chat models.Chat
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&chat).Error; err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

func (r *chatRepository) FindChatByMemberHash(ctx context.Context, hash string) (models.Chat, error) {
	var chat models.Chat
	if err := r.db.WithContext(ctx).Where("member_hash = ?", hash).First(&chat).Error; err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// FindChatByActiveMemberSet returns the chat whose active (left_at IS NULL)
// member set equals the given set exactly. Candidates are chats where the
// first ref is active; each candidate's active set is compared in full, so a
// chat with extra active members or missing ones never matches. When more
// than one chat matches, the oldest wins.
func (r *chatRepository) FindChatByActiveMemberSet(ctx context.Context, refs []models.ParticipantRef) (models.Chat, error) {
	if len(refs) == 0 {
		return models.Chat{}, gorm.ErrRecordNotFound
	}

	wanted := make(map[models.ParticipantRef]struct{}, len(refs))
	for _, ref := range refs {
		wanted[ref] = struct{}{}
	}

	var candidates []models.ChatParticipant
	if err := r.db.WithContext(ctx).
		Where("participant_id = ? AND participant_kind = ? AND left_at IS NULL", refs[0].ID, refs[0].Kind).
		Find(&candidates).Error; err != nil {
		return models.Chat{}, err
	}

	var match *models.Chat
	for _, candidate := range candidates {
		var active []models.ChatParticipant
		if err := r.db.WithContext(ctx).
			Where("chat_id = ? AND left_at IS NULL", candidate.ChatID).
			Find(&active).Error; err != nil {
			return models.Chat{}, err
		}
		if len(active) != len(wanted) {
			continue
		}
		equal := true
		for _, membership := range active {
			if _, ok := wanted[membership.Ref()]; !ok {
				equal = false
				break
			}
		}
		if !equal {
			continue
		}

		chat, err := r.FindChatByID(ctx, candidate.ChatID)
		if err != nil {
			return models.Chat{}, err
		}
		if match == nil || chat.CreatedAt.Before(match.CreatedAt) {
			found := chat
			match = &found
		}
	}

	if match == nil {
		return models.Chat{}, gorm.ErrRecordNotFound
	}
	return *match, nil
}

func (r *chatRepository) Memberships(ctx context.Context, chatID string) ([]models.ChatParticipant, error) {
	var memberships []models.ChatParticipant
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("joined_at ASC").
		Find(&memberships).Error; err != nil {
		return nil, err
	}
	return memberships, nil
}

func (r *chatRepository) ActiveMembershipExists(ctx context.Context, chatID string, ref models.ParticipantRef) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ChatParticipant{}).
		Where("chat_id = ? AND participant_id = ? AND participant_kind = ? AND left_at IS NULL", chatID, ref.ID, ref.Kind).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ReviveMembership clears the leave marker on a lapsed membership row. It is
// a no-op for rows that are already active.
func (r *chatRepository) ReviveMembership(ctx context.Context, chatID string, ref models.ParticipantRef) error {
	result := r.db.WithContext(ctx).
		Model(&models.ChatParticipant{}).
		Where("chat_id = ? AND participant_id = ? AND participant_kind = ?", chatID, ref.ID, ref.Kind).
		Update("left_at", nil)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *chatRepository) UpdateMembership(ctx context.Context, chatID string, ref models.ParticipantRef, patch MembershipPatch) error {
	updates := map[string]any{}
	if patch.LeftAt != nil {
		updates["left_at"] = *patch.LeftAt
	}
	if patch.IsMuted != nil {
		updates["is_muted"] = *patch.IsMuted
	}
	if len(updates) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&models.ChatParticipant{}).
		Where("chat_id = ? AND participant_id = ? AND participant_kind = ?", chatID, ref.ID, ref.Kind).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *chatRepository) AppendMessage(ctx context.Context, message *models.ChatMessage) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *chatRepository) FindMessageByID(ctx context.Context, id string) (models.ChatMessage, error) {
	var message models.ChatMessage
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&message).Error; err != nil {
		return models.ChatMessage{}, err
	}
	return message, nil
}

// ListMessages returns non-deleted messages in ascending sent-at order. A
// non-zero before bound makes the read restartable for paging backwards.
func (r *chatRepository) ListMessages(ctx context.Context, chatID string, before time.Time, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := r.db.WithContext(ctx).
		Where("chat_id = ? AND deleted_at IS NULL", chatID)
	if !before.IsZero() {
		query = query.Where("sent_at < ?", before)
	}

	var messages []models.ChatMessage
	if err := query.Order("sent_at DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	// Reverse into chronological ascending order for clients.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// SoftDeleteMessage records the logical delete. Deleting an already-deleted
// message is a no-op, so concurrent deletes of the same id are idempotent.
func (r *chatRepository) SoftDeleteMessage(ctx context.Context, id string, deletedAt time.Time) error {
	var message models.ChatMessage
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&message).Error; err != nil {
		return err
	}
	if message.DeletedAt != nil {
		return nil
	}

	return r.db.WithContext(ctx).
		Model(&models.ChatMessage{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("deleted_at", deletedAt).Error
}

func (r *chatRepository) LatestMessage(ctx context.Context, chatID string) (models.ChatMessage, error) {
	var message models.ChatMessage
	err := r.db.WithContext(ctx).
		Where("chat_id = ? AND deleted_at IS NULL", chatID).
		Order("sent_at DESC").
		First(&message).Error
	if err != nil {
		return models.ChatMessage{}, err
	}
	return message, nil
}

func (r *chatRepository) ListActiveChats(ctx context.Context, ref models.ParticipantRef) ([]ChatPreview, error) {
	var memberships []models.ChatParticipant
	if err := r.db.WithContext(ctx).
		Where("participant_id = ? AND participant_kind = ? AND left_at IS NULL", ref.ID, ref.Kind).
		Find(&memberships).Error; err != nil {
		return nil, err
	}

	previews := make([]ChatPreview, 0, len(memberships))
	for _, membership := range memberships {
		chat, err := r.FindChatByID(ctx, membership.ChatID)
		if err != nil {
			return nil, err
		}

		preview := ChatPreview{Chat: chat, Membership: membership}
		last, err := r.LatestMessage(ctx, membership.ChatID)
		switch {
		case err == nil:
			preview.LastMessage = &last
		case errors.Is(err, gorm.ErrRecordNotFound):
			// room without messages yet
		default:
			return nil, err
		}

		previews = append(previews, preview)
	}

	return previews, nil
}
