package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// TextTypeString marks a message whose Text column carries inline text.
// Any other text type is a media MIME tag and Text carries a blob storage key.
const TextTypeString = "string"

// TextTypeSystem marks synthetic membership events pushed over the realtime
// connection. System messages are never persisted.
const TextTypeSystem = "system"

// Chat is a room connecting an unordered set of participants. A chat is
// identified by its currently-active member set; the member hash records the
// canonical key set the room was created with, and its unique index is what
// collapses concurrent first-contact inserts for the same set into one row.
type Chat struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	MemberHash string    `gorm:"size:64;uniqueIndex;not null" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// MemberSetHash returns the canonical hash for an unordered participant set.
// The input is deduplicated and sorted so any ordering of the same set
// produces the same hash.
func MemberSetHash(refs []ParticipantRef) string {
	keys := make([]string, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		key := ref.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	sum := sha256.Sum256([]byte(strings.Join(keys, "|")))
	return hex.EncodeToString(sum[:])
}

// ChatParticipant is the join row between a chat and a participant. Leaving
// sets LeftAt instead of deleting the row, so history survives and re-adding
// a departed member revives the row rather than inserting a duplicate.
type ChatParticipant struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	ChatID          string          `gorm:"size:36;not null;uniqueIndex:idx_chat_member" json:"chat_id"`
	ParticipantID   uint            `gorm:"not null;uniqueIndex:idx_chat_member;index" json:"participant_id"`
	ParticipantKind ParticipantKind `gorm:"size:16;not null;uniqueIndex:idx_chat_member" json:"participant_kind"`
	JoinedAt        time.Time       `json:"joined_at"`
	LeftAt          *time.Time      `json:"left_at"`
	IsMuted         bool            `gorm:"not null;default:false" json:"is_muted"`
}

// Ref returns the participant reference for the membership row.
func (m ChatParticipant) Ref() ParticipantRef {
	return ParticipantRef{ID: m.ParticipantID, Kind: m.ParticipantKind}
}

// Active reports whether the membership is current (no recorded leave time).
func (m ChatParticipant) Active() bool {
	return m.LeftAt == nil
}

// ChatMessage is a post to a chat. TextType decides how Text is read:
// "string" means inline text, anything else is a media MIME tag and Text is
// the blob storage key. DeletedAt, once set, permanently excludes the row
// from read paths while keeping it for audit.
type ChatMessage struct {
	ID         string            `gorm:"primaryKey;size:36" json:"id"`
	ChatID     string            `gorm:"size:36;not null;index" json:"chat_id"`
	SenderID   uint              `gorm:"not null;index" json:"sender_id"`
	SenderKind ParticipantKind   `gorm:"size:16;not null" json:"sender_kind"`
	TextType   string            `gorm:"size:64;not null;default:string" json:"text_type"`
	Text       string            `gorm:"type:text" json:"text"`
	Attachment datatypes.JSONMap `gorm:"type:json" json:"attachment,omitempty"`
	SentAt     time.Time         `gorm:"not null;index" json:"sent_at"`
	DeletedAt  *time.Time        `json:"deleted_at,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// SenderRef returns the participant reference of the message sender.
func (m ChatMessage) SenderRef() ParticipantRef {
	return ParticipantRef{ID: m.SenderID, Kind: m.SenderKind}
}

// HasMedia reports whether the message text carries a blob storage key
// instead of inline text.
func (m ChatMessage) HasMedia() bool {
	return m.TextType != TextTypeString && m.TextType != TextTypeSystem && m.TextType != ""
}

// Notification is a durable per-recipient feed item with independent read
// state. Recipient scoping on every query is what keeps feeds private.
type Notification struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	RecipientID   uint            `gorm:"not null;index:idx_notification_recipient" json:"recipient_id"`
	RecipientKind ParticipantKind `gorm:"size:16;not null;index:idx_notification_recipient" json:"recipient_kind"`
	Type          string          `gorm:"size:64" json:"type"`
	Title         string          `gorm:"size:255" json:"title"`
	Message       string          `gorm:"type:text" json:"message"`
	ChatID        string          `gorm:"size:36;index" json:"chat_id"`
	SenderID      uint            `json:"sender_id"`
	SenderKind    ParticipantKind `gorm:"size:16" json:"sender_kind"`
	Link          string          `gorm:"size:512" json:"link"`
	IsRead        bool            `gorm:"not null;default:false" json:"is_read"`
	ReadAt        *time.Time      `json:"read_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
