package dto

import (
	"time"

	"github.com/medlink-health/medlink-api/internal/models"
)

// ParticipantRefRequest names one member of a chat in create requests.
type ParticipantRefRequest struct {
	ID   uint   `json:"id" validate:"required"`
	Kind string `json:"kind" validate:"required,oneof=patient provider"`
}

// Ref converts the request item into a model reference.
func (p ParticipantRefRequest) Ref() models.ParticipantRef {
	return models.ParticipantRef{ID: p.ID, Kind: models.ParticipantKind(p.Kind)}
}

// ChatCreateRequest is the payload for create-or-get chat. The caller is
// always included in the member set server-side.
type ChatCreateRequest struct {
	Participants []ParticipantRefRequest `json:"participants" validate:"required,min=1,dive"`
}

// ChatMemberResponse is the serialized view of one membership row.
type ChatMemberResponse struct {
	ParticipantID   uint       `json:"participant_id"`
	ParticipantKind string     `json:"participant_kind"`
	Name            string     `json:"name,omitempty"`
	AvatarURL       string     `json:"avatar_url,omitempty"`
	IsMuted         bool       `json:"is_muted"`
	LeftAt          *time.Time `json:"left_at,omitempty"`
}

// ChatResponse describes a chat room, optionally with a last-message preview.
type ChatResponse struct {
	ID          string               `json:"id"`
	CreatedAt   time.Time            `json:"created_at"`
	Members     []ChatMemberResponse `json:"members,omitempty"`
	LastMessage *ChatMessageResponse `json:"last_message,omitempty"`
}

// ChatDetailsResponse adds the counterpart convenience field for two-party
// rooms: the first active member that is not the caller.
type ChatDetailsResponse struct {
	ID          string               `json:"id"`
	CreatedAt   time.Time            `json:"created_at"`
	Members     []ChatMemberResponse `json:"members"`
	Counterpart *ChatMemberResponse  `json:"counterpart,omitempty"`
}

// ChatMessageSender carries the enriched sender display info attached to
// outbound messages.
type ChatMessageSender struct {
	ID        uint   `json:"id"`
	Type      string `json:"type"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ChatMessageResponse is the serialized representation of a chat message.
// For media messages Text carries the attachment filename and MediaURL a
// time-limited retrieval link; when URL signing degraded, MediaURL is empty
// and Text falls back to the raw storage key.
type ChatMessageResponse struct {
	ID         string            `json:"id"`
	ChatID     string            `json:"chat_id"`
	Sender     ChatMessageSender `json:"sender"`
	TextType   string            `json:"text_type"`
	Text       string            `json:"text"`
	MediaURL   string            `json:"media_url,omitempty"`
	Attachment map[string]any    `json:"attachment,omitempty"`
	SentAt     time.Time         `json:"sent_at"`
}

// NewChatMessageResponse converts a model into a DTO without enrichment.
func NewChatMessageResponse(message models.ChatMessage) ChatMessageResponse {
	response := ChatMessageResponse{
		ID:     message.ID,
		ChatID: message.ChatID,
		Sender: ChatMessageSender{
			ID:   message.SenderID,
			Type: string(message.SenderKind),
		},
		TextType: message.TextType,
		Text:     message.Text,
		SentAt:   message.SentAt,
	}
	if len(message.Attachment) > 0 {
		response.Attachment = map[string]any(message.Attachment)
	}
	return response
}

// NewChatMessageResponseSlice converts a slice of models into DTOs.
func NewChatMessageResponseSlice(messages []models.ChatMessage) []ChatMessageResponse {
	out := make([]ChatMessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewChatMessageResponse(message))
	}
	return out
}

// SendMessageRequest is the JSON body for posting a text message. Media
// messages arrive as multipart with a "file" part instead.
type SendMessageRequest struct {
	Text string `json:"text" validate:"omitempty,max=4000"`
}

// ChatHistoryQuery filters message history reads.
type ChatHistoryQuery struct {
	Before *time.Time `query:"before"`
	Limit  int        `query:"limit" validate:"omitempty,min=1,max=100"`
}

// MembershipUpdateRequest patches the caller's own membership row. Exactly
// the provided fields change; both nil is a bad request.
type MembershipUpdateRequest struct {
	LeftAt  *time.Time `json:"left_at"`
	IsMuted *bool      `json:"is_muted"`
}
