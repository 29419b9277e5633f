package dto

import (
	"time"

	"github.com/medlink-health/medlink-api/internal/models"
)

// NotificationCreateRequest describes the payload to raise a notification.
type NotificationCreateRequest struct {
	RecipientID   uint   `json:"recipient_id" validate:"required"`
	RecipientKind string `json:"recipient_kind" validate:"required,oneof=patient provider"`
	Type          string `json:"type" validate:"required,max=64"`
	Title         string `json:"title" validate:"omitempty,max=255"`
	Message       string `json:"message" validate:"required,min=1,max=2000"`
	ChatID        string `json:"chat_id" validate:"omitempty,max=36"`
	SenderID      uint   `json:"sender_id"`
	SenderKind    string `json:"sender_kind" validate:"omitempty,oneof=patient provider"`
	Link          string `json:"link" validate:"omitempty,max=512"`
}

// NotificationResponse represents notification data returned to clients and
// pushed as the realtime "new_notification" event.
type NotificationResponse struct {
	ID            uint       `json:"id"`
	RecipientID   uint       `json:"recipient_id"`
	RecipientKind string     `json:"recipient_kind"`
	Type          string     `json:"type"`
	Title         string     `json:"title"`
	Message       string     `json:"message"`
	ChatID        string     `json:"chat_id,omitempty"`
	SenderID      uint       `json:"sender_id,omitempty"`
	SenderKind    string     `json:"sender_kind,omitempty"`
	Link          string     `json:"link,omitempty"`
	IsRead        bool       `json:"is_read"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// NewNotificationResponse converts a notification model to a DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:            model.ID,
		RecipientID:   model.RecipientID,
		RecipientKind: string(model.RecipientKind),
		Type:          model.Type,
		Title:         model.Title,
		Message:       model.Message,
		ChatID:        model.ChatID,
		SenderID:      model.SenderID,
		SenderKind:    string(model.SenderKind),
		Link:          model.Link,
		IsRead:        model.IsRead,
		ReadAt:        model.ReadAt,
		CreatedAt:     model.CreatedAt,
	}
}

// NewNotificationResponseSlice converts a slice to DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}

// UnreadCountResponse is the payload for the unread-count endpoint.
type UnreadCountResponse struct {
	Count int64 `json:"count"`
}
