package dto

import (
	"encoding/json"
	"time"
)

// Realtime event names exchanged over the websocket connection.
const (
	EventJoinChat        = "join_chat"
	EventLeaveChat       = "leave_chat"
	EventSendMessage     = "send_message"
	EventReceiveMessage  = "receive_message"
	EventNewNotification = "new_notification"
	EventSystem          = "system"
	EventError           = "error"
)

// WSEnvelope wraps every frame in both directions with an explicit event
// name, so handlers never sniff payload shapes.
type WSEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// WSOutbound is a server-to-client frame with an already-encodable payload.
type WSOutbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// WSJoinChatRequest subscribes the connection to a room, either directly by
// chat id (membership re-verified) or by naming a counterpart participant,
// in which case the room is resolved or created.
type WSJoinChatRequest struct {
	ChatID          string     `json:"chat_id"`
	ParticipantID   uint       `json:"participant_id"`
	ParticipantKind string     `json:"participant_kind" validate:"omitempty,oneof=patient provider"`
	Timestamp       *time.Time `json:"timestamp"`
}

// WSLeaveChatRequest unsubscribes the connection from a room. It does not
// touch membership rows; disconnecting is not leaving the chat.
type WSLeaveChatRequest struct {
	ChatID string `json:"chat_id" validate:"required"`
}

// WSSendMessageRequest posts a text message through the realtime connection.
type WSSendMessageRequest struct {
	ChatID    string     `json:"chat_id" validate:"required,max=36"`
	Text      string     `json:"text" validate:"required,min=1,max=4000"`
	Timestamp *time.Time `json:"timestamp"`
}

// WSSystemEvent announces membership transitions to room subscribers.
type WSSystemEvent struct {
	ChatID          string    `json:"chat_id"`
	Action          string    `json:"action"`
	ParticipantID   uint      `json:"participant_id"`
	ParticipantKind string    `json:"participant_kind"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// WSErrorEvent reports a rejected realtime action back to the client.
type WSErrorEvent struct {
	Event   string `json:"event"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
