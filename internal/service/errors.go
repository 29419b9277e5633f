package service

import "errors"

// Sentinel errors surfaced to handlers, which translate them to HTTP
// statuses and realtime rejection kinds.
var (
	// ErrParticipantNotFound indicates the authenticated subject has no
	// patient or provider profile yet.
	ErrParticipantNotFound = errors.New("no participant profile for subject")
	// ErrChatNotFound indicates the chat id does not exist.
	ErrChatNotFound = errors.New("chat not found")
	// ErrMessageNotFound indicates the message id does not exist in the chat.
	ErrMessageNotFound = errors.New("message not found")
	// ErrNotificationNotFound indicates the notification does not exist or
	// belongs to another recipient.
	ErrNotificationNotFound = errors.New("notification not found")
	// ErrNotChatMember indicates the caller has no active membership in the
	// target chat.
	ErrNotChatMember = errors.New("not an active member of this chat")
	// ErrNotMessageSender indicates a delete attempt by someone other than
	// the original sender.
	ErrNotMessageSender = errors.New("only the sender may delete a message")
	// ErrEmptyMessage indicates a send with neither text nor attachment.
	ErrEmptyMessage = errors.New("message requires text or an attachment")
	// ErrAttachmentTooLarge indicates an attachment beyond the size limit.
	ErrAttachmentTooLarge = errors.New("attachment exceeds the size limit")
	// ErrTooFewParticipants indicates a chat creation request that does not
	// name at least two distinct participants.
	ErrTooFewParticipants = errors.New("chat requires at least two distinct participants")
	// ErrInvalidMembershipPatch indicates a membership update naming no field.
	ErrInvalidMembershipPatch = errors.New("membership update requires left_at or is_muted")
)
