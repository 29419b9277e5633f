package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/medlink-health/medlink-api/internal/dto"
	"github.com/medlink-health/medlink-api/internal/models"
	"github.com/medlink-health/medlink-api/internal/observability"
	"github.com/medlink-health/medlink-api/internal/repository"
	"github.com/medlink-health/medlink-api/pkg/cloudinary"
)

const (
	chatRedisTTL       = 30 * time.Minute
	chatSendBufferSize = 32
	maxAttachmentBytes = 25 << 20
	mediaURLTTL        = 10 * time.Minute
	previewRuneLimit   = 120
	blobCleanupTimeout = 30 * time.Second
)

// BlobStore is the external blob collaborator: key addressed durable
// storage with signed short-expiry retrieval URLs and best-effort purge.
type BlobStore interface {
	Store(ctx context.Context, name string, reader io.Reader) (key, resourceType string, err error)
	SignedURL(ctx context.Context, key, resourceType string, ttl time.Duration) (string, error)
	Destroy(ctx context.Context, key, resourceType string) error
}

// Notifier is the slice of the notification service the chat pipeline needs:
// raising one item per recipient and streaming items to live connections.
type Notifier interface {
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
	Subscribe(recipientKey string) (<-chan dto.NotificationResponse, func())
}

// MessageInput is the payload of a send: inline text, an attachment, or
// both. An attachment with empty text is valid; neither is a bad request.
type MessageInput struct {
	Text string
	File *multipart.FileHeader
}

// ChatService is the chat core: idempotent room resolution, the message
// pipeline, membership updates and the realtime gateway.
type ChatService interface {
	CreateOrGetChat(ctx context.Context, caller models.ParticipantRef, others []models.ParticipantRef) (dto.ChatResponse, error)
	ListChats(ctx context.Context, caller models.ParticipantRef) ([]dto.ChatResponse, error)
	ChatDetails(ctx context.Context, chatID string, caller models.ParticipantRef) (dto.ChatDetailsResponse, error)
	SendMessage(ctx context.Context, chatID string, sender models.ParticipantProfile, input MessageInput) (dto.ChatMessageResponse, error)
	ListMessages(ctx context.Context, chatID string, caller models.ParticipantRef, query dto.ChatHistoryQuery) ([]dto.ChatMessageResponse, error)
	DeleteMessage(ctx context.Context, chatID, messageID string, caller models.ParticipantRef) error
	UpdateMembership(ctx context.Context, chatID string, caller models.ParticipantRef, patch dto.MembershipUpdateRequest) error
	ServeConnection(conn *websocket.Conn, profile models.ParticipantProfile, baseCtx context.Context)
	Start(ctx context.Context)
}

type chatService struct {
	repo         repository.ChatRepository
	participants repository.ParticipantRepository
	notifier     Notifier
	blobs        BlobStore
	redis        *redis.Client
	redisStream  string
	redisCache   string
	nats         *nats.Conn
	natsSubject  string
	validator    *validator.Validate
	logger       zerolog.Logger
	tracer       trace.Tracer
	sanitizer    *bluemonday.Policy
	hub          *chatHub
	nodeID       string

	sendMu    sync.Mutex
	sendLocks map[string]*sync.Mutex
}

// chatEvent mirrors a fanned-out message across nodes. Events originating
// from this node are skipped on receipt.
type chatEvent struct {
	Source  string                  `json:"source"`
	Message dto.ChatMessageResponse `json:"message"`
	SentAt  time.Time               `json:"sent_at"`
}

// NewChatService creates the chat core service instance.
func NewChatService(repo repository.ChatRepository, participants repository.ParticipantRepository, notifier Notifier, blobs BlobStore, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, validate *validator.Validate, logger zerolog.Logger) ChatService {
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")

	streamChannel := ""
	cachePrefix := ""
	natsSubject := ""
	if channelBase != "" {
		streamChannel = channelBase + ":chat"
		cachePrefix = channelBase + ":chat:last"
		natsSubject = strings.ReplaceAll(channelBase, ":", ".") + ".chat"
	}

	return &chatService{
		repo:         repo,
		participants: participants,
		notifier:     notifier,
		blobs:        blobs,
		redis:        redisClient,
		redisStream:  streamChannel,
		redisCache:   cachePrefix,
		nats:         natsConn,
		natsSubject:  natsSubject,
		validator:    validate,
		logger:       logger.With().Str("component", "chat_service").Logger(),
		tracer:       otel.Tracer("github.com/medlink-health/medlink-api/internal/service/chat"),
		sanitizer:    sanitizer,
		hub:          newChatHub(logger),
		nodeID:       uuid.NewString(),
		sendLocks:    make(map[string]*sync.Mutex),
	}
}

func (s *chatService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

// chatLock returns the mutex serializing persist-then-fan-out for one chat,
// so per-connection delivery order always matches persisted sent-at order.
func (s *chatService) chatLock(chatID string) *sync.Mutex {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	lock, ok := s.sendLocks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		s.sendLocks[chatID] = lock
	}
	return lock
}

// assertActiveMember is the sole authorization boundary for chat data: an
// indexed existence check on the caller's active membership, evaluated
// before any chat-scoped read or mutation.
func (s *chatService) assertActiveMember(ctx context.Context, chatID string, ref models.ParticipantRef) error {
	active, err := s.repo.ActiveMembershipExists(ctx, chatID, ref)
	if err != nil {
		return err
	}
	if !active {
		return ErrNotChatMember
	}
	return nil
}

// CreateOrGetChat resolves the room for an unordered participant set,
// creating it when absent. Matching is on the currently-active member set:
// a room whose active members equal the requested set is reused even when
// other members have since left it. When no active set matches, the
// creation-time member hash is checked so re-contacting the full original
// set revives lapsed members instead of forking a room. The unique index on
// that hash makes two concurrent first contacts converge on one row: the
// loser of the insert race refetches the winner's chat.
func (s *chatService) CreateOrGetChat(ctx context.Context, caller models.ParticipantRef, others []models.ParticipantRef) (dto.ChatResponse, error) {
	set := normalizeRefs(append([]models.ParticipantRef{caller}, others...))
	if len(set) < 2 {
		return dto.ChatResponse{}, ErrTooFewParticipants
	}
	for _, ref := range set {
		if !ref.Kind.Valid() {
			return dto.ChatResponse{}, ErrTooFewParticipants
		}
		if _, err := s.participants.Profile(ctx, ref); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return dto.ChatResponse{}, ErrParticipantNotFound
			}
			return dto.ChatResponse{}, err
		}
	}

	spanCtx, span := s.tracer.Start(ctx, "chat.create_or_get", trace.WithAttributes(
		attribute.Int("chat.member_count", len(set)),
	))
	defer span.End()

	chat, err := s.repo.FindChatByActiveMemberSet(spanCtx, set)
	switch {
	case err == nil:
		// every requested member is already active, nothing to revive
		return s.chatResponse(spanCtx, chat)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		span.RecordError(err)
		return dto.ChatResponse{}, err
	}

	hash := models.MemberSetHash(set)

	chat, err = s.repo.FindChatByMemberHash(spanCtx, hash)
	switch {
	case err == nil:
		if err := s.reviveLapsedMembers(spanCtx, chat.ID, set); err != nil {
			return dto.ChatResponse{}, err
		}
		return s.chatResponse(spanCtx, chat)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		span.RecordError(err)
		return dto.ChatResponse{}, err
	}

	chat = models.Chat{ID: uuid.NewString(), MemberHash: hash}
	if err := s.repo.CreateChatWithMembers(spanCtx, &chat, set, time.Now().UTC()); err != nil {
		if isDuplicateKey(err) {
			existing, findErr := s.repo.FindChatByMemberHash(spanCtx, hash)
			if findErr != nil {
				return dto.ChatResponse{}, findErr
			}
			return s.chatResponse(spanCtx, existing)
		}
		span.RecordError(err)
		return dto.ChatResponse{}, err
	}

	observability.ChatsCreatedTotal().Inc()
	return s.chatResponse(spanCtx, chat)
}

func (s *chatService) ListChats(ctx context.Context, caller models.ParticipantRef) ([]dto.ChatResponse, error) {
	previews, err := s.repo.ListActiveChats(ctx, caller)
	if err != nil {
		return nil, err
	}

	out := make([]dto.ChatResponse, 0, len(previews))
	for _, preview := range previews {
		response, err := s.chatResponse(ctx, preview.Chat)
		if err != nil {
			return nil, err
		}
		if preview.LastMessage != nil {
			last := s.enrichMessage(ctx, *preview.LastMessage, nil)
			response.LastMessage = &last
		}
		out = append(out, response)
	}

	return out, nil
}

func (s *chatService) ChatDetails(ctx context.Context, chatID string, caller models.ParticipantRef) (dto.ChatDetailsResponse, error) {
	chat, err := s.findChat(ctx, chatID)
	if err != nil {
		return dto.ChatDetailsResponse{}, err
	}
	if err := s.assertActiveMember(ctx, chatID, caller); err != nil {
		return dto.ChatDetailsResponse{}, err
	}

	members, err := s.memberResponses(ctx, chatID)
	if err != nil {
		return dto.ChatDetailsResponse{}, err
	}

	details := dto.ChatDetailsResponse{
		ID:        chat.ID,
		CreatedAt: chat.CreatedAt,
		Members:   members,
	}
	for i := range members {
		member := members[i]
		if member.LeftAt != nil {
			continue
		}
		if member.ParticipantID == caller.ID && member.ParticipantKind == string(caller.Kind) {
			continue
		}
		details.Counterpart = &member
		break
	}

	return details, nil
}

// SendMessage is the single write path for messages: guard, resolve content,
// persist, enrich, fan out, notify. Blob storage failures abort the send
// before any row exists; enrichment failures only degrade the response.
func (s *chatService) SendMessage(ctx context.Context, chatID string, sender models.ParticipantProfile, input MessageInput) (dto.ChatMessageResponse, error) {
	if _, err := s.findChat(ctx, chatID); err != nil {
		return dto.ChatMessageResponse{}, err
	}
	if err := s.assertActiveMember(ctx, chatID, sender.Ref); err != nil {
		return dto.ChatMessageResponse{}, err
	}

	text := strings.TrimSpace(s.sanitizer.Sanitize(input.Text))
	if text == "" && input.File == nil {
		return dto.ChatMessageResponse{}, ErrEmptyMessage
	}

	spanCtx, span := s.tracer.Start(ctx, "chat.send", trace.WithAttributes(
		attribute.String("chat.id", chatID),
		attribute.String("chat.sender", sender.Ref.Key()),
	))
	defer span.End()

	message := models.ChatMessage{
		ID:         uuid.NewString(),
		ChatID:     chatID,
		SenderID:   sender.Ref.ID,
		SenderKind: sender.Ref.Kind,
		TextType:   models.TextTypeString,
		Text:       text,
	}

	if input.File != nil {
		if err := s.attachBlob(spanCtx, &message, sender.Ref, input.File); err != nil {
			span.RecordError(err)
			return dto.ChatMessageResponse{}, err
		}
	}

	// The room lock spans timestamping, persistence and fan-out enqueue so
	// concurrent sends to one chat reach every connection in sent-at order.
	lock := s.chatLock(chatID)
	lock.Lock()
	message.SentAt = time.Now().UTC()
	appendErr := s.repo.AppendMessage(spanCtx, &message)
	var response dto.ChatMessageResponse
	var publishErr error
	if appendErr == nil {
		response = s.enrichMessage(spanCtx, message, &sender)
		s.cacheLastMessage(spanCtx, response)
		s.hub.broadcastMessage(response)
		publishErr = s.publish(spanCtx, response)
	}
	lock.Unlock()

	if appendErr != nil {
		span.RecordError(appendErr)
		return dto.ChatMessageResponse{}, appendErr
	}
	if publishErr != nil {
		s.logger.Warn().Err(publishErr).Msg("failed to publish chat event")
	}
	s.notifyRecipients(spanCtx, message, sender)

	observability.ChatMessagesSentTotal().WithLabelValues(message.TextType).Inc()

	return response, nil
}

// attachBlob stores the attachment first; the message row only exists if
// the blob was durably written. The Text column becomes the storage key and
// TextType the declared media type.
func (s *chatService) attachBlob(ctx context.Context, message *models.ChatMessage, sender models.ParticipantRef, file *multipart.FileHeader) error {
	if file.Size > maxAttachmentBytes {
		return fmt.Errorf("attachment exceeds %d bytes: %w", int64(maxAttachmentBytes), ErrAttachmentTooLarge)
	}

	reader, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open attachment: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, maxAttachmentBytes+1))
	if err != nil {
		return fmt.Errorf("failed to read attachment: %w", err)
	}
	if int64(len(data)) > maxAttachmentBytes {
		return fmt.Errorf("attachment exceeds %d bytes: %w", int64(maxAttachmentBytes), ErrAttachmentTooLarge)
	}

	mediaType := strings.TrimSpace(file.Header.Get("Content-Type"))
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = mimetype.Detect(data).String()
	}

	name := fmt.Sprintf("chats/%s/%s/%s", message.ChatID, sender.Key(), file.Filename)
	key, resourceType, err := s.blobs.Store(ctx, name, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to store attachment: %w", err)
	}
	if resourceType == "" {
		resourceType = cloudinary.ResourceTypeFor(mediaType)
	}

	message.TextType = mediaType
	message.Text = key
	message.Attachment = datatypes.JSONMap{
		"file_name":     file.Filename,
		"mime_type":     mediaType,
		"byte_size":     len(data),
		"resource_type": resourceType,
	}

	return nil
}

func (s *chatService) ListMessages(ctx context.Context, chatID string, caller models.ParticipantRef, query dto.ChatHistoryQuery) ([]dto.ChatMessageResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}
	if _, err := s.findChat(ctx, chatID); err != nil {
		return nil, err
	}
	if err := s.assertActiveMember(ctx, chatID, caller); err != nil {
		return nil, err
	}

	before := time.Time{}
	if query.Before != nil {
		before = *query.Before
	}

	messages, err := s.repo.ListMessages(ctx, chatID, before, query.Limit)
	if err != nil {
		return nil, err
	}

	profiles := make(map[models.ParticipantRef]*models.ParticipantProfile)
	out := make([]dto.ChatMessageResponse, 0, len(messages))
	for _, message := range messages {
		ref := message.SenderRef()
		profile, seen := profiles[ref]
		if !seen {
			if resolved, err := s.participants.Profile(ctx, ref); err == nil {
				profile = &resolved
			}
			profiles[ref] = profile
		}
		out = append(out, s.enrichMessage(ctx, message, profile))
	}

	return out, nil
}

// DeleteMessage performs the authoritative logical delete synchronously and
// schedules blob purge as best-effort cleanup that can never roll it back.
// Deleting an already-deleted message is a no-op.
func (s *chatService) DeleteMessage(ctx context.Context, chatID, messageID string, caller models.ParticipantRef) error {
	message, err := s.repo.FindMessageByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMessageNotFound
		}
		return err
	}
	if message.ChatID != chatID {
		return ErrMessageNotFound
	}
	if message.SenderRef() != caller {
		return ErrNotMessageSender
	}
	if message.DeletedAt != nil {
		return nil
	}

	if err := s.repo.SoftDeleteMessage(ctx, messageID, time.Now().UTC()); err != nil {
		return err
	}

	if message.HasMedia() {
		go s.cleanupBlob(message)
	}

	return nil
}

func (s *chatService) cleanupBlob(message models.ChatMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), blobCleanupTimeout)
	defer cancel()

	resourceType := ""
	if message.Attachment != nil {
		if value, ok := message.Attachment["resource_type"].(string); ok {
			resourceType = value
		}
	}

	if err := s.blobs.Destroy(ctx, message.Text, resourceType); err != nil {
		s.logger.Warn().Err(err).Str("message_id", message.ID).Msg("blob cleanup failed after delete")
	}
}

// UpdateMembership patches the caller's own membership row. Leaving pushes a
// synthetic system event to remaining subscribers; membership rows are never
// deleted.
func (s *chatService) UpdateMembership(ctx context.Context, chatID string, caller models.ParticipantRef, patch dto.MembershipUpdateRequest) error {
	if patch.LeftAt == nil && patch.IsMuted == nil {
		return ErrInvalidMembershipPatch
	}
	if _, err := s.findChat(ctx, chatID); err != nil {
		return err
	}
	if err := s.assertActiveMember(ctx, chatID, caller); err != nil {
		return err
	}

	err := s.repo.UpdateMembership(ctx, chatID, caller, repository.MembershipPatch{
		LeftAt:  patch.LeftAt,
		IsMuted: patch.IsMuted,
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotChatMember
		}
		return err
	}

	if patch.LeftAt != nil {
		s.hub.broadcastSystem(chatID, dto.WSSystemEvent{
			ChatID:          chatID,
			Action:          "left",
			ParticipantID:   caller.ID,
			ParticipantKind: string(caller.Kind),
			OccurredAt:      *patch.LeftAt,
		})
	}

	return nil
}

func (s *chatService) findChat(ctx context.Context, chatID string) (models.Chat, error) {
	chat, err := s.repo.FindChatByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Chat{}, ErrChatNotFound
		}
		return models.Chat{}, err
	}
	return chat, nil
}

func (s *chatService) reviveLapsedMembers(ctx context.Context, chatID string, set []models.ParticipantRef) error {
	memberships, err := s.repo.Memberships(ctx, chatID)
	if err != nil {
		return err
	}

	wanted := make(map[models.ParticipantRef]struct{}, len(set))
	for _, ref := range set {
		wanted[ref] = struct{}{}
	}

	for _, membership := range memberships {
		if membership.Active() {
			continue
		}
		ref := membership.Ref()
		if _, ok := wanted[ref]; !ok {
			continue
		}
		if err := s.repo.ReviveMembership(ctx, chatID, ref); err != nil {
			return err
		}
		s.hub.broadcastSystem(chatID, dto.WSSystemEvent{
			ChatID:          chatID,
			Action:          "joined",
			ParticipantID:   ref.ID,
			ParticipantKind: string(ref.Kind),
			OccurredAt:      time.Now().UTC(),
		})
	}

	return nil
}

func (s *chatService) chatResponse(ctx context.Context, chat models.Chat) (dto.ChatResponse, error) {
	members, err := s.memberResponses(ctx, chat.ID)
	if err != nil {
		return dto.ChatResponse{}, err
	}
	return dto.ChatResponse{ID: chat.ID, CreatedAt: chat.CreatedAt, Members: members}, nil
}

func (s *chatService) memberResponses(ctx context.Context, chatID string) ([]dto.ChatMemberResponse, error) {
	memberships, err := s.repo.Memberships(ctx, chatID)
	if err != nil {
		return nil, err
	}

	members := make([]dto.ChatMemberResponse, 0, len(memberships))
	for _, membership := range memberships {
		member := dto.ChatMemberResponse{
			ParticipantID:   membership.ParticipantID,
			ParticipantKind: string(membership.ParticipantKind),
			IsMuted:         membership.IsMuted,
			LeftAt:          membership.LeftAt,
		}
		if profile, err := s.participants.Profile(ctx, membership.Ref()); err == nil {
			member.Name = profile.Name
			member.AvatarURL = profile.AvatarURL
		}
		members = append(members, member)
	}

	return members, nil
}

// enrichMessage fills in sender display info and, for media messages, a
// signed retrieval URL. Every step degrades gracefully: persistence already
// succeeded, so a signing or lookup failure must not drop the message.
func (s *chatService) enrichMessage(ctx context.Context, message models.ChatMessage, sender *models.ParticipantProfile) dto.ChatMessageResponse {
	response := dto.NewChatMessageResponse(message)

	if sender == nil {
		if profile, err := s.participants.Profile(ctx, message.SenderRef()); err == nil {
			sender = &profile
		} else {
			s.logger.Warn().Err(err).Str("sender", message.SenderRef().Key()).Msg("sender profile lookup failed")
		}
	}
	if sender != nil {
		response.Sender.Name = sender.Name
		response.Sender.AvatarURL = sender.AvatarURL
	}

	if message.HasMedia() {
		resourceType := ""
		if value, ok := message.Attachment["resource_type"].(string); ok {
			resourceType = value
		}
		// On signing failure the response keeps the raw storage key as the
		// degraded fallback; otherwise clients only ever see the filename
		// and the signed URL.
		url, err := s.blobs.SignedURL(ctx, message.Text, resourceType, mediaURLTTL)
		if err != nil {
			s.logger.Warn().Err(err).Str("message_id", message.ID).Msg("media url signing failed")
		} else {
			response.MediaURL = url
			response.Text = ""
			if name, ok := message.Attachment["file_name"].(string); ok {
				response.Text = name
			}
		}
	}

	return response
}

// notifyRecipients raises one notification per other active, unmuted member
// summarizing the message. Failures are logged and skipped: notification
// delivery is a side effect, never a reason to fail the send.
func (s *chatService) notifyRecipients(ctx context.Context, message models.ChatMessage, sender models.ParticipantProfile) {
	memberships, err := s.repo.Memberships(ctx, message.ChatID)
	if err != nil {
		s.logger.Warn().Err(err).Str("chat_id", message.ChatID).Msg("failed to load members for notification fan-out")
		return
	}

	preview := messagePreview(message)
	title := sender.Name
	if title == "" {
		title = "New message"
	}

	for _, membership := range memberships {
		if !membership.Active() || membership.IsMuted {
			continue
		}
		if membership.Ref() == sender.Ref {
			continue
		}

		_, err := s.notifier.Publish(ctx, dto.NotificationCreateRequest{
			RecipientID:   membership.ParticipantID,
			RecipientKind: string(membership.ParticipantKind),
			Type:          "chat_message",
			Title:         title,
			Message:       preview,
			ChatID:        message.ChatID,
			SenderID:      message.SenderID,
			SenderKind:    string(message.SenderKind),
			Link:          "/chats/" + message.ChatID,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("recipient", membership.Ref().Key()).Msg("failed to raise chat notification")
		}
	}
}

func messagePreview(message models.ChatMessage) string {
	if message.HasMedia() {
		if name, ok := message.Attachment["file_name"].(string); ok && name != "" {
			return "Sent an attachment: " + name
		}
		return "Sent an attachment"
	}

	runes := []rune(message.Text)
	if len(runes) <= previewRuneLimit {
		return message.Text
	}
	return string(runes[:previewRuneLimit]) + "…"
}

func normalizeRefs(refs []models.ParticipantRef) []models.ParticipantRef {
	seen := make(map[models.ParticipantRef]struct{}, len(refs))
	out := make([]models.ParticipantRef, 0, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
