package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/medlink-health/medlink-api/internal/dto"
	"github.com/medlink-health/medlink-api/internal/models"
	"github.com/medlink-health/medlink-api/internal/observability"
)

// chatHub owns all realtime routing state: which connections subscribe to
// which rooms. It is keyed by chat id, populated on join and torn down on
// disconnect; membership rows are never touched from here.
type chatHub struct {
	mu    sync.RWMutex
	rooms map[string]map[*chatClient]struct{}
	log   zerolog.Logger
}

func newChatHub(logger zerolog.Logger) *chatHub {
	return &chatHub{
		rooms: make(map[string]map[*chatClient]struct{}),
		log:   logger.With().Str("component", "chat_hub").Logger(),
	}
}

// chatClient is one authenticated websocket connection. A connection can
// subscribe to many rooms; the send channel serializes all outbound frames
// so per-connection delivery order matches the order frames were enqueued.
type chatClient struct {
	conn        *websocket.Conn
	send        chan dto.WSOutbound
	profile     models.ParticipantProfile
	service     *chatService
	rooms       map[string]struct{}
	roomsMu     sync.Mutex
	closed      chan struct{}
	once        sync.Once
	baseCtx     context.Context
	unsubscribe func()
}

// ServeConnection runs an authenticated realtime connection until transport
// close. The caller has already verified the handshake token and resolved
// the participant profile; a failed handshake never reaches this point.
func (s *chatService) ServeConnection(conn *websocket.Conn, profile models.ParticipantProfile, baseCtx context.Context) {
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	client := &chatClient{
		conn:    conn,
		send:    make(chan dto.WSOutbound, chatSendBufferSize),
		profile: profile,
		service: s,
		rooms:   make(map[string]struct{}),
		closed:  make(chan struct{}),
		baseCtx: baseCtx,
	}

	notifications, cleanup := s.notifier.Subscribe(profile.Ref.Key())
	client.unsubscribe = cleanup

	observability.ChatConnectionsActive().Inc()
	defer observability.ChatConnectionsActive().Dec()

	go client.writer(notifications)
	client.reader()
}

func (c *chatClient) reader() {
	defer c.close()

	for {
		var envelope dto.WSEnvelope
		if err := c.conn.ReadJSON(&envelope); err != nil {
			c.service.logger.Debug().Err(err).Str("participant", c.profile.Ref.Key()).Msg("chat read loop ended")
			return
		}

		switch envelope.Event {
		case dto.EventJoinChat:
			c.handleJoin(envelope.Data)
		case dto.EventLeaveChat:
			c.handleLeave(envelope.Data)
		case dto.EventSendMessage:
			c.handleSend(envelope.Data)
		default:
			c.reject(envelope.Event, "bad_request", "unknown event")
		}
	}
}

// handleJoin subscribes the connection to a room: directly by chat id with
// the membership guard re-run, or by counterpart participant, resolving or
// creating the room through the session manager.
func (c *chatClient) handleJoin(data json.RawMessage) {
	var payload dto.WSJoinChatRequest
	if err := json.Unmarshal(data, &payload); err != nil {
		c.reject(dto.EventJoinChat, "bad_request", "malformed join payload")
		return
	}

	s := c.service
	chatID := payload.ChatID

	switch {
	case chatID != "":
		if _, err := s.findChat(c.baseCtx, chatID); err != nil {
			c.rejectErr(dto.EventJoinChat, err)
			return
		}
		if err := s.assertActiveMember(c.baseCtx, chatID, c.profile.Ref); err != nil {
			c.rejectErr(dto.EventJoinChat, err)
			return
		}
	case payload.ParticipantID != 0:
		counterpart := models.ParticipantRef{
			ID:   payload.ParticipantID,
			Kind: models.ParticipantKind(payload.ParticipantKind),
		}
		chat, err := s.CreateOrGetChat(c.baseCtx, c.profile.Ref, []models.ParticipantRef{counterpart})
		if err != nil {
			c.rejectErr(dto.EventJoinChat, err)
			return
		}
		chatID = chat.ID
	default:
		c.reject(dto.EventJoinChat, "bad_request", "chat_id or participant_id required")
		return
	}

	s.hub.join(chatID, c)

	c.enqueue(dto.WSOutbound{Event: dto.EventSystem, Data: dto.WSSystemEvent{
		ChatID:          chatID,
		Action:          "subscribed",
		ParticipantID:   c.profile.Ref.ID,
		ParticipantKind: string(c.profile.Ref.Kind),
		OccurredAt:      time.Now().UTC(),
	}})

	if last := s.fetchLastMessage(c.baseCtx, chatID); last != nil {
		c.enqueue(dto.WSOutbound{Event: dto.EventReceiveMessage, Data: *last})
	}
}

func (c *chatClient) handleLeave(data json.RawMessage) {
	var payload dto.WSLeaveChatRequest
	if err := json.Unmarshal(data, &payload); err != nil || payload.ChatID == "" {
		c.reject(dto.EventLeaveChat, "bad_request", "chat_id required")
		return
	}
	c.service.hub.leave(payload.ChatID, c)
}

func (c *chatClient) handleSend(data json.RawMessage) {
	var payload dto.WSSendMessageRequest
	if err := json.Unmarshal(data, &payload); err != nil {
		c.reject(dto.EventSendMessage, "bad_request", "malformed message payload")
		return
	}
	if err := c.service.validator.Struct(payload); err != nil {
		c.reject(dto.EventSendMessage, "bad_request", err.Error())
		return
	}

	_, err := c.service.SendMessage(c.baseCtx, payload.ChatID, c.profile, MessageInput{Text: payload.Text})
	if err != nil {
		c.rejectErr(dto.EventSendMessage, err)
	}
	// The sender receives the message through room fan-out like everyone else.
}

// writer is the single goroutine writing to the connection. It multiplexes
// room fan-out, the participant's notification stream and keepalive pings.
func (c *chatClient) writer(notifications <-chan dto.NotificationResponse) {
	defer c.close()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				c.service.logger.Debug().Err(err).Msg("chat write loop terminated")
				return
			}
		case notification, ok := <-notifications:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(dto.WSOutbound{Event: dto.EventNewNotification, Data: notification}); err != nil {
				c.service.logger.Debug().Err(err).Msg("notification push failed")
				return
			}
		case <-ping.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.service.logger.Debug().Err(err).Msg("chat ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *chatClient) enqueue(frame dto.WSOutbound) {
	select {
	case <-c.closed:
	case c.send <- frame:
	default:
		c.service.logger.Warn().Str("participant", c.profile.Ref.Key()).Msg("dropping frame for slow chat client")
	}
}

func (c *chatClient) reject(event, kind, message string) {
	c.enqueue(dto.WSOutbound{Event: dto.EventError, Data: dto.WSErrorEvent{
		Event:   event,
		Kind:    kind,
		Message: message,
	}})
}

func (c *chatClient) rejectErr(event string, err error) {
	switch {
	case errors.Is(err, ErrChatNotFound), errors.Is(err, ErrMessageNotFound), errors.Is(err, ErrParticipantNotFound):
		c.reject(event, "not_found", err.Error())
	case errors.Is(err, ErrNotChatMember), errors.Is(err, ErrNotMessageSender):
		c.reject(event, "forbidden", err.Error())
	case errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrAttachmentTooLarge), errors.Is(err, ErrTooFewParticipants):
		c.reject(event, "bad_request", err.Error())
	default:
		c.service.logger.Error().Err(err).Str("event", event).Msg("realtime action failed")
		c.reject(event, "internal", "internal error")
	}
}

// close tears down all routing state for the connection. In-flight frames
// already fanned out are not retracted; nothing persistent changes.
func (c *chatClient) close() {
	c.once.Do(func() {
		close(c.closed)
		c.service.hub.drop(c)
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		_ = c.conn.Close()
	})
}

func (h *chatHub) join(chatID string, client *chatClient) {
	h.mu.Lock()
	if _, exists := h.rooms[chatID]; !exists {
		h.rooms[chatID] = make(map[*chatClient]struct{})
	}
	h.rooms[chatID][client] = struct{}{}
	h.mu.Unlock()

	client.roomsMu.Lock()
	client.rooms[chatID] = struct{}{}
	client.roomsMu.Unlock()

	h.log.Debug().Str("chat_id", chatID).Str("participant", client.profile.Ref.Key()).Msg("chat client subscribed")
}

func (h *chatHub) leave(chatID string, client *chatClient) {
	h.mu.Lock()
	if clients, ok := h.rooms[chatID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, chatID)
		}
	}
	h.mu.Unlock()

	client.roomsMu.Lock()
	delete(client.rooms, chatID)
	client.roomsMu.Unlock()
}

// drop removes the connection from every room it joined.
func (h *chatHub) drop(client *chatClient) {
	client.roomsMu.Lock()
	subscribed := make([]string, 0, len(client.rooms))
	for chatID := range client.rooms {
		subscribed = append(subscribed, chatID)
	}
	client.rooms = make(map[string]struct{})
	client.roomsMu.Unlock()

	h.mu.Lock()
	for _, chatID := range subscribed {
		if clients, ok := h.rooms[chatID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.rooms, chatID)
			}
		}
	}
	h.mu.Unlock()

	h.log.Debug().Str("participant", client.profile.Ref.Key()).Msg("chat client disconnected")
}

func (h *chatHub) broadcastMessage(message dto.ChatMessageResponse) {
	h.broadcast(message.ChatID, dto.WSOutbound{Event: dto.EventReceiveMessage, Data: message})
}

func (h *chatHub) broadcastSystem(chatID string, event dto.WSSystemEvent) {
	h.broadcast(chatID, dto.WSOutbound{Event: dto.EventSystem, Data: event})
}

func (h *chatHub) broadcast(chatID string, frame dto.WSOutbound) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[chatID] {
		client.enqueue(frame)
	}
}

func (s *chatService) cacheLastMessage(ctx context.Context, message dto.ChatMessageResponse) {
	if s.redis == nil || s.redisCache == "" {
		return
	}

	payload, err := json.Marshal(message)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal chat message for cache")
		return
	}

	key := fmt.Sprintf("%s:%s", s.redisCache, message.ChatID)
	if err := s.redis.Set(ctx, key, payload, chatRedisTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache chat message")
	}
}

func (s *chatService) fetchLastMessage(ctx context.Context, chatID string) *dto.ChatMessageResponse {
	if s.redis == nil || s.redisCache == "" {
		return nil
	}

	key := fmt.Sprintf("%s:%s", s.redisCache, chatID)
	result, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		return nil
	}

	var message dto.ChatMessageResponse
	if err := json.Unmarshal([]byte(result), &message); err != nil {
		s.logger.Warn().Err(err).Msg("failed to unmarshal cached chat message")
		return nil
	}

	return &message
}

func (s *chatService) publish(ctx context.Context, message dto.ChatMessageResponse) error {
	event := chatEvent{
		Source:  s.nodeID,
		Message: message,
		SentAt:  time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(ctx, s.redisStream, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (s *chatService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("chat redis subscription closed")
			return
		}
		s.handleEvent([]byte(msg.Payload))
	}
}

func (s *chatService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "medlink-chat", func(msg *nats.Msg) {
		s.handleEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats chat subject")
		return
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain chat nats subscription")
		}
	}()
}

// handleEvent delivers messages persisted by other nodes to local
// subscribers of the room.
func (s *chatService) handleEvent(data []byte) {
	var event chatEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid chat event")
		return
	}

	if event.Source == s.nodeID {
		return
	}

	s.hub.broadcastMessage(event.Message)
}
