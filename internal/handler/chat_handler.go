package handler

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/medlink-health/medlink-api/internal/dto"
	"github.com/medlink-health/medlink-api/internal/middleware"
	"github.com/medlink-health/medlink-api/internal/models"
	"github.com/medlink-health/medlink-api/internal/service"
	"github.com/medlink-health/medlink-api/internal/utils"
)

// ChatHandler wires the chat REST endpoints and the websocket upgrade.
type ChatHandler struct {
	service   service.ChatService
	identity  service.IdentityService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewChatHandler creates a chat handler instance.
func NewChatHandler(chatService service.ChatService, identity service.IdentityService, validate *validator.Validate, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		service:   chatService,
		identity:  identity,
		validator: validate,
		logger:    logger.With().Str("component", "chat_handler").Logger(),
	}
}

// Register binds chat routes under the provided (authenticated) router group.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Post("/chats", h.createChat)
	router.Get("/chats", h.listChats)
	router.Get("/chats/:chatId/details", h.chatDetails)
	router.Post("/chats/:chatId/messages", middleware.RateLimit("chat_send", 30, time.Minute), h.sendMessage)
	router.Get("/chats/:chatId/messages", h.listMessages)
	router.Delete("/chats/:chatId/messages/:messageId", h.deleteMessage)
	router.Patch("/chats/:chatId/membership", h.updateMembership)

	router.Use("/chat/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		profile, err := participantFromRequest(c, h.identity)
		if err != nil {
			return sendServiceError(c, h.logger, err)
		}

		c.Locals("participant_profile", profile)
		c.Locals("request_ctx", requestContext(c))
		return c.Next()
	})
	router.Get("/chat/ws", websocket.New(h.handleConnection))
}

func (h *ChatHandler) createChat(c *fiber.Ctx) error {
	caller, err := participantFromRequest(c, h.identity)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	var payload dto.ChatCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "malformed request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	others := make([]models.ParticipantRef, 0, len(payload.Participants))
	for _, participant := range payload.Participants {
		others = append(others, participant.Ref())
	}

	chat, err := h.service.CreateOrGetChat(requestContext(c), caller.Ref, others)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "chat resolved", chat)
}

func (h *ChatHandler) listChats(c *fiber.Ctx) error {
	caller, err := participantFromRequest(c, h.identity)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	chats, err := h.service.ListChats(requestContext(c), caller.Ref)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "active chats", chats)
}

func (h *ChatHandler) chatDetails(c *fiber.Ctx) error {
	caller, err := participantFromRequest(c, h.identity)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	details, err := h.service.ChatDetails(requestContext(c), c.Params("chatId"), caller.Ref)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "chat details", details)
}

// sendMessage accepts either a JSON body with text or a multipart form with
// a "file" part and optional "text" field.
func (h *ChatHandler) sendMessage(c *fiber.Ctx) error {
	caller, err := participantFromRequest(c, h.identity)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	input := service.MessageInput{}
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		input.Text = c.FormValue("text")
		if file, err := c.FormFile("file"); err == nil {
			input.File = file
		}
	} else {
		var payload dto.SendMessageRequest
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "malformed request body")
		}
		input.Text = payload.Text
	}

	message, err := h.service.SendMessage(requestContext(c), c.Params("chatId"), caller, input)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *ChatHandler) listMessages(c *fiber.Ctx) error {
	caller, err := participantFromRequest(c, h.identity)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	query := dto.ChatHistoryQuery{}
	if before := c.Query("before"); before != "" {
		parsed, err := time.Parse(time.RFC3339, before)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid before timestamp")
		}
		query.Before = &parsed
	}
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	query.Limit = limit

	messages, err := h.service.ListMessages(requestContext(c), c.Params("chatId"), caller.Ref, query)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "chat messages", messages)
}

func (h *ChatHandler) deleteMessage(c *fiber.Ctx) error {
	caller, err := participantFromRequest(c, h.identity)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	err = h.service.DeleteMessage(requestContext(c), c.Params("chatId"), c.Params("messageId"), caller.Ref)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "message deleted", nil)
}

func (h *ChatHandler) updateMembership(c *fiber.Ctx) error {
	caller, err := participantFromRequest(c, h.identity)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	var payload dto.MembershipUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "malformed request body")
	}

	if err := h.service.UpdateMembership(requestContext(c), c.Params("chatId"), caller.Ref, payload); err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "membership updated", nil)
}

func (h *ChatHandler) handleConnection(conn *websocket.Conn) {
	profile, ok := conn.Locals("participant_profile").(models.ParticipantProfile)
	if !ok {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusUnauthorized, "unauthenticated"))
		_ = conn.Close()
		return
	}

	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	correlation := middleware.CorrelationIDFromContext(baseCtx)

	h.logger.Info().Str("participant", profile.Ref.Key()).Str("correlation_id", correlation).Msg("chat websocket connected")
	h.service.ServeConnection(conn, profile, baseCtx)
	h.logger.Info().Str("participant", profile.Ref.Key()).Str("correlation_id", correlation).Msg("chat websocket disconnected")
}
