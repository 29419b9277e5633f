package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/medlink-health/medlink-api/internal/dto"
	"github.com/medlink-health/medlink-api/internal/service"
	"github.com/medlink-health/medlink-api/internal/utils"
)

// NotificationHandler serves the per-user notification feed.
type NotificationHandler struct {
	service  service.NotificationService
	identity service.IdentityService
	logger   zerolog.Logger
}

// NewNotificationHandler constructs a handler instance.
func NewNotificationHandler(notificationService service.NotificationService, identity service.IdentityService, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		service:  notificationService,
		identity: identity,
		logger:   logger.With().Str("component", "notification_handler").Logger(),
	}
}

// Register binds the notification routes.
func (h *NotificationHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Get("/unread-count", h.unreadCount)
	router.Patch("/mark-all-read", h.markAllRead)
	router.Patch("/:id/read", h.markRead)
	router.Delete("/:id", h.remove)
}

func (h *NotificationHandler) list(c *fiber.Ctx) error {
	caller, err := participantFromRequest(c, h.identity)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid offset")
	}

	notifications, err := h.service.List(requestContext(c), caller.Ref, limit, offset)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "notifications", notifications)
}

func (h *NotificationHandler) unreadCount(c *fiber.Ctx) error {
	caller, err := participantFromRequest(c, h.identity)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	count, err := h.service.UnreadCount(requestContext(c), caller.Ref)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "unread count", dto.UnreadCountResponse{Count: count})
}

func (h *NotificationHandler) markRead(c *fiber.Ctx) error {
	caller, err := participantFromRequest(c, h.identity)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	id, err := notificationID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid notification id")
	}

	notification, err := h.service.MarkRead(requestContext(c), id, caller.Ref)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "notification read", notification)
}

func (h *NotificationHandler) markAllRead(c *fiber.Ctx) error {
	caller, err := participantFromRequest(c, h.identity)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	if err := h.service.MarkAllRead(requestContext(c), caller.Ref); err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "all notifications read", nil)
}

func (h *NotificationHandler) remove(c *fiber.Ctx) error {
	caller, err := participantFromRequest(c, h.identity)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	id, err := notificationID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid notification id")
	}

	if err := h.service.Delete(requestContext(c), id, caller.Ref); err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "notification deleted", nil)
}

func notificationID(c *fiber.Ctx) (uint, error) {
	parsed, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(parsed), nil
}
