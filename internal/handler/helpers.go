package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/medlink-health/medlink-api/internal/middleware"
	"github.com/medlink-health/medlink-api/internal/models"
	"github.com/medlink-health/medlink-api/internal/service"
	"github.com/medlink-health/medlink-api/internal/utils"
)

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

// participantFromRequest resolves the verified token subject to the internal
// participant profile. The caller must already have passed the auth
// middleware.
func participantFromRequest(c *fiber.Ctx, identity service.IdentityService) (models.ParticipantProfile, error) {
	claims, ok := middleware.ClaimsFromCtx(c)
	if !ok {
		return models.ParticipantProfile{}, errUnauthenticated
	}

	return identity.Resolve(requestContext(c), service.IdentityClaims{
		Subject: claims.Subject,
		Groups:  claims.Groups,
	})
}

var errUnauthenticated = errors.New("authentication required")

// sendServiceError translates service sentinels into the HTTP error
// taxonomy. Unrecognised errors are logged and masked as internal.
func sendServiceError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	switch {
	case errors.Is(err, errUnauthenticated):
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrNotChatMember), errors.Is(err, service.ErrNotMessageSender):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrChatNotFound),
		errors.Is(err, service.ErrMessageNotFound),
		errors.Is(err, service.ErrNotificationNotFound),
		errors.Is(err, service.ErrParticipantNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrAttachmentTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrTooFewParticipants),
		errors.Is(err, service.ErrInvalidMembershipPatch),
		isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		logger.Error().Err(err).Str("correlation_id", middleware.GetCorrelationID(c)).Msg("request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal error")
	}
}

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}
