package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tripmate-api/internal/dto"
	"github.com/noah-isme/tripmate-api/internal/service"
	"github.com/noah-isme/tripmate-api/internal/utils"
)

// PushHandler accepts inbound push messages and shows them as notifications.
type PushHandler struct {
	service service.NotificationService
	logger  zerolog.Logger
}

// NewPushHandler constructs a push ingestion handler.
func NewPushHandler(service service.NotificationService, logger zerolog.Logger) *PushHandler {
	return &PushHandler{
		service: service,
		logger:  logger.With().Str("component", "push_handler").Logger(),
	}
}

// Register binds the push route.
func (h *PushHandler) Register(router fiber.Router) {
	router.Post("/", h.ingest)
}

func (h *PushHandler) ingest(c *fiber.Ctx) error {
	var payload dto.PushMessageRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	notification, err := h.service.IngestPush(requestContext(c), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to ingest push message")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "push accepted", notification)
}
