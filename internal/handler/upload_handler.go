package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tripmate-api/internal/service"
	"github.com/noah-isme/tripmate-api/internal/utils"
)

// UploadHandler accepts images that are later attached to chat messages.
type UploadHandler struct {
	service service.UploadService
	chat    service.ChatSyncService
	logger  zerolog.Logger
}

// NewUploadHandler constructs an upload handler. chat may be nil, in which
// case room membership is not checked before storing.
func NewUploadHandler(service service.UploadService, chat service.ChatSyncService, logger zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		service: service,
		chat:    chat,
		logger:  logger.With().Str("component", "upload_handler").Logger(),
	}
}

// Register wires upload routes.
func (h *UploadHandler) Register(router fiber.Router) {
	router.Post("", h.upload)
}

func (h *UploadHandler) upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	roomID := strings.TrimSpace(c.FormValue("room_id"))
	if roomID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "room_id is required")
	}

	ctx := requestContext(c)
	if h.chat != nil {
		if _, err := h.chat.GetRoom(ctx, chatActorFromContext(c), roomID); err != nil {
			return sendServiceError(c, h.logger, err, "failed to verify chat room")
		}
	}

	result, err := h.service.Upload(ctx, file, userID, roomID)
	if err != nil {
		if status, ok := uploadErrorStatus(err); ok {
			return utils.SendError(c, status, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Str("room_id", roomID).Msg("upload failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "upload failed")
	}

	if result.Reused {
		return utils.SendSuccess(c, "image already in room", result)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "upload successful", result)
}

func uploadErrorStatus(err error) (int, bool) {
	switch {
	case errors.Is(err, service.ErrUploadTooLarge):
		return fiber.StatusRequestEntityTooLarge, true
	case errors.Is(err, service.ErrUploadTypeNotAllowed), errors.Is(err, service.ErrUploadMissing):
		return fiber.StatusBadRequest, true
	default:
		return 0, false
	}
}
