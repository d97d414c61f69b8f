package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tripmate-api/internal/dto"
	"github.com/noah-isme/tripmate-api/internal/service"
	"github.com/noah-isme/tripmate-api/internal/utils"
)

// TripHandler exposes trip CRUD and the reminder schedule of each trip.
type TripHandler struct {
	service service.TripService
	logger  zerolog.Logger
}

// NewTripHandler constructs a trip handler.
func NewTripHandler(service service.TripService, logger zerolog.Logger) *TripHandler {
	return &TripHandler{
		service: service,
		logger:  logger.With().Str("component", "trip_handler").Logger(),
	}
}

// Register binds trip routes.
func (h *TripHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Post("/", h.create)
	router.Get("/:id", h.get)
	router.Put("/:id", h.update)
	router.Delete("/:id", h.delete)
	router.Get("/:id/schedules", h.schedules)
}

func (h *TripHandler) list(c *fiber.Ctx) error {
	trips, err := h.service.List(requestContext(c), tripOwnerFromContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to list trips")
	}
	return utils.SendSuccess(c, "trips", trips)
}

func (h *TripHandler) create(c *fiber.Ctx) error {
	var payload dto.TripCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	trip, err := h.service.Create(requestContext(c), tripOwnerFromContext(c), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to create trip")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "trip created", trip)
}

func (h *TripHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	trip, err := h.service.Get(requestContext(c), tripOwnerFromContext(c), id)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load trip")
	}
	return utils.SendSuccess(c, "trip", trip)
}

func (h *TripHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.TripUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	trip, err := h.service.Update(requestContext(c), tripOwnerFromContext(c), id, payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to update trip")
	}
	return utils.SendSuccess(c, "trip updated", trip)
}

func (h *TripHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(requestContext(c), tripOwnerFromContext(c), id); err != nil {
		return sendServiceError(c, h.logger, err, "failed to delete trip")
	}
	return utils.SendSuccess(c, "trip deleted", nil)
}

func (h *TripHandler) schedules(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	schedules, err := h.service.Schedules(requestContext(c), tripOwnerFromContext(c), id)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load schedules")
	}
	return utils.SendSuccess(c, "trip schedules", schedules)
}
