package handler

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tripmate-api/internal/dto"
	"github.com/noah-isme/tripmate-api/internal/middleware"
	"github.com/noah-isme/tripmate-api/internal/service"
	"github.com/noah-isme/tripmate-api/internal/utils"
)

// ChatHandler wires chat endpoints including the websocket upgrades.
type ChatHandler struct {
	service  service.ChatSyncService
	streamer service.ChatStreamer
	logger   zerolog.Logger
}

// NewChatHandler creates a chat handler instance.
func NewChatHandler(service service.ChatSyncService, streamer service.ChatStreamer, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		service:  service,
		streamer: streamer,
		logger:   logger.With().Str("component", "chat_handler").Logger(),
	}
}

// Register binds chat routes under the provided router group.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			// The fasthttp request is recycled after the upgrade, so the
			// stream gets a detached context carrying only the correlation id.
			c.Locals("request_ctx", middleware.ContextWithCorrelation(context.Background(), middleware.GetCorrelationID(c)))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws/rooms", websocket.New(h.handleRoomsConnection))
	router.Get("/ws/rooms/:id", websocket.New(h.handleRoomConnection))

	router.Get("/rooms", h.listRooms)
	router.Post("/rooms", h.createRoom)
	router.Post("/rooms/friend", h.openFriendRoom)
	router.Get("/rooms/:id", h.getRoom)
	router.Post("/rooms/:id/messages", h.sendMessage)
	router.Get("/rooms/:id/history", h.history)
	router.Post("/rooms/:id/members", h.invite)
	router.Post("/rooms/:id/members/email", h.inviteByEmail)
	router.Delete("/rooms/:id/members/:memberId", h.removeMember)
	router.Delete("/rooms/:id/invites", h.removeInvite)
	router.Post("/sync", h.sync)
}

func (h *ChatHandler) listRooms(c *fiber.Ctx) error {
	rooms, err := h.service.ListRooms(requestContext(c), chatActorFromContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to list chat rooms")
	}
	return utils.SendSuccess(c, "chat rooms", rooms)
}

func (h *ChatHandler) createRoom(c *fiber.Ctx) error {
	var payload dto.ChatRoomCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	room, err := h.service.CreateRoom(requestContext(c), chatActorFromContext(c), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to create chat room")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "chat room created", room)
}

func (h *ChatHandler) openFriendRoom(c *fiber.Ctx) error {
	var payload dto.FriendRoomRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	room, err := h.service.OpenFriendRoom(requestContext(c), chatActorFromContext(c), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to open friend room")
	}
	return utils.SendSuccess(c, "friend room", room)
}

func (h *ChatHandler) getRoom(c *fiber.Ctx) error {
	room, err := h.service.GetRoom(requestContext(c), chatActorFromContext(c), c.Params("id"))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load chat room")
	}
	return utils.SendSuccess(c, "chat room", room)
}

// sendMessage answers 201 once the remote store confirmed the write and 202
// when the message is only cached and waits for a resync.
func (h *ChatHandler) sendMessage(c *fiber.Ctx) error {
	var payload dto.ChatSendRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	payload.RoomID = c.Params("id")

	message, err := h.service.SendMessage(requestContext(c), chatActorFromContext(c), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to send message")
	}
	if !message.Synced {
		return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "message queued for sync", message)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *ChatHandler) history(c *fiber.Ctx) error {
	var beforePtr *time.Time
	if before := c.Query("before"); before != "" {
		parsed, err := time.Parse(time.RFC3339, before)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid before timestamp")
		}
		beforePtr = &parsed
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	query := dto.ChatHistoryQuery{
		RoomID: c.Params("id"),
		Before: beforePtr,
		Limit:  limit,
	}

	messages, err := h.service.History(requestContext(c), chatActorFromContext(c), query)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load chat history")
	}
	return utils.SendSuccess(c, "chat history", messages)
}

func (h *ChatHandler) invite(c *fiber.Ctx) error {
	var payload dto.ChatMemberRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if strings.TrimSpace(payload.MemberID) == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "member_id required")
	}

	room, err := h.service.Invite(requestContext(c), chatActorFromContext(c), c.Params("id"), payload.MemberID)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to add member")
	}
	return utils.SendSuccess(c, "member added", room)
}

func (h *ChatHandler) inviteByEmail(c *fiber.Ctx) error {
	var payload dto.ChatMemberEmailRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	room, err := h.service.InviteByEmail(requestContext(c), chatActorFromContext(c), c.Params("id"), payload.Email)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to add member")
	}
	return utils.SendSuccess(c, "member added", room)
}

func (h *ChatHandler) removeMember(c *fiber.Ctx) error {
	room, err := h.service.Remove(requestContext(c), chatActorFromContext(c), c.Params("id"), c.Params("memberId"), c.Query("email"))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to remove member")
	}
	return utils.SendSuccess(c, "member removed", room)
}

func (h *ChatHandler) removeInvite(c *fiber.Ctx) error {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "email required")
	}

	room, err := h.service.RemoveEmail(requestContext(c), chatActorFromContext(c), c.Params("id"), email)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to withdraw invite")
	}
	return utils.SendSuccess(c, "invite withdrawn", room)
}

func (h *ChatHandler) sync(c *fiber.Ctx) error {
	result, err := h.service.SyncUnsyncedMessages(requestContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to sync messages")
	}
	return utils.SendSuccess(c, "chat sync completed", result)
}

func (h *ChatHandler) handleRoomsConnection(conn *websocket.Conn) {
	opts, ok := h.connectionOptions(conn)
	if !ok {
		return
	}

	h.logger.Info().Str("user_id", opts.Actor.ID).Msg("chat rooms websocket connected")
	h.streamer.ServeRooms(conn, opts)
	h.logger.Info().Str("user_id", opts.Actor.ID).Msg("chat rooms websocket disconnected")
}

func (h *ChatHandler) handleRoomConnection(conn *websocket.Conn) {
	opts, ok := h.connectionOptions(conn)
	if !ok {
		return
	}

	opts.RoomID = strings.TrimSpace(conn.Params("id"))
	if opts.RoomID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "room id required"))
		_ = conn.Close()
		return
	}

	h.logger.Info().Str("user_id", opts.Actor.ID).Str("room_id", opts.RoomID).Msg("chat websocket connected")
	h.streamer.ServeRoom(conn, opts)
	h.logger.Info().Str("user_id", opts.Actor.ID).Str("room_id", opts.RoomID).Msg("chat websocket disconnected")
}

func (h *ChatHandler) connectionOptions(conn *websocket.Conn) (service.ChatConnectionOptions, bool) {
	actor := service.ChatActor{
		ID:    websocketLocal(conn, middleware.LocalUserID),
		Email: websocketLocal(conn, middleware.LocalUserEmail),
		Name:  websocketLocal(conn, middleware.LocalUserName),
	}
	if actor.ID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "user id missing"))
		_ = conn.Close()
		return service.ChatConnectionOptions{}, false
	}

	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	return service.ChatConnectionOptions{
		Actor:         actor,
		CorrelationID: websocketLocal(conn, "correlation_id"),
		Context:       baseCtx,
	}, true
}

func websocketLocal(conn *websocket.Conn, key string) string {
	if value, ok := conn.Locals(key).(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
