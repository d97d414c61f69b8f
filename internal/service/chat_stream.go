package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tripmate-api/internal/dto"
	"github.com/noah-isme/tripmate-api/internal/middleware"
	"github.com/noah-isme/tripmate-api/internal/observability"
)

const (
	chatSendBufferSize = 32
	chatPingInterval   = 30 * time.Second
)

// Websocket frame event names.
const (
	ChatEventRooms    = "rooms"
	ChatEventMessages = "messages"
	ChatEventAck      = "ack"
	ChatEventError    = "error"
)

// ChatFrame is the envelope written to websocket clients.
type ChatFrame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// ChatConnectionOptions wraps metadata extracted during the HTTP upgrade.
type ChatConnectionOptions struct {
	Actor         ChatActor
	RoomID        string
	CorrelationID string
	Context       context.Context
}

// ChatStreamer bridges synchronizer subscriptions onto websocket connections.
type ChatStreamer interface {
	ServeRooms(conn *websocket.Conn, opts ChatConnectionOptions)
	ServeRoom(conn *websocket.Conn, opts ChatConnectionOptions)
}

type chatStreamer struct {
	sync   ChatSyncService
	logger zerolog.Logger
}

// NewChatStreamer creates the websocket bridge.
func NewChatStreamer(syncService ChatSyncService, logger zerolog.Logger) ChatStreamer {
	return &chatStreamer{
		sync:   syncService,
		logger: logger.With().Str("component", "chat_stream").Logger(),
	}
}

type chatClient struct {
	conn    *websocket.Conn
	send    chan ChatFrame
	options ChatConnectionOptions
	closed  chan struct{}
	once    sync.Once
	cancel  context.CancelFunc
	logger  zerolog.Logger
}

func (s *chatStreamer) newClient(conn *websocket.Conn, opts ChatConnectionOptions) (*chatClient, context.Context) {
	base := opts.Context
	if base == nil {
		base = context.Background()
	}
	if opts.CorrelationID == "" {
		opts.CorrelationID = middleware.CorrelationIDFromContext(base)
	}
	ctx, cancel := context.WithCancel(base)

	observability.ChatConnectionsTotal().Inc()
	return &chatClient{
		conn:    conn,
		send:    make(chan ChatFrame, chatSendBufferSize),
		options: opts,
		closed:  make(chan struct{}),
		cancel:  cancel,
		logger: s.logger.With().
			Str("user_id", opts.Actor.ID).
			Str("room_id", opts.RoomID).
			Str("correlation_id", opts.CorrelationID).
			Logger(),
	}, ctx
}

// ServeRooms pushes the user's room list on every change. Inbound frames are
// only read to detect disconnects.
func (s *chatStreamer) ServeRooms(conn *websocket.Conn, opts ChatConnectionOptions) {
	client, ctx := s.newClient(conn, opts)
	defer client.close()

	rooms, err := s.sync.ObserveRoomsForUser(ctx, opts.Actor)
	if err != nil {
		client.writeError(err)
		return
	}

	go forwardSnapshots(client, rooms, ChatEventRooms)
	go client.writer()
	client.drain()
}

// ServeRoom pushes message snapshots for one room and accepts outbound
// messages from the client.
func (s *chatStreamer) ServeRoom(conn *websocket.Conn, opts ChatConnectionOptions) {
	client, ctx := s.newClient(conn, opts)
	defer client.close()

	messages, err := s.sync.ObserveMessages(ctx, opts.Actor, opts.RoomID)
	if err != nil {
		client.writeError(err)
		return
	}

	go forwardSnapshots(client, messages, ChatEventMessages)
	go client.writer()
	s.reader(ctx, client)
}

func (s *chatStreamer) reader(ctx context.Context, c *chatClient) {
	defer c.close()

	for {
		var payload dto.ChatSendRequest
		if err := c.conn.ReadJSON(&payload); err != nil {
			c.logger.Debug().Err(err).Msg("chat read loop ended")
			return
		}
		payload.RoomID = c.options.RoomID

		response, err := s.sync.SendMessage(ctx, c.options.Actor, payload)
		frame := ChatFrame{Event: ChatEventAck, Data: response}
		if err != nil {
			c.logger.Warn().Err(err).Msg("failed to process chat message")
			frame = ChatFrame{Event: ChatEventError, Error: clientError(err)}
		}

		if !c.enqueue(frame) {
			return
		}
	}
}

// drain discards inbound frames until the peer disconnects.
func (c *chatClient) drain() {
	defer c.close()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func forwardSnapshots[T any](c *chatClient, snapshots <-chan T, event string) {
	for {
		select {
		case snapshot, ok := <-snapshots:
			if !ok {
				c.close()
				return
			}
			if !c.enqueue(ChatFrame{Event: event, Data: snapshot}) {
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *chatClient) enqueue(frame ChatFrame) bool {
	select {
	case c.send <- frame:
		return true
	case <-c.closed:
		return false
	}
}

// writer is the only goroutine that writes to the connection once streaming starts.
func (c *chatClient) writer() {
	defer c.close()

	ticker := time.NewTicker(chatPingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			if err := c.conn.WriteJSON(frame); err != nil {
				c.logger.Debug().Err(err).Msg("chat write loop terminated")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.logger.Debug().Err(err).Msg("chat ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

// writeError is used before the writer goroutine starts.
func (c *chatClient) writeError(err error) {
	_ = c.conn.WriteJSON(ChatFrame{Event: ChatEventError, Error: clientError(err)})
}

func (c *chatClient) close() {
	c.once.Do(func() {
		close(c.closed)
		c.cancel()
		_ = c.conn.Close()
	})
}

func clientError(err error) string {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		return "invalid message"
	case errors.Is(err, ErrChatRoomNotFound),
		errors.Is(err, ErrChatNotMember),
		errors.Is(err, ErrChatForbidden),
		errors.Is(err, ErrChatActorRequired),
		errors.Is(err, ErrChatEmptyMessage),
		errors.Is(err, ErrChatUnavailable):
		return err.Error()
	default:
		return "internal error"
	}
}
