package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/tripmate-api/internal/dto"
	"github.com/noah-isme/tripmate-api/internal/models"
	"github.com/noah-isme/tripmate-api/internal/observability"
	"github.com/noah-isme/tripmate-api/internal/repository"
)

const (
	pushDefaultTitle = "TripMate"
	natsFlushTimeout = 2 * time.Second
)

// Notification types produced by this service.
const (
	NotificationTypePush         = "push"
	NotificationTypeTripReminder = "trip_reminder"
)

var (
	// ErrEmptyPush indicates an inbound push carried neither a title nor a body.
	ErrEmptyPush = errors.New("push message has no title or body")
	// ErrEmptyNotification indicates the message had no content after sanitization.
	ErrEmptyNotification = errors.New("notification message empty after sanitization")
)

// NotificationService stores the user inbox and streams new entries over SSE.
// Other nodes learn about entries through NATS when configured, else Redis pub/sub.
type NotificationService interface {
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
	IngestPush(ctx context.Context, payload dto.PushMessageRequest) (dto.NotificationResponse, error)
	List(ctx context.Context, userID string, limit, offset int) ([]dto.NotificationResponse, dto.NotificationPageMeta, error)
	MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error)
	MarkAllRead(ctx context.Context, userID string) (dto.NotificationReadAllResponse, error)
	Subscribe(userID string) (<-chan dto.NotificationResponse, func())
	Start(ctx context.Context)
}

// inboxRelay is what travels between nodes. Origin lets a node skip its own entries.
type inboxRelay struct {
	Origin       string                   `json:"origin"`
	Notification dto.NotificationResponse `json:"notification"`
	RelayedAt    time.Time                `json:"relayed_at"`
}

type notificationService struct {
	repo         repository.NotificationRepository
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	relaySubject string
	pushSubject  string
	validator    *validator.Validate
	sanitizer    *bluemonday.Policy
	fanout       *inboxFanout
	origin       string
	now          func() time.Time
	logger       zerolog.Logger
	tracer       trace.Tracer
}

// NewNotificationService constructs a notification service. redisClient and
// natsConn may be nil, which keeps delivery local to this node.
func NewNotificationService(repo repository.NotificationRepository, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	svc := &notificationService{
		repo:      repo,
		redis:     redisClient,
		nats:      natsConn,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		fanout:    newInboxFanout(),
		origin:    uuid.NewString(),
		now:       time.Now,
		logger:    logger.With().Str("component", "notification_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/tripmate-api/internal/service/notification"),
	}
	if base := strings.TrimSpace(channelBase); base != "" {
		subjectBase := strings.ReplaceAll(base, ":", ".")
		svc.redisChannel = base + ":inbox"
		svc.relaySubject = subjectBase + ".inbox"
		svc.pushSubject = subjectBase + ".push"
	}
	return svc
}

// Start subscribes to the relays. It returns immediately.
//
// Every node must see every relayed entry, so the inbox relay is a plain
// subscription on exactly one transport: NATS when configured, Redis
// otherwise. Pushes use a queue group so each is stored once.
func (s *notificationService) Start(ctx context.Context) {
	switch {
	case s.relayOverNATS():
		s.subscribeNATS(ctx, s.relaySubject, "", func(msg *nats.Msg) {
			s.receiveRelay(msg.Data)
		})
	case s.redis != nil && s.redisChannel != "":
		pubsub := s.redis.Subscribe(ctx, s.redisChannel)
		// Wait for the subscription so relays published right after Start are not missed.
		if _, err := pubsub.Receive(ctx); err != nil {
			s.logger.Error().Err(err).Str("channel", s.redisChannel).Msg("notification relay subscription failed")
			_ = pubsub.Close()
		} else {
			go s.consumeRedis(ctx, pubsub)
		}
	}
	if s.nats != nil && s.pushSubject != "" {
		s.subscribeNATS(ctx, s.pushSubject, "tripmate-push", func(msg *nats.Msg) {
			s.receivePush(ctx, msg.Data)
		})
	}
	if s.nats != nil {
		if err := s.nats.FlushTimeout(natsFlushTimeout); err != nil {
			s.logger.Warn().Err(err).Msg("nats subscriptions not confirmed")
		}
	}
}

func (s *notificationService) relayOverNATS() bool {
	return s.nats != nil && s.relaySubject != ""
}

func (s *notificationService) Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, err
	}

	message := strings.TrimSpace(s.sanitizer.Sanitize(payload.Message))
	if message == "" {
		return dto.NotificationResponse{}, ErrEmptyNotification
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.publish", trace.WithAttributes(
		attribute.String("notification.user_id", payload.UserID),
		attribute.String("notification.type", payload.Type),
	))
	defer span.End()

	model := models.Notification{
		UserID:  payload.UserID,
		TripID:  payload.TripID,
		Type:    payload.Type,
		Title:   strings.TrimSpace(s.sanitizer.Sanitize(payload.Title)),
		Message: message,
	}
	if err := s.repo.Create(spanCtx, &model); err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, fmt.Errorf("store notification: %w", err)
	}

	response := dto.NewNotificationResponse(model)
	delivered := s.fanout.deliver(response)
	span.SetAttributes(attribute.Int("notification.local_streams", delivered))
	if err := s.relay(spanCtx, response); err != nil {
		s.logger.Warn().Err(err).Uint("notification_id", response.ID).Msg("failed to relay notification")
	}

	observability.NotificationsPublishedTotal().WithLabelValues(response.Type).Inc()
	return response, nil
}

// IngestPush turns an inbound push message into a stored notification. A
// missing body falls back to the title and a missing title to the app name.
// Nothing is acknowledged back to the sender.
func (s *notificationService) IngestPush(ctx context.Context, payload dto.PushMessageRequest) (dto.NotificationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, err
	}

	title := strings.TrimSpace(payload.Title)
	body := strings.TrimSpace(payload.Body)
	if title == "" && body == "" {
		return dto.NotificationResponse{}, ErrEmptyPush
	}
	if body == "" {
		body = title
	}
	if title == "" {
		title = pushDefaultTitle
	}

	return s.Publish(ctx, dto.NotificationCreateRequest{
		UserID:  payload.UserID,
		Type:    NotificationTypePush,
		Title:   title,
		Message: body,
	})
}

func (s *notificationService) List(ctx context.Context, userID string, limit, offset int) ([]dto.NotificationResponse, dto.NotificationPageMeta, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, dto.NotificationPageMeta{}, ErrChatActorRequired
	}

	limit, offset = repository.InboxPage(limit, offset)
	items, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, dto.NotificationPageMeta{}, err
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, dto.NotificationPageMeta{}, err
	}

	return dto.NewNotificationResponseSlice(items), dto.NotificationPageMeta{Limit: limit, Offset: offset, Unread: unread}, nil
}

func (s *notificationService) MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(
		attribute.String("notification.user_id", userID),
	))
	defer span.End()

	notification, err := s.repo.MarkRead(spanCtx, id, userID, s.now().UTC())
	if err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}
	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID string) (dto.NotificationReadAllResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return dto.NotificationReadAllResponse{}, ErrChatActorRequired
	}
	updated, err := s.repo.MarkAllRead(ctx, userID, s.now().UTC())
	if err != nil {
		return dto.NotificationReadAllResponse{}, err
	}
	return dto.NotificationReadAllResponse{Updated: updated}, nil
}

// Subscribe opens an inbox stream. The returned func closes it.
func (s *notificationService) Subscribe(userID string) (<-chan dto.NotificationResponse, func()) {
	ch := s.fanout.open(userID)
	observability.SSEClientsActive().Inc()

	return ch, func() {
		s.fanout.close(userID, ch)
		observability.SSEClientsActive().Dec()
	}
}

func (s *notificationService) relay(ctx context.Context, notification dto.NotificationResponse) error {
	overNATS := s.relayOverNATS()
	if !overNATS && (s.redis == nil || s.redisChannel == "") {
		return nil
	}

	payload, err := json.Marshal(inboxRelay{
		Origin:       s.origin,
		Notification: notification,
		RelayedAt:    s.now().UTC(),
	})
	if err != nil {
		return err
	}

	if overNATS {
		if err := s.nats.Publish(s.relaySubject, payload); err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		return nil
	}
	if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

func (s *notificationService) consumeRedis(ctx context.Context, pubsub *redis.PubSub) {
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("notification relay subscription closed")
			}
			return
		}
		s.receiveRelay([]byte(msg.Payload))
	}
}

func (s *notificationService) subscribeNATS(ctx context.Context, subject, queue string, handler nats.MsgHandler) {
	var (
		sub *nats.Subscription
		err error
	)
	if queue == "" {
		sub, err = s.nats.Subscribe(subject, handler)
	} else {
		sub, err = s.nats.QueueSubscribe(subject, queue, handler)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("subject", subject).Msg("failed to subscribe to nats subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Str("subject", subject).Msg("failed to drain nats subscription")
		}
	}()
}

func (s *notificationService) receiveRelay(payload []byte) {
	var relay inboxRelay
	if err := json.Unmarshal(payload, &relay); err != nil {
		s.logger.Warn().Err(err).Msg("invalid notification relay payload")
		return
	}
	if relay.Origin == s.origin || relay.Notification.UserID == "" {
		return
	}
	s.fanout.deliver(relay.Notification)
}

func (s *notificationService) receivePush(ctx context.Context, payload []byte) {
	var push dto.PushMessageRequest
	if err := json.Unmarshal(payload, &push); err != nil {
		s.logger.Warn().Err(err).Msg("invalid push payload")
		return
	}
	if _, err := s.IngestPush(ctx, push); err != nil {
		s.logger.Warn().Err(err).Str("user_id", push.UserID).Msg("failed to ingest push message")
	}
}
