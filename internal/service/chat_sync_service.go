package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/tripmate-api/internal/dto"
	"github.com/noah-isme/tripmate-api/internal/models"
	"github.com/noah-isme/tripmate-api/internal/observability"
	"github.com/noah-isme/tripmate-api/internal/remote"
	"github.com/noah-isme/tripmate-api/internal/repository"
)

const (
	chatResyncBatchSize = 100
	imageMessagePreview = "Sent a photo"
)

// ChatActor is the user on whose behalf a chat operation runs.
type ChatActor struct {
	ID    string
	Email string
	Name  string
}

// ChatSyncService reconciles the authoritative remote chat store with the local cache.
type ChatSyncService interface {
	ObserveRoomsForUser(ctx context.Context, actor ChatActor) (<-chan []dto.ChatRoomResponse, error)
	ListRooms(ctx context.Context, actor ChatActor) ([]dto.ChatRoomResponse, error)
	ObserveMessages(ctx context.Context, actor ChatActor, roomID string) (<-chan []dto.ChatMessageResponse, error)
	SendMessage(ctx context.Context, actor ChatActor, req dto.ChatSendRequest) (dto.ChatMessageResponse, error)
	SyncUnsyncedMessages(ctx context.Context) (dto.ChatSyncResponse, error)
	CreateRoom(ctx context.Context, actor ChatActor, req dto.ChatRoomCreateRequest) (dto.ChatRoomResponse, error)
	OpenFriendRoom(ctx context.Context, actor ChatActor, req dto.FriendRoomRequest) (dto.ChatRoomResponse, error)
	GetRoom(ctx context.Context, actor ChatActor, roomID string) (dto.ChatRoomResponse, error)
	History(ctx context.Context, actor ChatActor, query dto.ChatHistoryQuery) ([]dto.ChatMessageResponse, error)
	Invite(ctx context.Context, actor ChatActor, roomID, memberID string) (dto.ChatRoomResponse, error)
	InviteByEmail(ctx context.Context, actor ChatActor, roomID, email string) (dto.ChatRoomResponse, error)
	Remove(ctx context.Context, actor ChatActor, roomID, memberID, memberEmail string) (dto.ChatRoomResponse, error)
	RemoveEmail(ctx context.Context, actor ChatActor, roomID, email string) (dto.ChatRoomResponse, error)
	Close()
}

type chatSyncService struct {
	remote    remote.Store
	rooms     repository.ChatRoomRepository
	messages  repository.ChatMessageRepository
	cache     *chatCacheWriter
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewChatSyncService constructs the chat synchronizer.
func NewChatSyncService(store remote.Store, rooms repository.ChatRoomRepository, messages repository.ChatMessageRepository, validate *validator.Validate, logger zerolog.Logger) ChatSyncService {
	return newChatSyncService(store, rooms, messages, validate, logger, time.Now)
}

func newChatSyncService(store remote.Store, rooms repository.ChatRoomRepository, messages repository.ChatMessageRepository, validate *validator.Validate, logger zerolog.Logger, now func() time.Time) *chatSyncService {
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")

	componentLogger := logger.With().Str("component", "chat_sync").Logger()
	return &chatSyncService{
		remote:    store,
		rooms:     rooms,
		messages:  messages,
		cache:     newChatCacheWriter(componentLogger),
		validator: validate,
		sanitizer: sanitizer,
		logger:    componentLogger,
		tracer:    otel.Tracer("github.com/noah-isme/tripmate-api/internal/service/chat"),
		now:       now,
	}
}

func (s *chatSyncService) Close() {
	s.cache.Close()
}

// ObserveRoomsForUser emits the cached room list first, then every remote
// snapshot, until ctx is cancelled.
func (s *chatSyncService) ObserveRoomsForUser(ctx context.Context, actor ChatActor) (<-chan []dto.ChatRoomResponse, error) {
	if actor.ID == "" && strings.TrimSpace(actor.Email) == "" {
		return nil, ErrChatActorRequired
	}

	out := make(chan []dto.ChatRoomResponse, 1)
	cachedEmitted := false
	cached, err := s.rooms.ListForMember(ctx, actor.ID, actor.Email)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read cached chat rooms")
	} else if len(cached) > 0 {
		out <- roomResponses(cached)
		cachedEmitted = true
	}

	sub, err := s.remote.WatchRooms(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", actor.ID).Msg("chat room listener unavailable, serving cache")
		if !cachedEmitted {
			out <- []dto.ChatRoomResponse{}
		}
		go func() {
			<-ctx.Done()
			close(out)
		}()
		return out, nil
	}

	gauge := observability.ChatSubscriptions().WithLabelValues("rooms")
	gauge.Inc()

	go func() {
		defer close(out)
		defer sub.Close()
		defer gauge.Dec()

		for snapshot := range sub.C() {
			rooms := []dto.ChatRoomResponse{}
			if snapshot.Err != nil {
				s.logger.Warn().Err(snapshot.Err).Str("user_id", actor.ID).Msg("chat room snapshot failed")
			} else {
				visible := s.visibleRooms(ctx, actor, snapshot.Items)
				s.mirrorRooms(visible)
				rooms = roomResponses(visible)
			}

			select {
			case out <- rooms:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// ListRooms is the one-shot form of ObserveRoomsForUser. It serves the cache
// when the remote store cannot be read.
func (s *chatSyncService) ListRooms(ctx context.Context, actor ChatActor) ([]dto.ChatRoomResponse, error) {
	if actor.ID == "" && strings.TrimSpace(actor.Email) == "" {
		return nil, ErrChatActorRequired
	}

	snapshot, err := s.remote.ListRooms(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", actor.ID).Msg("remote room list failed, serving cache")
		cached, cacheErr := s.rooms.ListForMember(ctx, actor.ID, actor.Email)
		if cacheErr != nil {
			return []dto.ChatRoomResponse{}, nil
		}
		return roomResponses(cached), nil
	}

	visible := s.visibleRooms(ctx, actor, snapshot)
	s.mirrorRooms(visible)
	return roomResponses(visible), nil
}

// visibleRooms filters a snapshot to the actor's rooms, newest activity first,
// and appends the actor's id to rooms that only list their email.
func (s *chatSyncService) visibleRooms(ctx context.Context, actor ChatActor, snapshot []remote.Room) []models.ChatRoom {
	visible := make([]models.ChatRoom, 0, len(snapshot))
	for _, room := range snapshot {
		byID := room.HasMemberID(actor.ID)
		byEmail := room.HasMemberEmail(actor.Email)
		if !byID && !byEmail {
			continue
		}
		if !byID && actor.ID != "" {
			s.healMembership(ctx, room.ChatRoomID, actor.ID)
			room.MemberIDs = append(append([]string{}, room.MemberIDs...), actor.ID)
		}
		visible = append(visible, roomModelFromRemote(room))
	}

	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].LastMessageTime > visible[j].LastMessageTime
	})
	return visible
}

func (s *chatSyncService) healMembership(ctx context.Context, roomID, userID string) {
	_, err := s.remote.UpdateRoom(ctx, roomID, func(room *remote.Room) error {
		if room.HasMemberID(userID) {
			return remote.ErrNoChange
		}
		room.MemberIDs = append(room.MemberIDs, userID)
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("room_id", roomID).Str("user_id", userID).Msg("failed to amend room membership")
		return
	}
	observability.ChatMembershipHealed().Inc()
}

// ObserveMessages emits the room's full message list on every remote change.
func (s *chatSyncService) ObserveMessages(ctx context.Context, actor ChatActor, roomID string) (<-chan []dto.ChatMessageResponse, error) {
	if _, err := s.authorisedRoom(ctx, actor, roomID); err != nil {
		return nil, err
	}

	out := make(chan []dto.ChatMessageResponse, 1)
	sub, err := s.remote.WatchMessages(ctx, roomID)
	if err != nil {
		s.logger.Warn().Err(err).Str("room_id", roomID).Msg("chat message listener unavailable, serving cache")
		cached, cacheErr := s.messages.ListByRoom(ctx, roomID, 0, 100)
		if cacheErr != nil {
			cached = nil
		}
		out <- dto.NewChatMessageResponseSlice(cached)
		go func() {
			<-ctx.Done()
			close(out)
		}()
		return out, nil
	}

	gauge := observability.ChatSubscriptions().WithLabelValues("messages")
	gauge.Inc()

	go func() {
		defer close(out)
		defer sub.Close()
		defer gauge.Dec()

		for snapshot := range sub.C() {
			messages := []dto.ChatMessageResponse{}
			if snapshot.Err != nil {
				s.logger.Warn().Err(snapshot.Err).Str("room_id", roomID).Msg("chat message snapshot failed")
			} else {
				cached := make([]models.ChatMessage, 0, len(snapshot.Items))
				for _, item := range snapshot.Items {
					cached = append(cached, messageModelFromRemote(item))
				}
				sort.SliceStable(cached, func(i, j int) bool { return cached[i].Timestamp < cached[j].Timestamp })
				s.mirrorMessages(cached)
				messages = dto.NewChatMessageResponseSlice(cached)
			}

			select {
			case out <- messages:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// SendMessage writes locally first, then remotely. A failed remote write
// leaves the message unsynced for a later SyncUnsyncedMessages pass.
func (s *chatSyncService) SendMessage(ctx context.Context, actor ChatActor, req dto.ChatSendRequest) (dto.ChatMessageResponse, error) {
	req.RoomID = strings.TrimSpace(req.RoomID)
	req.SenderID = actor.ID
	req.SenderName = strings.TrimSpace(req.SenderName)
	if req.SenderName == "" {
		req.SenderName = actor.Name
	}
	req.Text = strings.TrimSpace(s.sanitizer.Sanitize(req.Text))
	req.ImageURL = strings.TrimSpace(req.ImageURL)

	if req.Text == "" && req.ImageURL == "" {
		return dto.ChatMessageResponse{}, ErrChatEmptyMessage
	}
	if err := s.validator.Struct(req); err != nil {
		return dto.ChatMessageResponse{}, err
	}
	if err := s.authoriseSend(ctx, actor, req.RoomID); err != nil {
		return dto.ChatMessageResponse{}, err
	}

	messageType := req.Type
	if messageType == "" {
		messageType = models.ChatMessageTypeText
		if req.ImageURL != "" {
			messageType = models.ChatMessageTypeImage
		}
	}

	spanCtx, span := s.tracer.Start(ctx, "chat.send", trace.WithAttributes(
		attribute.String("chat.room_id", req.RoomID),
		attribute.String("chat.sender_id", actor.ID),
		attribute.String("chat.type", messageType),
	))
	defer span.End()

	message := models.ChatMessage{
		ID:         uuid.NewString(),
		RoomID:     req.RoomID,
		SenderID:   actor.ID,
		SenderName: req.SenderName,
		Text:       req.Text,
		ImageURL:   req.ImageURL,
		Type:       messageType,
		Timestamp:  s.now().UnixMilli(),
	}

	if err := s.cache.Do(spanCtx, func(ctx context.Context) error {
		return s.messages.Upsert(ctx, message)
	}); err != nil {
		span.RecordError(err)
		return dto.ChatMessageResponse{}, fmt.Errorf("cache message: %w", err)
	}

	if err := s.remote.PutMessage(spanCtx, messageToRemote(message)); err != nil {
		span.RecordError(err)
		s.logger.Warn().Err(err).Str("room_id", message.RoomID).Str("message_id", message.ID).Msg("remote write failed, message left unsynced")
		observability.ChatMessagesSent().WithLabelValues(messageType, "false").Inc()
		return dto.NewChatMessageResponse(message), nil
	}

	message.Synced = true
	if err := s.cache.Do(spanCtx, func(ctx context.Context) error {
		return s.messages.MarkSynced(ctx, message.ID)
	}); err != nil {
		s.logger.Warn().Err(err).Str("message_id", message.ID).Msg("failed to mark cached message synced")
	}
	s.touchRoom(spanCtx, message)

	observability.ChatMessagesSent().WithLabelValues(messageType, "true").Inc()
	return dto.NewChatMessageResponse(message), nil
}

// SyncUnsyncedMessages replays cached messages the remote store never
// confirmed. Message ids are stable, so a replay never duplicates. Messages
// whose sender is no longer a member of the remote room are dropped.
func (s *chatSyncService) SyncUnsyncedMessages(ctx context.Context) (dto.ChatSyncResponse, error) {
	pending, err := s.messages.ListUnsynced(ctx, chatResyncBatchSize)
	if err != nil {
		return dto.ChatSyncResponse{}, fmt.Errorf("list unsynced messages: %w", err)
	}

	synced := make([]string, 0, len(pending))
	rejected := make([]string, 0)
	rooms := make(map[string]remote.Room)
	for _, message := range pending {
		room, ok := rooms[message.RoomID]
		if !ok {
			fetched, err := s.remote.GetRoom(ctx, message.RoomID)
			switch {
			case err == nil:
				room = fetched
				rooms[message.RoomID] = fetched
			case errors.Is(err, remote.ErrRoomNotFound):
				rooms[message.RoomID] = remote.Room{}
			default:
				s.logger.Warn().Err(err).Str("message_id", message.ID).Msg("resync skipped, room unreadable")
				continue
			}
		}
		if !room.HasMemberID(message.SenderID) {
			s.logger.Warn().Str("message_id", message.ID).Str("room_id", message.RoomID).Str("sender_id", message.SenderID).Msg("sender is not a room member, dropping unsynced message")
			rejected = append(rejected, message.ID)
			continue
		}

		if err := s.remote.PutMessage(ctx, messageToRemote(message)); err != nil {
			s.logger.Warn().Err(err).Str("message_id", message.ID).Msg("resync of message failed")
			continue
		}
		synced = append(synced, message.ID)
		s.touchRoom(ctx, message)
	}

	if len(rejected) > 0 {
		if err := s.cache.Do(ctx, func(ctx context.Context) error {
			return s.messages.Delete(ctx, rejected...)
		}); err != nil {
			return dto.ChatSyncResponse{}, fmt.Errorf("drop rejected messages: %w", err)
		}
	}

	if len(synced) > 0 {
		if err := s.cache.Do(ctx, func(ctx context.Context) error {
			return s.messages.MarkSynced(ctx, synced...)
		}); err != nil {
			return dto.ChatSyncResponse{}, fmt.Errorf("mark messages synced: %w", err)
		}
		observability.ChatMessagesResynced().Add(float64(len(synced)))
	}

	remaining, err := s.messages.CountUnsynced(ctx)
	if err != nil {
		return dto.ChatSyncResponse{}, err
	}

	return dto.ChatSyncResponse{Synced: len(synced), Rejected: len(rejected), Pending: int(remaining)}, nil
}

func (s *chatSyncService) CreateRoom(ctx context.Context, actor ChatActor, req dto.ChatRoomCreateRequest) (dto.ChatRoomResponse, error) {
	if actor.ID == "" {
		return dto.ChatRoomResponse{}, ErrChatActorRequired
	}
	req.Name = strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(req.Name))
	if err := s.validator.Struct(req); err != nil {
		return dto.ChatRoomResponse{}, err
	}

	room := remote.Room{
		ChatRoomID:   uuid.NewString(),
		Name:         req.Name,
		Type:         req.Type,
		CreatorID:    actor.ID,
		MemberIDs:    appendUnique([]string{actor.ID}, req.MemberIDs...),
		MemberEmails: appendUniqueEmails(nil, append([]string{actor.Email}, req.MemberEmails...)...),
		TripID:       req.TripID,
		CreatedAt:    s.now().UnixMilli(),
	}
	return s.storeRoom(ctx, room)
}

// OpenFriendRoom returns the one-to-one room between the actor and a friend,
// creating it on first use. The room id is derived from both member ids.
func (s *chatSyncService) OpenFriendRoom(ctx context.Context, actor ChatActor, req dto.FriendRoomRequest) (dto.ChatRoomResponse, error) {
	if actor.ID == "" {
		return dto.ChatRoomResponse{}, ErrChatActorRequired
	}
	if err := s.validator.Struct(req); err != nil {
		return dto.ChatRoomResponse{}, err
	}

	roomID := FriendRoomID(actor.ID, req.FriendID)
	existing, err := s.remote.GetRoom(ctx, roomID)
	switch {
	case err == nil:
		if !existing.HasMemberID(actor.ID) && !existing.HasMemberEmail(actor.Email) {
			return dto.ChatRoomResponse{}, ErrChatNotMember
		}
		model := roomModelFromRemote(existing)
		s.mirrorRooms([]models.ChatRoom{model})
		return dto.NewChatRoomResponse(model), nil
	case !errors.Is(err, remote.ErrRoomNotFound):
		return dto.ChatRoomResponse{}, fmt.Errorf("%w: %v", ErrChatUnavailable, err)
	}

	name := strings.TrimSpace(req.FriendName)
	if name == "" {
		name = req.FriendID
	}
	room := remote.Room{
		ChatRoomID:   roomID,
		Name:         name,
		Type:         models.ChatRoomTypeFriend,
		CreatorID:    actor.ID,
		MemberIDs:    appendUnique(nil, actor.ID, req.FriendID),
		MemberEmails: appendUniqueEmails(nil, actor.Email, req.FriendEmail),
		CreatedAt:    s.now().UnixMilli(),
	}
	return s.storeRoom(ctx, room)
}

func (s *chatSyncService) GetRoom(ctx context.Context, actor ChatActor, roomID string) (dto.ChatRoomResponse, error) {
	room, err := s.authorisedRoom(ctx, actor, roomID)
	if err != nil {
		return dto.ChatRoomResponse{}, err
	}
	return dto.NewChatRoomResponse(room), nil
}

func (s *chatSyncService) History(ctx context.Context, actor ChatActor, query dto.ChatHistoryQuery) ([]dto.ChatMessageResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}
	if _, err := s.authorisedRoom(ctx, actor, query.RoomID); err != nil {
		return nil, err
	}

	var before int64
	if query.Before != nil {
		before = query.Before.UnixMilli()
	}
	messages, err := s.messages.ListByRoom(ctx, query.RoomID, before, query.Limit)
	if err != nil {
		return nil, err
	}
	return dto.NewChatMessageResponseSlice(messages), nil
}

func (s *chatSyncService) Invite(ctx context.Context, actor ChatActor, roomID, memberID string) (dto.ChatRoomResponse, error) {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return dto.ChatRoomResponse{}, fmt.Errorf("member id is required")
	}
	return s.mutateRoom(ctx, actor, roomID, func(room *remote.Room) error {
		if room.HasMemberID(memberID) {
			return remote.ErrNoChange
		}
		room.MemberIDs = append(room.MemberIDs, memberID)
		return nil
	})
}

func (s *chatSyncService) InviteByEmail(ctx context.Context, actor ChatActor, roomID, email string) (dto.ChatRoomResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.validator.Var(email, "required,email"); err != nil {
		return dto.ChatRoomResponse{}, err
	}
	return s.mutateRoom(ctx, actor, roomID, func(room *remote.Room) error {
		if room.HasMemberEmail(email) {
			return remote.ErrNoChange
		}
		room.MemberEmails = append(room.MemberEmails, email)
		return nil
	})
}

// Remove drops a member and the email they could regain access through.
// memberEmail is optional. Leaving a room drops the actor's own email, and
// in a friend room every email but the actor's goes with the other member.
// Only the room creator may remove someone else.
func (s *chatSyncService) Remove(ctx context.Context, actor ChatActor, roomID, memberID, memberEmail string) (dto.ChatRoomResponse, error) {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return dto.ChatRoomResponse{}, fmt.Errorf("member id is required")
	}
	dropped := appendUniqueEmails(nil, memberEmail)
	if memberID == actor.ID {
		dropped = appendUniqueEmails(dropped, actor.Email)
	}

	return s.mutateRoom(ctx, actor, roomID, func(room *remote.Room) error {
		if memberID != actor.ID && room.CreatorID != actor.ID {
			return ErrChatForbidden
		}
		ids := withoutValue(room.MemberIDs, memberID)
		emails := make([]string, 0, len(room.MemberEmails))
		for _, email := range room.MemberEmails {
			if containsEmail(dropped, email) {
				continue
			}
			if room.Type == models.ChatRoomTypeFriend && memberID != actor.ID && !strings.EqualFold(strings.TrimSpace(email), strings.TrimSpace(actor.Email)) {
				continue
			}
			emails = append(emails, email)
		}
		if len(ids) == len(room.MemberIDs) && len(emails) == len(room.MemberEmails) {
			return remote.ErrNoChange
		}
		room.MemberIDs = ids
		room.MemberEmails = emails
		return nil
	})
}

// RemoveEmail withdraws an email invite. The creator may withdraw any email,
// everyone else only their own.
func (s *chatSyncService) RemoveEmail(ctx context.Context, actor ChatActor, roomID, email string) (dto.ChatRoomResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.validator.Var(email, "required,email"); err != nil {
		return dto.ChatRoomResponse{}, err
	}
	return s.mutateRoom(ctx, actor, roomID, func(room *remote.Room) error {
		if room.CreatorID != actor.ID && !strings.EqualFold(email, strings.TrimSpace(actor.Email)) {
			return ErrChatForbidden
		}
		if !room.HasMemberEmail(email) {
			return remote.ErrNoChange
		}
		kept := make([]string, 0, len(room.MemberEmails))
		for _, member := range room.MemberEmails {
			if !strings.EqualFold(strings.TrimSpace(member), email) {
				kept = append(kept, member)
			}
		}
		room.MemberEmails = kept
		return nil
	})
}

// mutateRoom runs a conditional read-modify-write against the remote room.
func (s *chatSyncService) mutateRoom(ctx context.Context, actor ChatActor, roomID string, mutate func(room *remote.Room) error) (dto.ChatRoomResponse, error) {
	updated, err := s.remote.UpdateRoom(ctx, roomID, func(room *remote.Room) error {
		if !room.HasMemberID(actor.ID) && !room.HasMemberEmail(actor.Email) {
			return ErrChatNotMember
		}
		return mutate(room)
	})
	switch {
	case err == nil:
	case errors.Is(err, remote.ErrRoomNotFound):
		return dto.ChatRoomResponse{}, ErrChatRoomNotFound
	case errors.Is(err, ErrChatNotMember), errors.Is(err, ErrChatForbidden):
		return dto.ChatRoomResponse{}, err
	case errors.Is(err, remote.ErrConflict):
		return dto.ChatRoomResponse{}, ErrChatConflict
	default:
		return dto.ChatRoomResponse{}, fmt.Errorf("%w: %v", ErrChatUnavailable, err)
	}

	model := roomModelFromRemote(updated)
	s.mirrorRooms([]models.ChatRoom{model})
	return dto.NewChatRoomResponse(model), nil
}

func (s *chatSyncService) storeRoom(ctx context.Context, room remote.Room) (dto.ChatRoomResponse, error) {
	if err := s.remote.PutRoom(ctx, room); err != nil {
		s.logger.Warn().Err(err).Str("room_id", room.ChatRoomID).Msg("failed to create chat room")
		return dto.ChatRoomResponse{}, fmt.Errorf("%w: %v", ErrChatUnavailable, err)
	}
	model := roomModelFromRemote(room)
	s.mirrorRooms([]models.ChatRoom{model})
	return dto.NewChatRoomResponse(model), nil
}

// loadRoom reads the room remotely and falls back to the cache when the
// remote store is unreachable.
func (s *chatSyncService) loadRoom(ctx context.Context, roomID string) (models.ChatRoom, error) {
	room, err := s.remote.GetRoom(ctx, roomID)
	if err == nil {
		return roomModelFromRemote(room), nil
	}
	if errors.Is(err, remote.ErrRoomNotFound) {
		return models.ChatRoom{}, ErrChatRoomNotFound
	}

	s.logger.Warn().Err(err).Str("room_id", roomID).Msg("remote room read failed, using cache")
	cached, cacheErr := s.rooms.FindByID(ctx, roomID)
	if cacheErr != nil {
		if errors.Is(cacheErr, gorm.ErrRecordNotFound) {
			return models.ChatRoom{}, ErrChatUnavailable
		}
		return models.ChatRoom{}, fmt.Errorf("%w: %v", ErrChatUnavailable, cacheErr)
	}
	return cached, nil
}

func (s *chatSyncService) authorisedRoom(ctx context.Context, actor ChatActor, roomID string) (models.ChatRoom, error) {
	if actor.ID == "" && strings.TrimSpace(actor.Email) == "" {
		return models.ChatRoom{}, ErrChatActorRequired
	}
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return models.ChatRoom{}, err
	}
	if !room.HasMember(actor.ID, actor.Email) {
		return models.ChatRoom{}, ErrChatNotMember
	}
	return room, nil
}

// authoriseSend lets a message be written locally while the remote store is
// down, as long as the cached room proves membership. With neither source
// available the send is refused. An email-only member gets their id added.
func (s *chatSyncService) authoriseSend(ctx context.Context, actor ChatActor, roomID string) error {
	if actor.ID == "" {
		return ErrChatActorRequired
	}
	room, err := s.authorisedRoom(ctx, actor, roomID)
	if err != nil {
		if errors.Is(err, ErrChatUnavailable) {
			s.logger.Warn().Err(err).Str("room_id", roomID).Str("user_id", actor.ID).Msg("membership could not be verified, send refused")
		}
		return err
	}
	if !room.HasMember(actor.ID, "") {
		s.healMembership(ctx, roomID, actor.ID)
	}
	return nil
}

// touchRoom moves the room's last-message preview forward, remotely and locally.
func (s *chatSyncService) touchRoom(ctx context.Context, message models.ChatMessage) {
	preview := message.Text
	if preview == "" && message.ImageURL != "" {
		preview = imageMessagePreview
	}

	_, err := s.remote.UpdateRoom(ctx, message.RoomID, func(room *remote.Room) error {
		if room.LastMessageTime > message.Timestamp {
			return remote.ErrNoChange
		}
		room.LastMessageText = preview
		room.LastMessageTime = message.Timestamp
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("room_id", message.RoomID).Msg("failed to update room preview")
	}

	if err := s.cache.Do(ctx, func(ctx context.Context) error {
		return s.rooms.UpdateLastMessage(ctx, message.RoomID, preview, message.Timestamp)
	}); err != nil {
		s.logger.Debug().Err(err).Str("room_id", message.RoomID).Msg("failed to update cached room preview")
	}
}

func (s *chatSyncService) mirrorRooms(rooms []models.ChatRoom) {
	if len(rooms) == 0 {
		return
	}
	batch := append([]models.ChatRoom(nil), rooms...)
	s.cache.Submit(func(ctx context.Context) error {
		return s.rooms.Upsert(ctx, batch...)
	})
}

func (s *chatSyncService) mirrorMessages(messages []models.ChatMessage) {
	if len(messages) == 0 {
		return
	}
	batch := append([]models.ChatMessage(nil), messages...)
	s.cache.Submit(func(ctx context.Context) error {
		return s.messages.Upsert(ctx, batch...)
	})
}

// FriendRoomID derives the shared room id for two users regardless of order.
func FriendRoomID(a, b string) string {
	ids := []string{strings.TrimSpace(a), strings.TrimSpace(b)}
	sort.Strings(ids)
	return "friend_" + ids[0] + "_" + ids[1]
}

func roomModelFromRemote(room remote.Room) models.ChatRoom {
	return models.ChatRoom{
		ID:              room.ChatRoomID,
		Name:            room.Name,
		Type:            room.Type,
		CreatorID:       room.CreatorID,
		MemberIDs:       append([]string{}, room.MemberIDs...),
		MemberEmails:    append([]string{}, room.MemberEmails...),
		TripID:          room.TripID,
		LastMessageText: room.LastMessageText,
		LastMessageTime: room.LastMessageTime,
	}
}

func messageModelFromRemote(message remote.Message) models.ChatMessage {
	return models.ChatMessage{
		ID:         message.ID,
		RoomID:     message.ChatRoomID,
		SenderID:   message.SenderID,
		SenderName: message.SenderName,
		Text:       message.Text,
		ImageURL:   message.ImageURL,
		Type:       message.Type,
		Timestamp:  message.Timestamp,
		Synced:     true,
	}
}

func messageToRemote(message models.ChatMessage) remote.Message {
	return remote.Message{
		ID:         message.ID,
		ChatRoomID: message.RoomID,
		SenderID:   message.SenderID,
		SenderName: message.SenderName,
		Text:       message.Text,
		ImageURL:   message.ImageURL,
		Type:       message.Type,
		Timestamp:  message.Timestamp,
	}
}

func roomResponses(rooms []models.ChatRoom) []dto.ChatRoomResponse {
	out := make([]dto.ChatRoomResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, dto.NewChatRoomResponse(room))
	}
	return out
}

func appendUnique(base []string, values ...string) []string {
	seen := make(map[string]struct{}, len(base)+len(values))
	out := make([]string, 0, len(base)+len(values))
	for _, value := range append(base, values...) {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func withoutValue(values []string, drop string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value != drop {
			out = append(out, value)
		}
	}
	return out
}

func containsEmail(emails []string, email string) bool {
	for _, candidate := range emails {
		if strings.EqualFold(candidate, strings.TrimSpace(email)) {
			return true
		}
	}
	return false
}

func appendUniqueEmails(base []string, values ...string) []string {
	normalised := make([]string, 0, len(values))
	for _, value := range values {
		normalised = append(normalised, strings.ToLower(strings.TrimSpace(value)))
	}
	return appendUnique(base, normalised...)
}
