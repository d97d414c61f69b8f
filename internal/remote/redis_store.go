package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const defaultUpdateRetries = 5

// RedisStore keeps chat rooms and messages in Redis hashes and announces
// every change on a pub/sub channel so watchers can reload.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	retries int
	logger  zerolog.Logger
}

// NewRedisStore constructs a store rooted at the given key prefix.
func NewRedisStore(client *redis.Client, prefix string, logger zerolog.Logger) *RedisStore {
	if prefix == "" {
		prefix = "tripmate"
	}
	return &RedisStore{
		client:  client,
		prefix:  prefix,
		retries: defaultUpdateRetries,
		logger:  logger.With().Str("component", "chat_remote_store").Logger(),
	}
}

func (s *RedisStore) roomsKey() string {
	return s.prefix + ":chat_rooms"
}

func (s *RedisStore) messagesKey(roomID string) string {
	return s.prefix + ":messages:" + roomID
}

func (s *RedisStore) roomEvents() string {
	return s.prefix + ":events:chat_rooms"
}

func (s *RedisStore) messageEvents(roomID string) string {
	return s.prefix + ":events:messages:" + roomID
}

func (s *RedisStore) GetRoom(ctx context.Context, roomID string) (Room, error) {
	raw, err := s.client.HGet(ctx, s.roomsKey(), roomID).Result()
	if errors.Is(err, redis.Nil) {
		return Room{}, ErrRoomNotFound
	}
	if err != nil {
		return Room{}, fmt.Errorf("load room %s: %w", roomID, err)
	}

	room, err := decodeRoom([]byte(raw))
	if err != nil {
		return Room{}, fmt.Errorf("decode room %s: %w", roomID, err)
	}
	return room, nil
}

func (s *RedisStore) ListRooms(ctx context.Context) ([]Room, error) {
	values, err := s.client.HGetAll(ctx, s.roomsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	rooms := make([]Room, 0, len(values))
	for id, raw := range values {
		room, err := decodeRoom([]byte(raw))
		if err != nil {
			s.logger.Warn().Err(err).Str("room_id", id).Msg("skipping undecodable room")
			continue
		}
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ChatRoomID < rooms[j].ChatRoomID })
	return rooms, nil
}

func (s *RedisStore) PutRoom(ctx context.Context, room Room) error {
	if room.ChatRoomID == "" {
		return errors.New("room id is required")
	}
	payload, err := json.Marshal(room)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.roomsKey(), room.ChatRoomID, payload).Err(); err != nil {
		return fmt.Errorf("store room %s: %w", room.ChatRoomID, err)
	}
	s.announce(ctx, s.roomEvents(), room.ChatRoomID)
	return nil
}

// UpdateRoom applies mutate inside an optimistic WATCH/MULTI transaction and
// retries when another writer touched the rooms hash in between.
func (s *RedisStore) UpdateRoom(ctx context.Context, roomID string, mutate func(*Room) error) (Room, error) {
	var updated Room
	txn := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, s.roomsKey(), roomID).Result()
		if errors.Is(err, redis.Nil) {
			return ErrRoomNotFound
		}
		if err != nil {
			return err
		}

		room, err := decodeRoom([]byte(raw))
		if err != nil {
			return fmt.Errorf("decode room %s: %w", roomID, err)
		}
		if err := mutate(&room); err != nil {
			updated = room
			return err
		}
		room.ChatRoomID = roomID

		payload, err := json.Marshal(room)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.roomsKey(), roomID, payload)
			return nil
		})
		if err == nil {
			updated = room
		}
		return err
	}

	for attempt := 0; attempt < s.retries; attempt++ {
		err := s.client.Watch(ctx, txn, s.roomsKey())
		switch {
		case err == nil:
			s.announce(ctx, s.roomEvents(), roomID)
			return updated, nil
		case errors.Is(err, ErrNoChange):
			return updated, nil
		case errors.Is(err, redis.TxFailedErr):
			s.logger.Debug().Str("room_id", roomID).Int("attempt", attempt+1).Msg("room update raced, retrying")
			continue
		default:
			return Room{}, err
		}
	}
	return Room{}, ErrConflict
}

// PutMessage upserts by message id, so replays never duplicate.
func (s *RedisStore) PutMessage(ctx context.Context, message Message) error {
	if message.ID == "" || message.ChatRoomID == "" {
		return errors.New("message id and room id are required")
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.messagesKey(message.ChatRoomID), message.ID, payload).Err(); err != nil {
		return fmt.Errorf("store message %s: %w", message.ID, err)
	}
	s.announce(ctx, s.messageEvents(message.ChatRoomID), message.ID)
	return nil
}

func (s *RedisStore) ListMessages(ctx context.Context, roomID string) ([]Message, error) {
	values, err := s.client.HGetAll(ctx, s.messagesKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", roomID, err)
	}

	messages := make([]Message, 0, len(values))
	for id, raw := range values {
		message, err := decodeMessage([]byte(raw))
		if err != nil {
			s.logger.Warn().Err(err).Str("message_id", id).Msg("skipping undecodable message")
			continue
		}
		messages = append(messages, message)
	}
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].Timestamp == messages[j].Timestamp {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].Timestamp < messages[j].Timestamp
	})
	return messages, nil
}

func (s *RedisStore) WatchRooms(ctx context.Context) (*Subscription[Room], error) {
	return watch(ctx, s, s.roomEvents(), s.ListRooms)
}

func (s *RedisStore) WatchMessages(ctx context.Context, roomID string) (*Subscription[Message], error) {
	return watch(ctx, s, s.messageEvents(roomID), func(loadCtx context.Context) ([]Message, error) {
		return s.ListMessages(loadCtx, roomID)
	})
}

func (s *RedisStore) announce(ctx context.Context, channel, id string) {
	if err := s.client.Publish(ctx, channel, id).Err(); err != nil {
		s.logger.Warn().Err(err).Str("channel", channel).Msg("failed to announce chat change")
	}
}

func watch[T any](ctx context.Context, s *RedisStore, channel string, load func(context.Context) ([]T, error)) (*Subscription[T], error) {
	pubsub := s.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	sub := newSubscription[T](cancel)
	events := pubsub.Channel()

	go func() {
		defer close(sub.ch)
		defer func() { _ = pubsub.Close() }()

		push := func() bool {
			items, err := load(watchCtx)
			if watchCtx.Err() != nil {
				return false
			}
			return sub.deliver(watchCtx, Snapshot[T]{Items: items, Err: err})
		}

		if !push() {
			return
		}
		for {
			select {
			case <-watchCtx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				if !push() {
					return
				}
			}
		}
	}()

	return sub, nil
}
