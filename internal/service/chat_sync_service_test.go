package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tripmate-api/internal/dto"
	"github.com/noah-isme/tripmate-api/internal/models"
	"github.com/noah-isme/tripmate-api/internal/remote"
	"github.com/noah-isme/tripmate-api/internal/repository"
)

var errRemoteDown = errors.New("remote store unreachable")

// flakyStore lets tests knock out individual remote operations.
type flakyStore struct {
	remote.Store
	failPut   atomic.Bool
	failGet   atomic.Bool
	failWatch atomic.Bool
	raceRoom  atomic.Bool
}

func (f *flakyStore) UpdateRoom(ctx context.Context, roomID string, mutate func(*remote.Room) error) (remote.Room, error) {
	if f.raceRoom.Load() {
		return remote.Room{}, remote.ErrConflict
	}
	return f.Store.UpdateRoom(ctx, roomID, mutate)
}

func (f *flakyStore) PutMessage(ctx context.Context, message remote.Message) error {
	if f.failPut.Load() {
		return errRemoteDown
	}
	return f.Store.PutMessage(ctx, message)
}

func (f *flakyStore) GetRoom(ctx context.Context, roomID string) (remote.Room, error) {
	if f.failGet.Load() {
		return remote.Room{}, errRemoteDown
	}
	return f.Store.GetRoom(ctx, roomID)
}

func (f *flakyStore) WatchRooms(ctx context.Context) (*remote.Subscription[remote.Room], error) {
	if f.failWatch.Load() {
		return nil, errRemoteDown
	}
	return f.Store.WatchRooms(ctx)
}

type chatFixture struct {
	svc      *chatSyncService
	store    *flakyStore
	client   *redis.Client
	rooms    repository.ChatRoomRepository
	messages repository.ChatMessageRepository
}

func newChatFixture(t *testing.T) chatFixture {
	t.Helper()
	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db := setupServiceDB(t, &models.ChatRoom{}, &models.ChatMessage{})
	rooms := repository.NewChatRoomRepository(db)
	messages := repository.NewChatMessageRepository(db)
	store := &flakyStore{Store: remote.NewRedisStore(client, "test", testLogger())}

	clock := time.UnixMilli(1_700_000_000_000)
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}

	svc := newChatSyncService(store, rooms, messages, testValidator(), testLogger(), now)
	t.Cleanup(svc.Close)

	return chatFixture{svc: svc, store: store, client: client, rooms: rooms, messages: messages}
}

func nextSnapshot[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case snapshot, ok := <-ch:
		require.True(t, ok, "stream closed unexpectedly")
		return snapshot
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	var zero T
	return zero
}

var (
	chatOwner  = ChatActor{ID: "u1", Email: "rin@example.com", Name: "Rin"}
	chatFriend = ChatActor{ID: "u2", Email: "kai@example.com", Name: "Kai"}
)

func TestChatSendWhileRemoteFailsThenResync(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	room, err := f.svc.CreateRoom(ctx, chatOwner, dto.ChatRoomCreateRequest{Name: "Lisbon crew", Type: models.ChatRoomTypeFriend})
	require.NoError(t, err)

	f.store.failPut.Store(true)
	sent, err := f.svc.SendMessage(ctx, chatOwner, dto.ChatSendRequest{RoomID: room.ID, Text: "who books the tram?"})
	require.NoError(t, err)
	require.False(t, sent.Synced)

	cached, err := f.messages.FindByID(ctx, sent.ID)
	require.NoError(t, err)
	require.False(t, cached.Synced)

	result, err := f.svc.SyncUnsyncedMessages(ctx)
	require.NoError(t, err)
	require.Equal(t, dto.ChatSyncResponse{Synced: 0, Pending: 1}, result)

	f.store.failPut.Store(false)
	result, err = f.svc.SyncUnsyncedMessages(ctx)
	require.NoError(t, err)
	require.Equal(t, dto.ChatSyncResponse{Synced: 1, Pending: 0}, result)

	cached, err = f.messages.FindByID(ctx, sent.ID)
	require.NoError(t, err)
	require.True(t, cached.Synced)

	history, err := f.messages.ListByRoom(ctx, room.ID, 0, 50)
	require.NoError(t, err)
	require.Len(t, history, 1)

	remoteMessages, err := f.store.ListMessages(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, remoteMessages, 1)
	require.Equal(t, sent.ID, remoteMessages[0].ID)

	// A second pass is a no-op.
	result, err = f.svc.SyncUnsyncedMessages(ctx)
	require.NoError(t, err)
	require.Equal(t, dto.ChatSyncResponse{}, result)
}

func TestChatSendUpdatesRoomPreview(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	room, err := f.svc.CreateRoom(ctx, chatOwner, dto.ChatRoomCreateRequest{Name: "Lisbon crew", Type: models.ChatRoomTypeFriend})
	require.NoError(t, err)

	sent, err := f.svc.SendMessage(ctx, chatOwner, dto.ChatSendRequest{RoomID: room.ID, ImageURL: "https://cdn.example.com/tram.png"})
	require.NoError(t, err)
	require.True(t, sent.Synced)
	require.Equal(t, models.ChatMessageTypeImage, sent.Type)
	require.Equal(t, "Rin", sent.SenderName)

	stored, err := f.store.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, imageMessagePreview, stored.LastMessageText)
	require.Equal(t, sent.Timestamp, stored.LastMessageTime)

	require.NoError(t, f.svc.cache.Flush(ctx))
	cachedRoom, err := f.rooms.FindByID(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, sent.Timestamp, cachedRoom.LastMessageTime)
}

func TestChatSendRejectsNonMembersAndEmptyText(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	room, err := f.svc.CreateRoom(ctx, chatOwner, dto.ChatRoomCreateRequest{Name: "Lisbon crew", Type: models.ChatRoomTypeFriend})
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, chatFriend, dto.ChatSendRequest{RoomID: room.ID, Text: "hi"})
	require.ErrorIs(t, err, ErrChatNotMember)

	_, err = f.svc.SendMessage(ctx, chatOwner, dto.ChatSendRequest{RoomID: room.ID, Text: "<script>x</script>"})
	require.ErrorIs(t, err, ErrChatEmptyMessage)

	_, err = f.svc.SendMessage(ctx, chatOwner, dto.ChatSendRequest{RoomID: "missing", Text: "hi"})
	require.ErrorIs(t, err, ErrChatRoomNotFound)
}

func TestChatSendRefusedWhenMembershipUnverifiable(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.PutRoom(ctx, remote.Room{ChatRoomID: "private", Name: "Private", CreatorID: chatOwner.ID, MemberIDs: []string{chatOwner.ID}}))
	f.store.failGet.Store(true)

	_, err := f.svc.SendMessage(ctx, ChatActor{ID: "intruder"}, dto.ChatSendRequest{RoomID: "private", Text: "hi"})
	require.ErrorIs(t, err, ErrChatUnavailable)

	pending, err := f.messages.CountUnsynced(ctx)
	require.NoError(t, err)
	require.Zero(t, pending)
	f.store.failGet.Store(false)
	stored, err := f.store.ListMessages(ctx, "private")
	require.NoError(t, err)
	require.Empty(t, stored)

	// A cached room still proves membership while the remote read fails.
	room, err := f.svc.CreateRoom(ctx, chatOwner, dto.ChatRoomCreateRequest{Name: "Lisbon crew", Type: models.ChatRoomTypeFriend})
	require.NoError(t, err)
	require.NoError(t, f.svc.cache.Flush(ctx))
	f.store.failGet.Store(true)

	_, err = f.svc.SendMessage(ctx, chatOwner, dto.ChatSendRequest{RoomID: room.ID, Text: "still here"})
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, chatFriend, dto.ChatSendRequest{RoomID: room.ID, Text: "let me in"})
	require.ErrorIs(t, err, ErrChatNotMember)
}

func TestResyncDropsMessagesFromRemovedSenders(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	room, err := f.svc.CreateRoom(ctx, chatOwner, dto.ChatRoomCreateRequest{Name: "Lisbon crew", Type: models.ChatRoomTypeFriend, MemberIDs: []string{chatFriend.ID}})
	require.NoError(t, err)

	f.store.failPut.Store(true)
	queued, err := f.svc.SendMessage(ctx, chatFriend, dto.ChatSendRequest{RoomID: room.ID, Text: "sent before removal"})
	require.NoError(t, err)
	require.False(t, queued.Synced)

	_, err = f.svc.Remove(ctx, chatOwner, room.ID, chatFriend.ID, "")
	require.NoError(t, err)
	f.store.failPut.Store(false)

	result, err := f.svc.SyncUnsyncedMessages(ctx)
	require.NoError(t, err)
	require.Equal(t, dto.ChatSyncResponse{Synced: 0, Rejected: 1, Pending: 0}, result)

	_, err = f.messages.FindByID(ctx, queued.ID)
	require.Error(t, err)
	stored, err := f.store.ListMessages(ctx, room.ID)
	require.NoError(t, err)
	require.Empty(t, stored)
}

func TestObserveRoomsHealsEmailOnlyMembership(t *testing.T) {
	f := newChatFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, f.store.PutRoom(ctx, remote.Room{
		ChatRoomID:   "trip-room",
		Name:         "Lisbon",
		Type:         models.ChatRoomTypeTrip,
		CreatorID:    chatOwner.ID,
		MemberIDs:    []string{chatOwner.ID},
		MemberEmails: []string{chatOwner.Email, "Kai@Example.com"},
	}))
	require.NoError(t, f.store.PutRoom(ctx, remote.Room{
		ChatRoomID: "other-room",
		Name:       "Elsewhere",
		Type:       models.ChatRoomTypeFriend,
		CreatorID:  "u9",
		MemberIDs:  []string{"u9"},
	}))

	stream, err := f.svc.ObserveRoomsForUser(ctx, chatFriend)
	require.NoError(t, err)

	rooms := nextSnapshot(t, stream)
	require.Len(t, rooms, 1)
	require.Equal(t, "trip-room", rooms[0].ID)
	require.Contains(t, rooms[0].MemberIDs, chatFriend.ID)

	stored, err := f.store.GetRoom(ctx, "trip-room")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{chatOwner.ID, chatFriend.ID}, stored.MemberIDs)

	// The healed room is now reachable by id alone.
	_, err = f.svc.GetRoom(ctx, ChatActor{ID: chatFriend.ID}, "trip-room")
	require.NoError(t, err)
}

func TestObserveRoomsEmitsCacheThenRemote(t *testing.T) {
	f := newChatFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, f.rooms.Upsert(ctx, models.ChatRoom{
		ID:        "stale",
		Name:      "Cached only",
		Type:      models.ChatRoomTypeFriend,
		CreatorID: chatOwner.ID,
		MemberIDs: []string{chatOwner.ID},
	}))

	stream, err := f.svc.ObserveRoomsForUser(ctx, chatOwner)
	require.NoError(t, err)

	cached := nextSnapshot(t, stream)
	require.Len(t, cached, 1)
	require.Equal(t, "stale", cached[0].ID)

	live := nextSnapshot(t, stream)
	require.Empty(t, live)

	require.NoError(t, f.store.PutRoom(ctx, remote.Room{ChatRoomID: "b", Name: "B", CreatorID: chatOwner.ID, MemberIDs: []string{chatOwner.ID}, LastMessageTime: 10}))
	require.Len(t, nextSnapshot(t, stream), 1)

	require.NoError(t, f.store.PutRoom(ctx, remote.Room{ChatRoomID: "a", Name: "A", CreatorID: chatOwner.ID, MemberIDs: []string{chatOwner.ID}, LastMessageTime: 20}))
	ordered := nextSnapshot(t, stream)
	require.Len(t, ordered, 2)
	require.Equal(t, "a", ordered[0].ID)
	require.Equal(t, "b", ordered[1].ID)

	cancel()
	require.Eventually(t, func() bool {
		_, ok := <-stream
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestObserveRoomsFallsBackWhenListenerUnavailable(t *testing.T) {
	f := newChatFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.store.failWatch.Store(true)
	stream, err := f.svc.ObserveRoomsForUser(ctx, chatOwner)
	require.NoError(t, err)
	require.Empty(t, nextSnapshot(t, stream))
}

func TestObserveRoomsSurvivesFailedSnapshot(t *testing.T) {
	f := newChatFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, f.store.PutRoom(ctx, remote.Room{ChatRoomID: "a", Name: "A", CreatorID: chatOwner.ID, MemberIDs: []string{chatOwner.ID}}))

	stream, err := f.svc.ObserveRoomsForUser(ctx, chatOwner)
	require.NoError(t, err)
	require.Len(t, nextSnapshot(t, stream), 1)

	// A string under the rooms hash key makes the next load fail.
	require.NoError(t, f.client.Set(ctx, "test:chat_rooms", "corrupt", 0).Err())
	require.NoError(t, f.client.Publish(ctx, "test:events:chat_rooms", "a").Err())
	failed := nextSnapshot(t, stream)
	require.NotNil(t, failed)
	require.Empty(t, failed)

	require.NoError(t, f.client.Del(ctx, "test:chat_rooms").Err())
	require.NoError(t, f.store.PutRoom(ctx, remote.Room{ChatRoomID: "b", Name: "B", CreatorID: chatOwner.ID, MemberIDs: []string{chatOwner.ID}}))
	recovered := nextSnapshot(t, stream)
	require.Len(t, recovered, 1)
	require.Equal(t, "b", recovered[0].ID)
}

func TestObserveMessagesSurvivesFailedSnapshot(t *testing.T) {
	f := newChatFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	room, err := f.svc.CreateRoom(ctx, chatOwner, dto.ChatRoomCreateRequest{Name: "Lisbon crew", Type: models.ChatRoomTypeFriend})
	require.NoError(t, err)

	stream, err := f.svc.ObserveMessages(ctx, chatOwner, room.ID)
	require.NoError(t, err)
	require.Empty(t, nextSnapshot(t, stream))

	messagesKey := "test:messages:" + room.ID
	require.NoError(t, f.client.Set(ctx, messagesKey, "corrupt", 0).Err())
	require.NoError(t, f.client.Publish(ctx, "test:events:messages:"+room.ID, "x").Err())
	failed := nextSnapshot(t, stream)
	require.NotNil(t, failed)
	require.Empty(t, failed)

	require.NoError(t, f.client.Del(ctx, messagesKey).Err())
	sent, err := f.svc.SendMessage(ctx, chatOwner, dto.ChatSendRequest{RoomID: room.ID, Text: "back online"})
	require.NoError(t, err)

	recovered := nextSnapshot(t, stream)
	for len(recovered) == 0 {
		recovered = nextSnapshot(t, stream)
	}
	require.Equal(t, sent.ID, recovered[0].ID)
}

func TestObserveMessagesStreamsSnapshots(t *testing.T) {
	f := newChatFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	room, err := f.svc.CreateRoom(ctx, chatOwner, dto.ChatRoomCreateRequest{Name: "Lisbon crew", Type: models.ChatRoomTypeFriend, MemberIDs: []string{chatFriend.ID}})
	require.NoError(t, err)

	stream, err := f.svc.ObserveMessages(ctx, chatFriend, room.ID)
	require.NoError(t, err)
	require.Empty(t, nextSnapshot(t, stream))

	sent, err := f.svc.SendMessage(ctx, chatOwner, dto.ChatSendRequest{RoomID: room.ID, Text: "tickets booked"})
	require.NoError(t, err)

	messages := nextSnapshot(t, stream)
	for len(messages) == 0 {
		messages = nextSnapshot(t, stream)
	}
	require.Len(t, messages, 1)
	require.Equal(t, sent.ID, messages[0].ID)
	require.True(t, messages[0].Synced)

	_, err = f.svc.ObserveMessages(ctx, ChatActor{ID: "stranger"}, room.ID)
	require.ErrorIs(t, err, ErrChatNotMember)
}

func TestChatMembershipChanges(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	room, err := f.svc.CreateRoom(ctx, chatOwner, dto.ChatRoomCreateRequest{Name: "Lisbon crew", Type: models.ChatRoomTypeFriend})
	require.NoError(t, err)

	updated, err := f.svc.Invite(ctx, chatOwner, room.ID, chatFriend.ID)
	require.NoError(t, err)
	require.Equal(t, []string{chatOwner.ID, chatFriend.ID}, updated.MemberIDs)

	again, err := f.svc.Invite(ctx, chatOwner, room.ID, chatFriend.ID)
	require.NoError(t, err)
	require.Equal(t, updated.MemberIDs, again.MemberIDs)

	updated, err = f.svc.InviteByEmail(ctx, chatOwner, room.ID, "Mo@Example.com")
	require.NoError(t, err)
	require.Contains(t, updated.MemberEmails, "mo@example.com")

	_, err = f.svc.Invite(ctx, chatOwner, room.ID, "u3")
	require.NoError(t, err)

	_, err = f.svc.Remove(ctx, chatFriend, room.ID, "u3", "")
	require.ErrorIs(t, err, ErrChatForbidden)

	updated, err = f.svc.Remove(ctx, chatFriend, room.ID, chatFriend.ID, "")
	require.NoError(t, err)
	require.NotContains(t, updated.MemberIDs, chatFriend.ID)

	_, err = f.svc.Invite(ctx, chatFriend, room.ID, "u4")
	require.ErrorIs(t, err, ErrChatNotMember)

	_, err = f.svc.Invite(ctx, chatOwner, "missing", "u4")
	require.ErrorIs(t, err, ErrChatRoomNotFound)
}

func TestRemoveFriendRevokesEmailAccess(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	room, err := f.svc.OpenFriendRoom(ctx, chatOwner, dto.FriendRoomRequest{FriendID: chatFriend.ID, FriendEmail: chatFriend.Email, FriendName: "Kai"})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{chatOwner.Email, chatFriend.Email}, room.MemberEmails)

	updated, err := f.svc.Remove(ctx, chatOwner, room.ID, chatFriend.ID, "")
	require.NoError(t, err)
	require.Equal(t, []string{chatOwner.ID}, updated.MemberIDs)
	require.Equal(t, []string{chatOwner.Email}, updated.MemberEmails)

	_, err = f.svc.GetRoom(ctx, chatFriend, room.ID)
	require.ErrorIs(t, err, ErrChatNotMember)

	rooms, err := f.svc.ListRooms(ctx, chatFriend)
	require.NoError(t, err)
	require.Empty(t, rooms)

	stored, err := f.store.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, []string{chatOwner.ID}, stored.MemberIDs)
}

func TestRemoveGroupMemberAndWithdrawEmailInvite(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	tripID := uint(3)
	room, err := f.svc.CreateRoom(ctx, chatOwner, dto.ChatRoomCreateRequest{
		Name:         "Porto weekend",
		Type:         models.ChatRoomTypeTrip,
		TripID:       &tripID,
		MemberIDs:    []string{chatFriend.ID},
		MemberEmails: []string{chatFriend.Email, "mo@example.com"},
	})
	require.NoError(t, err)

	_, err = f.svc.RemoveEmail(ctx, chatFriend, room.ID, "mo@example.com")
	require.ErrorIs(t, err, ErrChatForbidden)

	updated, err := f.svc.RemoveEmail(ctx, chatOwner, room.ID, "MO@example.com")
	require.NoError(t, err)
	require.NotContains(t, updated.MemberEmails, "mo@example.com")
	_, err = f.svc.GetRoom(ctx, ChatActor{ID: "u5", Email: "mo@example.com"}, room.ID)
	require.ErrorIs(t, err, ErrChatNotMember)

	updated, err = f.svc.Remove(ctx, chatOwner, room.ID, chatFriend.ID, chatFriend.Email)
	require.NoError(t, err)
	require.Equal(t, []string{chatOwner.ID}, updated.MemberIDs)
	require.Equal(t, []string{chatOwner.Email}, updated.MemberEmails)
	_, err = f.svc.GetRoom(ctx, chatFriend, room.ID)
	require.ErrorIs(t, err, ErrChatNotMember)

	_, err = f.svc.RemoveEmail(ctx, chatOwner, room.ID, "not-an-email")
	require.Error(t, err)
}

func TestOpenFriendRoomIsSymmetric(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	first, err := f.svc.OpenFriendRoom(ctx, chatOwner, dto.FriendRoomRequest{FriendID: chatFriend.ID, FriendEmail: chatFriend.Email, FriendName: "Kai"})
	require.NoError(t, err)
	require.Equal(t, "friend_u1_u2", first.ID)

	second, err := f.svc.OpenFriendRoom(ctx, chatFriend, dto.FriendRoomRequest{FriendID: chatOwner.ID})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "Kai", second.Name)
	require.Equal(t, FriendRoomID("b", "a"), FriendRoomID("a", "b"))
}

func TestGetRoomFallsBackToCache(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	room, err := f.svc.CreateRoom(ctx, chatOwner, dto.ChatRoomCreateRequest{Name: "Lisbon crew", Type: models.ChatRoomTypeFriend})
	require.NoError(t, err)
	require.NoError(t, f.svc.cache.Flush(ctx))

	f.store.failGet.Store(true)
	cached, err := f.svc.GetRoom(ctx, chatOwner, room.ID)
	require.NoError(t, err)
	require.Equal(t, room.ID, cached.ID)

	_, err = f.svc.GetRoom(ctx, chatOwner, "never-cached")
	require.ErrorIs(t, err, ErrChatUnavailable)
}

func TestChatHistoryReadsCache(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	room, err := f.svc.CreateRoom(ctx, chatOwner, dto.ChatRoomCreateRequest{Name: "Lisbon crew", Type: models.ChatRoomTypeFriend})
	require.NoError(t, err)
	for _, text := range []string{"one", "two", "three"} {
		_, err := f.svc.SendMessage(ctx, chatOwner, dto.ChatSendRequest{RoomID: room.ID, Text: text})
		require.NoError(t, err)
	}

	history, err := f.svc.History(ctx, chatOwner, dto.ChatHistoryQuery{RoomID: room.ID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "two", history[0].Text)
	require.Equal(t, "three", history[1].Text)
}

func TestChatCacheWriterPreservesOrder(t *testing.T) {
	writer := newChatCacheWriter(testLogger())
	defer writer.Close()

	var (
		mu    sync.Mutex
		order []int
	)
	for i := 0; i < 50; i++ {
		i := i
		writer.Submit(func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, i)
			return nil
		})
	}
	require.NoError(t, writer.Flush(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 50)
	for i, value := range order {
		require.Equal(t, i, value)
	}
}

func TestChatCacheWriterRejectsAfterClose(t *testing.T) {
	writer := newChatCacheWriter(testLogger())
	writer.Close()

	err := writer.Do(context.Background(), func(context.Context) error { return nil })
	require.ErrorIs(t, err, errCacheWriterClosed)
}

func TestListRoomsHealsEmailOnlyMembership(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.PutRoom(ctx, remote.Room{
		ChatRoomID:   "trip-room",
		Name:         "Lisbon",
		Type:         models.ChatRoomTypeTrip,
		CreatorID:    chatOwner.ID,
		MemberIDs:    []string{chatOwner.ID},
		MemberEmails: []string{chatFriend.Email},
	}))

	rooms, err := f.svc.ListRooms(ctx, chatFriend)
	require.NoError(t, err)
	require.Len(t, rooms, 1)

	stored, err := f.store.GetRoom(ctx, "trip-room")
	require.NoError(t, err)
	require.Contains(t, stored.MemberIDs, chatFriend.ID)

	_, err = f.svc.ListRooms(ctx, ChatActor{})
	require.ErrorIs(t, err, ErrChatActorRequired)
}

func TestMembershipChangeReportsConflict(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	room, err := f.svc.CreateRoom(ctx, chatOwner, dto.ChatRoomCreateRequest{Name: "Porto", Type: models.ChatRoomTypeFriend})
	require.NoError(t, err)

	f.store.raceRoom.Store(true)
	_, err = f.svc.Invite(ctx, chatOwner, room.ID, chatFriend.ID)
	require.ErrorIs(t, err, ErrChatConflict)
}
