package remote

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var (
	// ErrRoomNotFound indicates the requested room path does not exist.
	ErrRoomNotFound = errors.New("chat room not found")
	// ErrConflict indicates a conditional update kept losing against concurrent writers.
	ErrConflict = errors.New("chat room modified concurrently")
	// ErrNoChange may be returned from an update mutator to skip the write.
	ErrNoChange = errors.New("no change")
)

// Room mirrors the chat_rooms/{roomId} node.
type Room struct {
	ChatRoomID      string   `json:"chatRoomId"`
	Name            string   `json:"name"`
	Type            string   `json:"type"`
	CreatorID       string   `json:"creatorId"`
	MemberIDs       []string `json:"memberIds"`
	MemberEmails    []string `json:"memberEmails"`
	TripID          *uint    `json:"tripId,omitempty"`
	LastMessageText string   `json:"lastMessageText"`
	LastMessageTime int64    `json:"lastMessageTime"`
	CreatedAt       int64    `json:"createdAt"`
}

// HasMemberID reports whether id is listed in the room's member identifiers.
func (r Room) HasMemberID(id string) bool {
	if id == "" {
		return false
	}
	for _, member := range r.MemberIDs {
		if member == id {
			return true
		}
	}
	return false
}

// HasMemberEmail reports whether email is listed in the room's member emails, ignoring case.
func (r Room) HasMemberEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	for _, member := range r.MemberEmails {
		if strings.EqualFold(strings.TrimSpace(member), email) {
			return true
		}
	}
	return false
}

// Message mirrors the messages/{roomId}/{messageId} node.
type Message struct {
	ID         string `json:"id"`
	ChatRoomID string `json:"chatRoomId"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Text       string `json:"text"`
	ImageURL   string `json:"imageUrl,omitempty"`
	Type       string `json:"type"`
	Timestamp  int64  `json:"timestamp"`
}

// Store is the authoritative chat state. Watch methods push a full snapshot
// on subscription and again after every change.
type Store interface {
	GetRoom(ctx context.Context, roomID string) (Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	PutRoom(ctx context.Context, room Room) error
	UpdateRoom(ctx context.Context, roomID string, mutate func(*Room) error) (Room, error)
	PutMessage(ctx context.Context, message Message) error
	ListMessages(ctx context.Context, roomID string) ([]Message, error)
	WatchRooms(ctx context.Context) (*Subscription[Room], error)
	WatchMessages(ctx context.Context, roomID string) (*Subscription[Message], error)
}

// Snapshot is one delivery from a watcher. Err is set when the snapshot could not be loaded.
type Snapshot[T any] struct {
	Items []T
	Err   error
}

// Subscription is a live watcher handle. The channel is closed after Close
// or when the parent context ends.
type Subscription[T any] struct {
	ch     chan Snapshot[T]
	cancel context.CancelFunc
	once   sync.Once
}

func newSubscription[T any](cancel context.CancelFunc) *Subscription[T] {
	return &Subscription[T]{
		ch:     make(chan Snapshot[T]),
		cancel: cancel,
	}
}

// C returns the snapshot stream.
func (s *Subscription[T]) C() <-chan Snapshot[T] {
	return s.ch
}

// Close stops the watcher.
func (s *Subscription[T]) Close() {
	s.once.Do(s.cancel)
}

func (s *Subscription[T]) deliver(ctx context.Context, snapshot Snapshot[T]) bool {
	select {
	case s.ch <- snapshot:
		return true
	case <-ctx.Done():
		return false
	}
}
