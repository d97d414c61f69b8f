package dto

import (
	"time"

	"github.com/noah-isme/tripmate-api/internal/models"
)

// ChatRoomCreateRequest describes a new chat room.
type ChatRoomCreateRequest struct {
	Name         string   `json:"name" validate:"required,min=1,max=255"`
	Type         string   `json:"type" validate:"required,oneof=trip friend"`
	TripID       *uint    `json:"trip_id" validate:"required_if=Type trip"`
	MemberIDs    []string `json:"member_ids" validate:"omitempty,dive,required,max=64"`
	MemberEmails []string `json:"member_emails" validate:"omitempty,dive,email"`
}

// FriendRoomRequest opens (or reuses) the one-to-one room between two friends.
type FriendRoomRequest struct {
	FriendID    string `json:"friend_id" validate:"required,max=64"`
	FriendEmail string `json:"friend_email" validate:"omitempty,email"`
	FriendName  string `json:"friend_name" validate:"omitempty,max=128"`
}

// ChatMemberRequest adds a member to a room by identifier.
type ChatMemberRequest struct {
	MemberID string `json:"member_id" validate:"required,max=64"`
}

// ChatMemberEmailRequest adds a member to a room by email.
type ChatMemberEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ChatSendRequest represents a message posted into a room.
type ChatSendRequest struct {
	RoomID     string `json:"room_id" validate:"required,min=1,max=128"`
	SenderID   string `json:"-" validate:"required,max=64"`
	SenderName string `json:"sender_name" validate:"omitempty,max=128"`
	Text       string `json:"text" validate:"required_without=ImageURL,max=4000"`
	ImageURL   string `json:"image_url" validate:"omitempty,url,max=512"`
	Type       string `json:"type" validate:"omitempty,oneof=text image system"`
}

// ChatHistoryQuery filters cached history for a room.
type ChatHistoryQuery struct {
	RoomID string     `query:"room_id" validate:"required,min=1,max=128"`
	Before *time.Time `query:"before"`
	Limit  int        `query:"limit" validate:"omitempty,min=1,max=100"`
}

// ChatRoomResponse is the serialized representation of a chat room.
type ChatRoomResponse struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Type            string   `json:"type"`
	CreatorID       string   `json:"creator_id"`
	MemberIDs       []string `json:"member_ids"`
	MemberEmails    []string `json:"member_emails"`
	TripID          *uint    `json:"trip_id,omitempty"`
	LastMessageText string   `json:"last_message_text"`
	LastMessageTime int64    `json:"last_message_time"`
}

// ChatMessageResponse is the serialized representation of a chat message.
type ChatMessageResponse struct {
	ID         string `json:"id"`
	RoomID     string `json:"room_id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Text       string `json:"text"`
	ImageURL   string `json:"image_url,omitempty"`
	Type       string `json:"type"`
	Timestamp  int64  `json:"timestamp"`
	Synced     bool   `json:"synced"`
}

// ChatSyncResponse reports the outcome of a resync pass.
type ChatSyncResponse struct {
	Synced   int `json:"synced"`
	Rejected int `json:"rejected"`
	Pending  int `json:"pending"`
}

// NewChatRoomResponse converts a cached room into a DTO.
func NewChatRoomResponse(room models.ChatRoom) ChatRoomResponse {
	return ChatRoomResponse{
		ID:              room.ID,
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

// NewChatMessageResponse converts a cached message into a DTO.
func NewChatMessageResponse(message models.ChatMessage) ChatMessageResponse {
	return ChatMessageResponse{
		ID:         message.ID,
		RoomID:     message.RoomID,
		SenderID:   message.SenderID,
		SenderName: message.SenderName,
		Text:       message.Text,
		ImageURL:   message.ImageURL,
		Type:       message.Type,
		Timestamp:  message.Timestamp,
		Synced:     message.Synced,
	}
}

// NewChatMessageResponseSlice converts cached messages into DTOs.
func NewChatMessageResponseSlice(messages []models.ChatMessage) []ChatMessageResponse {
	out := make([]ChatMessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewChatMessageResponse(message))
	}
	return out
}
