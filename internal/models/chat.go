package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Chat room kinds.
const (
	ChatRoomTypeTrip   = "trip"
	ChatRoomTypeFriend = "friend"
)

// Chat message kinds.
const (
	ChatMessageTypeText   = "text"
	ChatMessageTypeImage  = "image"
	ChatMessageTypeSystem = "system"
)

// ChatRoom is the local cached copy of a remote chat room.
type ChatRoom struct {
	ID              string                      `gorm:"primaryKey;size:128" json:"id"`
	Name            string                      `gorm:"size:255" json:"name"`
	Type            string                      `gorm:"size:32;not null" json:"type"`
	CreatorID       string                      `gorm:"size:64;index" json:"creator_id"`
	MemberIDs       datatypes.JSONSlice[string] `gorm:"type:json" json:"member_ids"`
	MemberEmails    datatypes.JSONSlice[string] `gorm:"type:json" json:"member_emails"`
	TripID          *uint                       `gorm:"index" json:"trip_id,omitempty"`
	LastMessageText string                      `gorm:"type:text" json:"last_message_text"`
	LastMessageTime int64                       `gorm:"index" json:"last_message_time"`
	CreatedAt       time.Time                   `json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`
}

// HasMember reports whether the user matches the room by identifier or, ignoring case, by email.
func (r ChatRoom) HasMember(userID, email string) bool {
	if userID != "" {
		for _, member := range r.MemberIDs {
			if member == userID {
				return true
			}
		}
	}
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

// ChatMessage is the local cached copy of a chat message. Synced is false until
// the remote store has confirmed the write.
type ChatMessage struct {
	ID         string    `gorm:"primaryKey;size:64" json:"id"`
	RoomID     string    `gorm:"size:128;index;not null" json:"room_id"`
	SenderID   string    `gorm:"size:64;index" json:"sender_id"`
	SenderName string    `gorm:"size:128" json:"sender_name"`
	Text       string    `gorm:"type:text" json:"text"`
	ImageURL   string    `gorm:"size:512" json:"image_url,omitempty"`
	Type       string    `gorm:"size:32;default:text" json:"type"`
	Timestamp  int64     `gorm:"index" json:"timestamp"`
	Synced     bool      `gorm:"not null;default:false;index" json:"synced"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
