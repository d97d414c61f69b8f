package dto

import (
	"time"

	"github.com/noah-isme/tripmate-api/internal/models"
)

// NotificationCreateRequest describes the payload to create a notification.
type NotificationCreateRequest struct {
	UserID  string `json:"user_id" validate:"required,max=64"`
	TripID  *uint  `json:"trip_id"`
	Type    string `json:"type" validate:"required,max=64"`
	Title   string `json:"title" validate:"omitempty,max=255"`
	Message string `json:"message" validate:"required,min=1,max=2000"`
}

// PushMessageRequest is an inbound push message to be shown as a local notification.
type PushMessageRequest struct {
	UserID string `json:"user_id" validate:"required,max=64"`
	Title  string `json:"title" validate:"omitempty,max=255"`
	Body   string `json:"body" validate:"omitempty,max=2000"`
}

// NotificationResponse represents notification data returned to clients.
type NotificationResponse struct {
	ID        uint       `json:"id"`
	UserID    string     `json:"user_id"`
	TripID    *uint      `json:"trip_id,omitempty"`
	Type      string     `json:"type"`
	Title     string     `json:"title,omitempty"`
	Message   string     `json:"message"`
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NotificationPageMeta accompanies a page of the inbox.
type NotificationPageMeta struct {
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Unread int64 `json:"unread"`
}

// NotificationReadAllResponse reports how many entries were marked read.
type NotificationReadAllResponse struct {
	Updated int64 `json:"updated"`
}

// NewNotificationResponse converts a notification model to DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        model.ID,
		UserID:    model.UserID,
		TripID:    model.TripID,
		Type:      model.Type,
		Title:     model.Title,
		Message:   model.Message,
		Read:      model.Read,
		ReadAt:    model.ReadAt,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

// NewNotificationResponseSlice converts a slice to DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}

// UploadResponse describes the stored image metadata returned to the client.
type UploadResponse struct {
	URL       string `json:"url"`
	SizeBytes int64  `json:"size_bytes"`
	MimeType  string `json:"mime_type"`
	Checksum  string `json:"checksum"`
	FileName  string `json:"file_name"`
	Reused    bool   `json:"reused,omitempty"`
}
