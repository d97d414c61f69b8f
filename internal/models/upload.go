package models

import "time"

// UploadRecord is a chat image kept in object storage. Room and checksum
// together identify the stored copy reused for repeat uploads.
type UploadRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RoomID    string    `gorm:"size:128;not null;index:idx_upload_room_checksum,priority:1" json:"room_id"`
	Checksum  string    `gorm:"size:64;not null;index:idx_upload_room_checksum,priority:2" json:"checksum"`
	UserID    string    `gorm:"size:64;index" json:"user_id"`
	FileName  string    `gorm:"size:255;not null" json:"file_name"`
	URL       string    `gorm:"size:512;not null" json:"url"`
	MimeType  string    `gorm:"size:64;not null" json:"mime_type"`
	SizeBytes int64     `gorm:"not null" json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}
