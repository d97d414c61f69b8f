package models

import "time"

// Notification is an inbox entry shown to one user. Trip reminders carry the
// trip they refer to so clients can open it.
type Notification struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    string     `gorm:"size:64;index:idx_notification_inbox,priority:1" json:"user_id"`
	TripID    *uint      `gorm:"index" json:"trip_id,omitempty"`
	Type      string     `gorm:"size:64" json:"type"`
	Title     string     `gorm:"size:255" json:"title"`
	Message   string     `gorm:"type:text" json:"message"`
	Read      bool       `gorm:"not null;default:false;index:idx_notification_inbox,priority:2" json:"read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
