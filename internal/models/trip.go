package models

import "time"

// ReminderType identifies which of the three trip reminders a schedule row represents.
type ReminderType string

const (
	ReminderSevenDay ReminderType = "seven_day"
	ReminderThreeDay ReminderType = "three_day"
	ReminderDayOf    ReminderType = "day_of"
)

// ReminderTypes lists every reminder type in firing order.
var ReminderTypes = []ReminderType{ReminderSevenDay, ReminderThreeDay, ReminderDayOf}

// Trip is a user-planned travel period.
type Trip struct {
	ID        uint                   `gorm:"primaryKey" json:"id"`
	OwnerID   string                 `gorm:"size:64;index;not null" json:"owner_id"`
	OwnerName string                 `gorm:"size:128" json:"owner_name"`
	Title     string                 `gorm:"size:255;not null" json:"title"`
	StartAt   time.Time              `gorm:"index;not null" json:"start_at"`
	EndAt     time.Time              `gorm:"not null" json:"end_at"`
	Schedules []NotificationSchedule `gorm:"constraint:OnDelete:CASCADE" json:"schedules,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// NotificationSchedule is one pending reminder for a trip.
type NotificationSchedule struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	TripID    uint         `gorm:"not null;uniqueIndex:idx_schedule_trip_type" json:"trip_id"`
	Type      ReminderType `gorm:"size:32;not null;uniqueIndex:idx_schedule_trip_type" json:"type"`
	FireAt    time.Time    `gorm:"index;not null" json:"fire_at"`
	AlarmKey  int32        `gorm:"not null" json:"alarm_key"`
	Sent      bool         `gorm:"not null;default:false" json:"sent"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
