package dto

import (
	"time"

	"github.com/noah-isme/tripmate-api/internal/models"
)

// TripCreateRequest is the payload used to create a trip.
type TripCreateRequest struct {
	Title   string    `json:"title" validate:"required,min=1,max=255"`
	StartAt time.Time `json:"start_at" validate:"required"`
	EndAt   time.Time `json:"end_at" validate:"required,gtefield=StartAt"`
}

// TripUpdateRequest replaces the mutable fields of a trip.
type TripUpdateRequest struct {
	Title   *string    `json:"title" validate:"omitempty,min=1,max=255"`
	StartAt *time.Time `json:"start_at"`
	EndAt   *time.Time `json:"end_at"`
}

// TripResponse is the serialized representation of a trip.
type TripResponse struct {
	ID        uint               `json:"id"`
	OwnerID   string             `json:"owner_id"`
	Title     string             `json:"title"`
	StartAt   time.Time          `json:"start_at"`
	EndAt     time.Time          `json:"end_at"`
	Schedules []ScheduleResponse `json:"schedules,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// ScheduleResponse describes one pending reminder.
type ScheduleResponse struct {
	ID     uint      `json:"id"`
	TripID uint      `json:"trip_id"`
	Type   string    `json:"type"`
	FireAt time.Time `json:"fire_at"`
	Sent   bool      `json:"sent"`
}

// NewTripResponse converts a trip model into a DTO, including schedules when loaded.
func NewTripResponse(trip models.Trip) TripResponse {
	response := TripResponse{
		ID:        trip.ID,
		OwnerID:   trip.OwnerID,
		Title:     trip.Title,
		StartAt:   trip.StartAt,
		EndAt:     trip.EndAt,
		CreatedAt: trip.CreatedAt,
		UpdatedAt: trip.UpdatedAt,
	}
	if len(trip.Schedules) > 0 {
		response.Schedules = NewScheduleResponseSlice(trip.Schedules)
	}
	return response
}

// NewTripResponseSlice converts trips into DTOs.
func NewTripResponseSlice(trips []models.Trip) []TripResponse {
	out := make([]TripResponse, 0, len(trips))
	for _, trip := range trips {
		out = append(out, NewTripResponse(trip))
	}
	return out
}

// NewScheduleResponse converts a schedule row into a DTO.
func NewScheduleResponse(schedule models.NotificationSchedule) ScheduleResponse {
	return ScheduleResponse{
		ID:     schedule.ID,
		TripID: schedule.TripID,
		Type:   string(schedule.Type),
		FireAt: schedule.FireAt,
		Sent:   schedule.Sent,
	}
}

// NewScheduleResponseSlice converts schedule rows into DTOs.
func NewScheduleResponseSlice(items []models.NotificationSchedule) []ScheduleResponse {
	out := make([]ScheduleResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewScheduleResponse(item))
	}
	return out
}
