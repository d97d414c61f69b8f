package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/tripmate-api/internal/alarm"
	"github.com/noah-isme/tripmate-api/internal/dto"
	"github.com/noah-isme/tripmate-api/internal/models"
	"github.com/noah-isme/tripmate-api/internal/observability"
	"github.com/noah-isme/tripmate-api/internal/repository"
)

// NotificationPublisher delivers a notification to a user.
type NotificationPublisher interface {
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
}

// ReminderReceiver turns fired reminder alarms into user notifications.
type ReminderReceiver struct {
	schedules repository.ScheduleRepository
	notifier  NotificationPublisher
	logger    zerolog.Logger
}

// NewReminderReceiver constructs a receiver.
func NewReminderReceiver(schedules repository.ScheduleRepository, notifier NotificationPublisher, logger zerolog.Logger) *ReminderReceiver {
	return &ReminderReceiver{
		schedules: schedules,
		notifier:  notifier,
		logger:    logger.With().Str("component", "reminder_receiver").Logger(),
	}
}

// OnAlarm implements alarm.Receiver.
func (r *ReminderReceiver) OnAlarm(ctx context.Context, payload alarm.Payload) {
	reminderType := models.ReminderType(payload.Type)
	observability.RemindersFired().WithLabelValues(payload.Type).Inc()

	title, body := ReminderCopy(reminderType, payload.TripTitle, payload.DisplayName)
	if payload.UserID != "" && r.notifier != nil {
		_, err := r.notifier.Publish(ctx, dto.NotificationCreateRequest{
			UserID:  payload.UserID,
			TripID:  &payload.TripID,
			Type:    NotificationTypeTripReminder,
			Title:   title,
			Message: body,
		})
		if err != nil {
			r.logger.Warn().Err(err).Uint("trip_id", payload.TripID).Msg("failed to publish trip reminder")
			return
		}
	}

	if err := r.schedules.MarkSent(ctx, payload.TripID, reminderType); err != nil {
		r.logger.Warn().Err(err).Uint("trip_id", payload.TripID).Msg("failed to mark reminder sent")
	}
}

// ReminderCopy resolves the notification title and body for a reminder type.
func ReminderCopy(reminderType models.ReminderType, tripTitle, displayName string) (string, string) {
	tripTitle = strings.TrimSpace(tripTitle)
	if tripTitle == "" {
		tripTitle = "your trip"
	}
	greeting := "Hey"
	if name := strings.TrimSpace(displayName); name != "" {
		greeting = "Hey " + name
	}

	switch reminderType {
	case models.ReminderSevenDay:
		return "One week to go", fmt.Sprintf("%s, %s starts in 7 days. Time to start planning your packing list.", greeting, tripTitle)
	case models.ReminderThreeDay:
		return "3 days left", fmt.Sprintf("%s, only 3 days until %s. Double-check your bookings and itinerary.", greeting, tripTitle)
	case models.ReminderDayOf:
		return "Today's the day", fmt.Sprintf("%s, %s starts today. Have a great trip!", greeting, tripTitle)
	default:
		return "Trip reminder", fmt.Sprintf("%s, don't forget about %s.", greeting, tripTitle)
	}
}
