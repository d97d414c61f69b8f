package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/tripmate-api/internal/alarm"
	"github.com/noah-isme/tripmate-api/internal/models"
	"github.com/noah-isme/tripmate-api/internal/observability"
	"github.com/noah-isme/tripmate-api/internal/repository"
)

const defaultDayOfHour = 8

// FireTime is one computed reminder instant.
type FireTime struct {
	Type models.ReminderType
	At   time.Time
}

// ComputeFireTimes returns the reminders for a trip starting at start that are
// still in the future relative to now, in firing order. The day-of reminder
// fires at dayOfHour on the start date in loc.
func ComputeFireTimes(start, now time.Time, loc *time.Location, dayOfHour int) []FireTime {
	if loc == nil {
		loc = time.Local
	}
	local := start.In(loc)
	candidates := []FireTime{
		{Type: models.ReminderSevenDay, At: start.Add(-7 * 24 * time.Hour)},
		{Type: models.ReminderThreeDay, At: start.Add(-3 * 24 * time.Hour)},
		{Type: models.ReminderDayOf, At: time.Date(local.Year(), local.Month(), local.Day(), dayOfHour, 0, 0, 0, loc)},
	}

	out := make([]FireTime, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.At.After(now) {
			out = append(out, candidate)
		}
	}
	return out
}

// ReminderScheduler registers trip reminders with the alarm facility.
type ReminderScheduler interface {
	Schedule(ctx context.Context, trip models.Trip, displayName string) ([]models.NotificationSchedule, error)
	Cancel(ctx context.Context, tripID uint) error
	Restore(ctx context.Context) (int, error)
}

// ReminderSchedulerConfig tunes fire time computation.
type ReminderSchedulerConfig struct {
	Location  *time.Location
	DayOfHour int
	Now       func() time.Time
}

type reminderScheduler struct {
	trips     repository.TripRepository
	schedules repository.ScheduleRepository
	alarms    alarm.Manager
	location  *time.Location
	dayOfHour int
	now       func() time.Time
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewReminderScheduler constructs a scheduler.
func NewReminderScheduler(trips repository.TripRepository, schedules repository.ScheduleRepository, alarms alarm.Manager, cfg ReminderSchedulerConfig, logger zerolog.Logger) ReminderScheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.DayOfHour < 0 || cfg.DayOfHour > 23 {
		cfg.DayOfHour = defaultDayOfHour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &reminderScheduler{
		trips:     trips,
		schedules: schedules,
		alarms:    alarms,
		location:  cfg.Location,
		dayOfHour: cfg.DayOfHour,
		now:       cfg.Now,
		logger:    logger.With().Str("component", "reminder_scheduler").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/tripmate-api/internal/service/reminders"),
	}
}

// Schedule stores the trip's surviving reminders and then swaps its alarms
// over to them. Stored rows are left alone when the upcoming reminders are
// unchanged, which keeps their sent flags. If storing fails the previous
// alarms stay registered.
func (s *reminderScheduler) Schedule(ctx context.Context, trip models.Trip, displayName string) ([]models.NotificationSchedule, error) {
	ctx, span := s.tracer.Start(ctx, "reminders.schedule", trace.WithAttributes(
		attribute.Int64("trip.id", int64(trip.ID)),
	))
	defer span.End()

	now := s.now()
	fireTimes := ComputeFireTimes(trip.StartAt, now, s.location, s.dayOfHour)
	rows := make([]models.NotificationSchedule, 0, len(fireTimes))
	for _, fireTime := range fireTimes {
		rows = append(rows, models.NotificationSchedule{
			TripID:   trip.ID,
			Type:     fireTime.Type,
			FireAt:   fireTime.At,
			AlarmKey: alarm.Key(trip.ID, string(fireTime.Type)),
		})
	}

	stored, err := s.schedules.ListByTrip(ctx, trip.ID)
	unchanged := err == nil && sameUpcoming(stored, rows, now)
	span.SetAttributes(attribute.Bool("reminders.unchanged", unchanged))
	if unchanged {
		stored = upcomingRows(stored, now)
	} else {
		stored, err = s.schedules.ReplaceForTrip(ctx, trip.ID, rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("store schedules for trip %d: %w", trip.ID, err)
		}
	}

	s.cancelAlarms(trip.ID)
	for _, row := range stored {
		if row.Sent {
			continue
		}
		payload := alarm.Payload{
			TripID:      trip.ID,
			UserID:      trip.OwnerID,
			TripTitle:   trip.Title,
			Type:        string(row.Type),
			DisplayName: displayName,
		}
		if err := s.alarms.Set(row.AlarmKey, row.FireAt, payload); err != nil {
			s.logger.Warn().Err(err).Uint("trip_id", trip.ID).Str("type", string(row.Type)).Msg("failed to register reminder alarm")
			continue
		}
		if !unchanged {
			observability.RemindersScheduled().WithLabelValues(string(row.Type)).Inc()
		}
	}

	s.logger.Debug().Uint("trip_id", trip.ID).Int("reminders", len(stored)).Bool("unchanged", unchanged).Msg("trip reminders scheduled")
	return stored, nil
}

// Cancel issues cancellation for every reminder key of the trip and drops its rows.
func (s *reminderScheduler) Cancel(ctx context.Context, tripID uint) error {
	s.cancelAlarms(tripID)
	if err := s.schedules.DeleteByTrip(ctx, tripID); err != nil {
		return fmt.Errorf("delete schedules for trip %d: %w", tripID, err)
	}
	return nil
}

// Restore re-derives reminders for trips that have not started yet. It is
// safe to run repeatedly.
func (s *reminderScheduler) Restore(ctx context.Context) (int, error) {
	// A trip that started earlier today may still have its day-of reminder ahead.
	trips, err := s.trips.ListStartingAfter(ctx, s.now().Add(-24*time.Hour))
	if err != nil {
		return 0, fmt.Errorf("list upcoming trips: %w", err)
	}

	restored := 0
	for _, trip := range trips {
		if ctx.Err() != nil {
			return restored, ctx.Err()
		}
		if _, err := s.Schedule(ctx, trip, trip.OwnerName); err != nil {
			s.logger.Warn().Err(err).Uint("trip_id", trip.ID).Msg("failed to restore trip reminders")
			continue
		}
		restored++
	}
	return restored, nil
}

// sameUpcoming reports whether the stored rows still due after now are
// exactly the computed ones.
func sameUpcoming(stored, computed []models.NotificationSchedule, now time.Time) bool {
	upcoming := upcomingRows(stored, now)
	if len(upcoming) != len(computed) {
		return false
	}
	for _, want := range computed {
		found := false
		for _, have := range upcoming {
			if have.Type == want.Type && have.AlarmKey == want.AlarmKey && have.FireAt.Equal(want.FireAt) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func upcomingRows(rows []models.NotificationSchedule, now time.Time) []models.NotificationSchedule {
	out := make([]models.NotificationSchedule, 0, len(rows))
	for _, row := range rows {
		if row.FireAt.After(now) {
			out = append(out, row)
		}
	}
	return out
}

func (s *reminderScheduler) cancelAlarms(tripID uint) {
	for _, reminderType := range models.ReminderTypes {
		s.alarms.Cancel(alarm.Key(tripID, string(reminderType)))
	}
}
