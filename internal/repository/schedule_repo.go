package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/tripmate-api/internal/models"
)

// ScheduleRepository persists trip reminder schedules.
type ScheduleRepository interface {
	ReplaceForTrip(ctx context.Context, tripID uint, schedules []models.NotificationSchedule) ([]models.NotificationSchedule, error)
	DeleteByTrip(ctx context.Context, tripID uint) error
	ListByTrip(ctx context.Context, tripID uint) ([]models.NotificationSchedule, error)
	MarkSent(ctx context.Context, tripID uint, reminderType models.ReminderType) error
}

type scheduleRepository struct {
	db *gorm.DB
}

// NewScheduleRepository constructs a schedule repository backed by GORM.
func NewScheduleRepository(db *gorm.DB) ScheduleRepository {
	return &scheduleRepository{db: db}
}

// ReplaceForTrip drops every existing row for the trip and inserts the given ones.
func (r *scheduleRepository) ReplaceForTrip(ctx context.Context, tripID uint, schedules []models.NotificationSchedule) ([]models.NotificationSchedule, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("trip_id = ?", tripID).Delete(&models.NotificationSchedule{}).Error; err != nil {
			return err
		}
		if len(schedules) == 0 {
			return nil
		}
		for i := range schedules {
			schedules[i].TripID = tripID
		}
		return tx.Create(&schedules).Error
	})
	if err != nil {
		return nil, err
	}
	return schedules, nil
}

func (r *scheduleRepository) DeleteByTrip(ctx context.Context, tripID uint) error {
	return r.db.WithContext(ctx).Where("trip_id = ?", tripID).Delete(&models.NotificationSchedule{}).Error
}

func (r *scheduleRepository) ListByTrip(ctx context.Context, tripID uint) ([]models.NotificationSchedule, error) {
	var schedules []models.NotificationSchedule
	if err := r.db.WithContext(ctx).Where("trip_id = ?", tripID).Order("fire_at ASC").Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

func (r *scheduleRepository) MarkSent(ctx context.Context, tripID uint, reminderType models.ReminderType) error {
	return r.db.WithContext(ctx).
		Model(&models.NotificationSchedule{}).
		Where("trip_id = ? AND type = ?", tripID, reminderType).
		Update("sent", true).Error
}
