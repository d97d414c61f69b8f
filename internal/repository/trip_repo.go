package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/tripmate-api/internal/models"
)

// TripRepository persists trips.
type TripRepository interface {
	Create(ctx context.Context, trip *models.Trip) error
	Update(ctx context.Context, trip *models.Trip) error
	FindByID(ctx context.Context, id uint) (models.Trip, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Trip, error)
	ListStartingAfter(ctx context.Context, after time.Time) ([]models.Trip, error)
	Delete(ctx context.Context, id uint) error
}

type tripRepository struct {
	db *gorm.DB
}

// NewTripRepository constructs a trip repository backed by GORM.
func NewTripRepository(db *gorm.DB) TripRepository {
	return &tripRepository{db: db}
}

func (r *tripRepository) Create(ctx context.Context, trip *models.Trip) error {
	return r.db.WithContext(ctx).Omit("Schedules").Create(trip).Error
}

func (r *tripRepository) Update(ctx context.Context, trip *models.Trip) error {
	return r.db.WithContext(ctx).Omit("Schedules").Save(trip).Error
}

func (r *tripRepository) FindByID(ctx context.Context, id uint) (models.Trip, error) {
	var trip models.Trip
	err := r.db.WithContext(ctx).
		Preload("Schedules", func(db *gorm.DB) *gorm.DB { return db.Order("fire_at ASC") }).
		First(&trip, id).Error
	if err != nil {
		return models.Trip{}, err
	}
	return trip, nil
}

func (r *tripRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Trip, error) {
	var trips []models.Trip
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("start_at ASC").Find(&trips).Error; err != nil {
		return nil, err
	}
	return trips, nil
}

func (r *tripRepository) ListStartingAfter(ctx context.Context, after time.Time) ([]models.Trip, error) {
	var trips []models.Trip
	if err := r.db.WithContext(ctx).Where("start_at > ?", after).Order("start_at ASC").Find(&trips).Error; err != nil {
		return nil, err
	}
	return trips, nil
}

// Delete removes the trip together with its schedule rows.
func (r *tripRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("trip_id = ?", id).Delete(&models.NotificationSchedule{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Trip{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
