package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/tripmate-api/internal/models"
)

// UploadRepository records chat images so repeated uploads of the same file
// into a room reuse the stored copy.
type UploadRepository interface {
	Create(ctx context.Context, record *models.UploadRecord) error
	FindInRoom(ctx context.Context, roomID, checksum string) (*models.UploadRecord, error)
}

type uploadRepository struct {
	db *gorm.DB
}

// NewUploadRepository constructs a repository for upload records.
func NewUploadRepository(db *gorm.DB) UploadRepository {
	return &uploadRepository{db: db}
}

func (r *uploadRepository) Create(ctx context.Context, record *models.UploadRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// FindInRoom returns nil without error when the room has no image with that checksum.
func (r *uploadRepository) FindInRoom(ctx context.Context, roomID, checksum string) (*models.UploadRecord, error) {
	var record models.UploadRecord
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND checksum = ?", roomID, checksum).
		Order("id ASC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}
