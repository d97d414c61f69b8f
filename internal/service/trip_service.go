package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/tripmate-api/internal/dto"
	"github.com/noah-isme/tripmate-api/internal/models"
	"github.com/noah-isme/tripmate-api/internal/repository"
)

// TripOwner identifies the user acting on their trips.
type TripOwner struct {
	ID   string
	Name string
}

// TripService manages trips and keeps their reminders in step.
type TripService interface {
	Create(ctx context.Context, owner TripOwner, req dto.TripCreateRequest) (dto.TripResponse, error)
	Update(ctx context.Context, owner TripOwner, id uint, req dto.TripUpdateRequest) (dto.TripResponse, error)
	Get(ctx context.Context, owner TripOwner, id uint) (dto.TripResponse, error)
	List(ctx context.Context, owner TripOwner) ([]dto.TripResponse, error)
	Delete(ctx context.Context, owner TripOwner, id uint) error
	Schedules(ctx context.Context, owner TripOwner, id uint) ([]dto.ScheduleResponse, error)
}

type tripService struct {
	repo      repository.TripRepository
	schedules repository.ScheduleRepository
	scheduler ReminderScheduler
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewTripService constructs a trip service.
func NewTripService(repo repository.TripRepository, schedules repository.ScheduleRepository, scheduler ReminderScheduler, validate *validator.Validate, logger zerolog.Logger) TripService {
	return &tripService{
		repo:      repo,
		schedules: schedules,
		scheduler: scheduler,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "trip_service").Logger(),
	}
}

func (s *tripService) Create(ctx context.Context, owner TripOwner, req dto.TripCreateRequest) (dto.TripResponse, error) {
	req.Title = strings.TrimSpace(s.sanitizer.Sanitize(req.Title))
	if err := s.validator.Struct(req); err != nil {
		return dto.TripResponse{}, err
	}
	if req.StartAt.After(req.EndAt) {
		return dto.TripResponse{}, ErrInvalidTripDates
	}

	trip := models.Trip{
		OwnerID:   owner.ID,
		OwnerName: owner.Name,
		Title:     req.Title,
		StartAt:   req.StartAt,
		EndAt:     req.EndAt,
	}
	if err := s.repo.Create(ctx, &trip); err != nil {
		return dto.TripResponse{}, err
	}

	trip.Schedules = s.reschedule(ctx, trip)
	return dto.NewTripResponse(trip), nil
}

func (s *tripService) Update(ctx context.Context, owner TripOwner, id uint, req dto.TripUpdateRequest) (dto.TripResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.TripResponse{}, err
	}

	trip, err := s.load(ctx, owner, id)
	if err != nil {
		return dto.TripResponse{}, err
	}

	if req.Title != nil {
		title := strings.TrimSpace(s.sanitizer.Sanitize(*req.Title))
		if title == "" {
			return dto.TripResponse{}, errors.New("title must not be empty")
		}
		trip.Title = title
	}
	if req.StartAt != nil {
		trip.StartAt = *req.StartAt
	}
	if req.EndAt != nil {
		trip.EndAt = *req.EndAt
	}
	if trip.StartAt.After(trip.EndAt) {
		return dto.TripResponse{}, ErrInvalidTripDates
	}
	if owner.Name != "" {
		trip.OwnerName = owner.Name
	}

	trip.Schedules = nil
	if err := s.repo.Update(ctx, &trip); err != nil {
		return dto.TripResponse{}, err
	}

	trip.Schedules = s.reschedule(ctx, trip)
	return dto.NewTripResponse(trip), nil
}

func (s *tripService) Get(ctx context.Context, owner TripOwner, id uint) (dto.TripResponse, error) {
	trip, err := s.load(ctx, owner, id)
	if err != nil {
		return dto.TripResponse{}, err
	}
	return dto.NewTripResponse(trip), nil
}

func (s *tripService) List(ctx context.Context, owner TripOwner) ([]dto.TripResponse, error) {
	trips, err := s.repo.ListByOwner(ctx, owner.ID)
	if err != nil {
		return nil, err
	}
	return dto.NewTripResponseSlice(trips), nil
}

// Delete removes the trip, its schedule rows and any pending alarms.
func (s *tripService) Delete(ctx context.Context, owner TripOwner, id uint) error {
	if _, err := s.load(ctx, owner, id); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTripNotFound
		}
		return err
	}

	if err := s.scheduler.Cancel(ctx, id); err != nil {
		s.logger.Warn().Err(err).Uint("trip_id", id).Msg("failed to cancel trip reminders")
	}
	return nil
}

func (s *tripService) Schedules(ctx context.Context, owner TripOwner, id uint) ([]dto.ScheduleResponse, error) {
	if _, err := s.load(ctx, owner, id); err != nil {
		return nil, err
	}
	rows, err := s.schedules.ListByTrip(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewScheduleResponseSlice(rows), nil
}

func (s *tripService) load(ctx context.Context, owner TripOwner, id uint) (models.Trip, error) {
	trip, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Trip{}, ErrTripNotFound
		}
		return models.Trip{}, err
	}
	if trip.OwnerID != owner.ID {
		return models.Trip{}, ErrTripNotFound
	}
	return trip, nil
}

func (s *tripService) reschedule(ctx context.Context, trip models.Trip) []models.NotificationSchedule {
	schedules, err := s.scheduler.Schedule(ctx, trip, trip.OwnerName)
	if err != nil {
		s.logger.Warn().Err(err).Uint("trip_id", trip.ID).Msg("failed to schedule trip reminders")
		return nil
	}
	return schedules
}
