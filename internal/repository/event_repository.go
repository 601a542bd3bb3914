package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/court-booking/internal/model"
)

type EventRepository interface {
	Create(ctx context.Context, event *model.Event) error
	ListByGroup(ctx context.Context, groupID uuid.UUID) ([]model.Event, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]model.Event, error)
}

type GormEventRepository struct {
	db *gorm.DB
}

func NewGormEventRepository(db *gorm.DB) *GormEventRepository {
	return &GormEventRepository{db: db}
}

func (r *GormEventRepository) Create(ctx context.Context, event *model.Event) error {
	return mapErr("create event", r.db.WithContext(ctx).Create(event).Error, nil)
}

func (r *GormEventRepository) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]model.Event, error) {
	var events []model.Event
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, mapErr("list events", err, nil)
	}
	return events, nil
}

func (r *GormEventRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]model.Event, error) {
	var events []model.Event
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, mapErr("list events", err, nil)
	}
	return events, nil
}
