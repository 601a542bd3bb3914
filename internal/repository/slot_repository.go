package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/court-booking/internal/apperror"
	"github.com/Leganyst/court-booking/internal/model"
)

type TimeSlotRepository interface {
	// Слоты типа дня, упорядоченные по началу.
	ListTimeSlots(ctx context.Context, dayType model.DayType) ([]model.TimeSlot, error)
	// Найти слот по ID.
	GetTimeSlot(ctx context.Context, id uuid.UUID) (*model.TimeSlot, error)
	// Создать слот.
	Create(ctx context.Context, slot *model.TimeSlot) error
	// Обновить статус слота.
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.TimeSlotStatus) error
}

type GormTimeSlotRepository struct {
	db *gorm.DB
}

func NewGormTimeSlotRepository(db *gorm.DB) *GormTimeSlotRepository {
	return &GormTimeSlotRepository{db: db}
}

func (r *GormTimeSlotRepository) ListTimeSlots(ctx context.Context, dayType model.DayType) ([]model.TimeSlot, error) {
	var slots []model.TimeSlot
	err := r.db.WithContext(ctx).
		Where("day_type = ?", dayType).
		Where("status = ?", model.TimeSlotStatusActive).
		Order("start_time ASC").
		Find(&slots).Error
	if err != nil {
		return nil, mapErr("list time slots", err, nil)
	}
	return slots, nil
}

func (r *GormTimeSlotRepository) GetTimeSlot(ctx context.Context, id uuid.UUID) (*model.TimeSlot, error) {
	var slot model.TimeSlot
	if err := r.db.WithContext(ctx).First(&slot, "id = ?", id).Error; err != nil {
		return nil, mapErr("get time slot", err, apperror.ErrTimeSlotNotFound)
	}
	return &slot, nil
}

func (r *GormTimeSlotRepository) Create(ctx context.Context, slot *model.TimeSlot) error {
	return mapErr("create time slot", r.db.WithContext(ctx).Create(slot).Error, nil)
}

func (r *GormTimeSlotRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.TimeSlotStatus) error {
	res := r.db.WithContext(ctx).
		Model(&model.TimeSlot{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return mapErr("update time slot", res.Error, nil)
	}
	if res.RowsAffected == 0 {
		return apperror.ErrTimeSlotNotFound
	}
	return nil
}
