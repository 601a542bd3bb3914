package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Leganyst/court-booking/internal/availability"
	"github.com/Leganyst/court-booking/internal/calendar"
	"github.com/Leganyst/court-booking/internal/model"
)

// PolicyRepository — оракулы закрытых дат и групповых игр.
type PolicyRepository interface {
	IsDateBlocked(ctx context.Context, date time.Time) (availability.DateBlock, error)
	BlockDate(ctx context.Context, date time.Time, reason string) error
	UnblockDate(ctx context.Context, date time.Time) error

	IsSlotBlocked(ctx context.Context, courtID uuid.UUID, weekday, slotStart string) (bool, error)
	ListBlockedSlots(ctx context.Context, weekday string) (map[availability.GroupPlayKey]bool, error)
	AddGroupPlayBlock(ctx context.Context, block *model.GroupPlayBlock) error
	RemoveGroupPlayBlock(ctx context.Context, id uuid.UUID) error
}

type GormPolicyRepository struct {
	db *gorm.DB
}

func NewGormPolicyRepository(db *gorm.DB) *GormPolicyRepository {
	return &GormPolicyRepository{db: db}
}

func (r *GormPolicyRepository) IsDateBlocked(ctx context.Context, date time.Time) (availability.DateBlock, error) {
	var bd model.BlockedDate
	err := r.db.WithContext(ctx).
		First(&bd, "date = ?", datatypes.Date(calendar.DateOnly(date))).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return availability.DateBlock{}, nil
	}
	if err != nil {
		return availability.DateBlock{}, mapErr("check blocked date", err, nil)
	}
	return availability.DateBlock{IsBlocked: true, Reason: bd.Reason}, nil
}

// BlockDate идемпотентна: повторный вызов обновляет причину.
func (r *GormPolicyRepository) BlockDate(ctx context.Context, date time.Time, reason string) error {
	bd := model.BlockedDate{Date: datatypes.Date(calendar.DateOnly(date)), Reason: reason}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"reason"}),
		}).
		Create(&bd).Error
	return mapErr("block date", err, nil)
}

func (r *GormPolicyRepository) UnblockDate(ctx context.Context, date time.Time) error {
	err := r.db.WithContext(ctx).
		Delete(&model.BlockedDate{}, "date = ?", datatypes.Date(calendar.DateOnly(date))).Error
	return mapErr("unblock date", err, nil)
}

func (r *GormPolicyRepository) IsSlotBlocked(ctx context.Context, courtID uuid.UUID, weekday, slotStart string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.GroupPlayBlock{}).
		Where("court_id = ? AND weekday = ? AND slot_start = ?", courtID, weekday, slotStart).
		Count(&count).Error
	if err != nil {
		return false, mapErr("check group play", err, nil)
	}
	return count > 0, nil
}

// ListBlockedSlots отдаёт все блокировки дня недели одним запросом.
func (r *GormPolicyRepository) ListBlockedSlots(ctx context.Context, weekday string) (map[availability.GroupPlayKey]bool, error) {
	var blocks []model.GroupPlayBlock
	if err := r.db.WithContext(ctx).Where("weekday = ?", weekday).Find(&blocks).Error; err != nil {
		return nil, mapErr("list group play", err, nil)
	}
	out := make(map[availability.GroupPlayKey]bool, len(blocks))
	for _, b := range blocks {
		out[availability.GroupPlayKey{CourtID: b.CourtID, SlotStart: b.SlotStart}] = true
	}
	return out, nil
}

func (r *GormPolicyRepository) AddGroupPlayBlock(ctx context.Context, block *model.GroupPlayBlock) error {
	return mapErr("add group play block", r.db.WithContext(ctx).Create(block).Error, nil)
}

func (r *GormPolicyRepository) RemoveGroupPlayBlock(ctx context.Context, id uuid.UUID) error {
	return mapErr("remove group play block", r.db.WithContext(ctx).Delete(&model.GroupPlayBlock{}, "id = ?", id).Error, nil)
}
