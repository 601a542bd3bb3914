package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/court-booking/internal/apperror"
	"github.com/Leganyst/court-booking/internal/model"
)

type CourtRepository interface {
	GetCourt(ctx context.Context, id uuid.UUID) (*model.Court, error)
	// Все корты по номеру.
	ListCourts(ctx context.Context) ([]model.Court, error)
	Create(ctx context.Context, court *model.Court) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.CourtStatus) error
}

type GormCourtRepository struct {
	db *gorm.DB
}

func NewGormCourtRepository(db *gorm.DB) *GormCourtRepository {
	return &GormCourtRepository{db: db}
}

func (r *GormCourtRepository) GetCourt(ctx context.Context, id uuid.UUID) (*model.Court, error) {
	var c model.Court
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, mapErr("get court", err, apperror.ErrCourtNotFound)
	}
	return &c, nil
}

func (r *GormCourtRepository) ListCourts(ctx context.Context) ([]model.Court, error) {
	var courts []model.Court
	if err := r.db.WithContext(ctx).Order("number ASC").Find(&courts).Error; err != nil {
		return nil, mapErr("list courts", err, nil)
	}
	return courts, nil
}

func (r *GormCourtRepository) Create(ctx context.Context, court *model.Court) error {
	return mapErr("create court", r.db.WithContext(ctx).Create(court).Error, nil)
}

func (r *GormCourtRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.CourtStatus) error {
	res := r.db.WithContext(ctx).
		Model(&model.Court{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return mapErr("update court", res.Error, nil)
	}
	if res.RowsAffected == 0 {
		return apperror.ErrCourtNotFound
	}
	return nil
}
