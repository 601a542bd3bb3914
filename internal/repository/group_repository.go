package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Leganyst/court-booking/internal/apperror"
	"github.com/Leganyst/court-booking/internal/model"
)

type GroupRepository interface {
	Create(ctx context.Context, group *model.RecurringBookingGroup) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.RecurringBookingGroup, error)
	// Группа с блокировкой строки до конца транзакции.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.RecurringBookingGroup, error)
	// Сохранить итог создания: сумму и пропущенные даты.
	SaveOutcome(ctx context.Context, group *model.RecurringBookingGroup) error
	// Перевести группу в cancelled и записать число отменённых броней.
	MarkCancelled(ctx context.Context, id uuid.UUID, cancelledCount int, at time.Time) error
	// Сохранить новое состояние пакетной оплаты и платёж.
	RecordPayment(ctx context.Context, payment *model.GroupPayment, paid int64, status model.BulkPaymentStatus) error
	ListPayments(ctx context.Context, groupID uuid.UUID) ([]model.GroupPayment, error)
}

type GormGroupRepository struct {
	db *gorm.DB
}

func NewGormGroupRepository(db *gorm.DB) *GormGroupRepository {
	return &GormGroupRepository{db: db}
}

func (r *GormGroupRepository) Create(ctx context.Context, group *model.RecurringBookingGroup) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(group).Error
	return mapErr("create recurring group", err, nil)
}

func (r *GormGroupRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.RecurringBookingGroup, error) {
	var g model.RecurringBookingGroup
	if err := r.db.WithContext(ctx).First(&g, "id = ?", id).Error; err != nil {
		return nil, mapErr("get recurring group", err, apperror.ErrGroupNotFound)
	}
	return &g, nil
}

func (r *GormGroupRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.RecurringBookingGroup, error) {
	var g model.RecurringBookingGroup
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&g, "id = ?", id).Error
	if err != nil {
		return nil, mapErr("get recurring group", err, apperror.ErrGroupNotFound)
	}
	return &g, nil
}

func (r *GormGroupRepository) SaveOutcome(ctx context.Context, group *model.RecurringBookingGroup) error {
	err := r.db.WithContext(ctx).
		Model(group).
		Select("total_amount", "skipped_dates", "payment_status").
		Updates(group).Error
	return mapErr("save recurring group", err, nil)
}

func (r *GormGroupRepository) MarkCancelled(ctx context.Context, id uuid.UUID, cancelledCount int, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&model.RecurringBookingGroup{}).
		Where("id = ?", id).
		Where("status = ?", model.GroupStatusActive).
		Updates(map[string]any{
			"status":          model.GroupStatusCancelled,
			"cancelled_count": cancelledCount,
			"cancelled_at":    at,
		})
	if res.Error != nil {
		return mapErr("cancel recurring group", res.Error, nil)
	}
	if res.RowsAffected == 0 {
		return apperror.ErrGroupNotActive
	}
	return nil
}

// RecordPayment сохраняет платёж. Условие на paid_amount защищает от
// уменьшения суммы при гонке без блокировки.
func (r *GormGroupRepository) RecordPayment(
	ctx context.Context,
	payment *model.GroupPayment,
	paid int64,
	status model.BulkPaymentStatus,
) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.RecurringBookingGroup{}).
			Where("id = ?", payment.GroupID).
			Where("paid_amount = ?", paid-payment.Amount).
			Updates(map[string]any{
				"paid_amount":    paid,
				"payment_status": status,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperror.ErrConcurrentUpdate
		}
		return tx.Create(payment).Error
	})
	return mapErr("record group payment", err, nil)
}

func (r *GormGroupRepository) ListPayments(ctx context.Context, groupID uuid.UUID) ([]model.GroupPayment, error) {
	var payments []model.GroupPayment
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("paid_at ASC").
		Find(&payments).Error
	if err != nil {
		return nil, mapErr("list group payments", err, nil)
	}
	return payments, nil
}
