package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Leganyst/court-booking/internal/apperror"
	"github.com/Leganyst/court-booking/internal/calendar"
	"github.com/Leganyst/court-booking/internal/model"
)

type BookingRepository interface {
	// Создать бронирование вместе со строками занятых половин.
	Create(ctx context.Context, booking *model.Booking, tokens []calendar.HalfToken) error
	// Получить бронирование по ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	// То же, с блокировкой строки до конца транзакции.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	// Неотменённые брони корта за дату.
	ListActiveBookings(ctx context.Context, courtID uuid.UUID, date time.Time, excludeID *uuid.UUID) ([]model.Booking, error)
	// Неотменённые брони всех кортов за дату.
	ListActiveBookingsOnDate(ctx context.Context, date time.Time) ([]model.Booking, error)
	// Отменить брони и освободить их половины.
	Cancel(ctx context.Context, ids []uuid.UUID, cancelledAt time.Time) (int64, error)
	// Брони группы с пагинацией по порядковому номеру.
	ListByGroup(ctx context.Context, groupID uuid.UUID, limit, offset int) ([]model.Booking, int64, error)
	// Все брони группы с блокировкой.
	ListByGroupForUpdate(ctx context.Context, groupID uuid.UUID) ([]model.Booking, error)
	// Отметить неотменённые брони группы оплаченными пакетом.
	MarkGroupCovered(ctx context.Context, groupID uuid.UUID) (int64, error)
}

// Реализация на GORM.
type GormBookingRepository struct {
	db *gorm.DB
}

func NewGormBookingRepository(db *gorm.DB) *GormBookingRepository {
	return &GormBookingRepository{db: db}
}

// Create пишет бронь и по строке на каждую половину. Уникальный индекс
// занятости отклоняет вставку, если половину успела занять другая бронь.
func (r *GormBookingRepository) Create(ctx context.Context, booking *model.Booking, tokens []calendar.HalfToken) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(booking).Error; err != nil {
			return err
		}
		if len(tokens) == 0 {
			return nil
		}
		rows := make([]model.BookingOccupancy, 0, len(tokens))
		for _, t := range tokens {
			rows = append(rows, model.BookingOccupancy{
				BookingID:   booking.ID,
				CourtID:     booking.CourtID,
				BookingDate: booking.BookingDate,
				TimeSlotID:  t.SlotID,
				Half:        int(t.Half),
			})
		}
		return tx.Create(&rows).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperror.ErrSlotConflict.Wrap(err)
	}
	return mapErr("create booking", err, nil)
}

func (r *GormBookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	var b model.Booking
	if err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, mapErr("get booking", err, apperror.ErrBookingNotFound)
	}
	return &b, nil
}

func (r *GormBookingRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	var b model.Booking
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&b, "id = ?", id).Error
	if err != nil {
		return nil, mapErr("get booking", err, apperror.ErrBookingNotFound)
	}
	return &b, nil
}

func (r *GormBookingRepository) ListActiveBookings(
	ctx context.Context,
	courtID uuid.UUID,
	date time.Time,
	excludeID *uuid.UUID,
) ([]model.Booking, error) {
	q := r.db.WithContext(ctx).
		Where("court_id = ?", courtID).
		Where("booking_date = ?", datatypes.Date(calendar.DateOnly(date))).
		Where("status <> ?", model.BookingStatusCancelled)
	if excludeID != nil {
		q = q.Where("id <> ?", *excludeID)
	}

	var bookings []model.Booking
	if err := q.Order("created_at ASC").Find(&bookings).Error; err != nil {
		return nil, mapErr("list bookings", err, nil)
	}
	return bookings, nil
}

func (r *GormBookingRepository) ListActiveBookingsOnDate(ctx context.Context, date time.Time) ([]model.Booking, error) {
	var bookings []model.Booking
	err := r.db.WithContext(ctx).
		Where("booking_date = ?", datatypes.Date(calendar.DateOnly(date))).
		Where("status <> ?", model.BookingStatusCancelled).
		Order("created_at ASC").
		Find(&bookings).Error
	if err != nil {
		return nil, mapErr("list bookings", err, nil)
	}
	return bookings, nil
}

func (r *GormBookingRepository) Cancel(ctx context.Context, ids []uuid.UUID, cancelledAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Booking{}).
			Where("id IN ?", ids).
			Where("status NOT IN ?", []model.BookingStatus{model.BookingStatusCancelled, model.BookingStatusCompleted}).
			Updates(map[string]any{
				"status":       model.BookingStatusCancelled,
				"cancelled_at": cancelledAt,
			})
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected
		cancelled := tx.Model(&model.Booking{}).
			Select("id").
			Where("id IN ?", ids).
			Where("status = ?", model.BookingStatusCancelled)
		return tx.Where("booking_id IN (?)", cancelled).Delete(&model.BookingOccupancy{}).Error
	})
	if err != nil {
		return 0, mapErr("cancel bookings", err, nil)
	}
	return affected, nil
}

func (r *GormBookingRepository) ListByGroup(
	ctx context.Context,
	groupID uuid.UUID,
	limit, offset int,
) ([]model.Booking, int64, error) {
	var (
		bookings []model.Booking
		total    int64
	)

	q := r.db.WithContext(ctx).
		Model(&model.Booking{}).
		Where("recurring_group_id = ?", groupID)

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, mapErr("count group bookings", err, nil)
	}

	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	if err := q.Order("sequence_index ASC").Find(&bookings).Error; err != nil {
		return nil, 0, mapErr("list group bookings", err, nil)
	}

	return bookings, total, nil
}

func (r *GormBookingRepository) ListByGroupForUpdate(ctx context.Context, groupID uuid.UUID) ([]model.Booking, error) {
	var bookings []model.Booking
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("recurring_group_id = ?", groupID).
		Order("sequence_index ASC").
		Find(&bookings).Error
	if err != nil {
		return nil, mapErr("list group bookings", err, nil)
	}
	return bookings, nil
}

func (r *GormBookingRepository) MarkGroupCovered(ctx context.Context, groupID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Booking{}).
		Where("recurring_group_id = ?", groupID).
		Where("status <> ?", model.BookingStatusCancelled).
		Update("payment_status", model.PaymentStatusCovered)
	if res.Error != nil {
		return 0, mapErr("mark group bookings covered", res.Error, nil)
	}
	return res.RowsAffected, nil
}
