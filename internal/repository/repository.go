package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Leganyst/court-booking/internal/apperror"
)

// Repositories — набор репозиториев поверх одного соединения или транзакции.
type Repositories struct {
	db *gorm.DB

	TimeSlots *GormTimeSlotRepository
	Courts    *GormCourtRepository
	Bookings  *GormBookingRepository
	Groups    *GormGroupRepository
	Policy    *GormPolicyRepository
	Events    *GormEventRepository
}

func New(db *gorm.DB) *Repositories {
	return &Repositories{
		db:        db,
		TimeSlots: NewGormTimeSlotRepository(db),
		Courts:    NewGormCourtRepository(db),
		Bookings:  NewGormBookingRepository(db),
		Groups:    NewGormGroupRepository(db),
		Policy:    NewGormPolicyRepository(db),
		Events:    NewGormEventRepository(db),
	}
}

// Transaction выполняет fn с репозиториями, привязанными к одной транзакции.
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
	var appErr *apperror.Error
	if err == nil || errors.As(err, &appErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperror.Dependency("transaction", err)
}

// mapErr переводит ошибки GORM в таксономию движка.
func mapErr(op string, err error, notFound *apperror.Error) error {
	var appErr *apperror.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound) && notFound != nil:
		return notFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return apperror.Dependency(op, err)
	}
}
