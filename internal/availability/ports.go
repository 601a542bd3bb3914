package availability

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Leganyst/court-booking/internal/model"
)

// TimeSlotStore отдаёт каталог слотов.
type TimeSlotStore interface {
	// ListTimeSlots возвращает слоты типа дня, упорядоченные по началу.
	ListTimeSlots(ctx context.Context, dayType model.DayType) ([]model.TimeSlot, error)
	GetTimeSlot(ctx context.Context, id uuid.UUID) (*model.TimeSlot, error)
}

type CourtStore interface {
	GetCourt(ctx context.Context, id uuid.UUID) (*model.Court, error)
	// ListCourts возвращает все корты, упорядоченные по номеру.
	ListCourts(ctx context.Context) ([]model.Court, error)
}

// BookingStore отдаёт неотменённые брони.
type BookingStore interface {
	ListActiveBookings(ctx context.Context, courtID uuid.UUID, date time.Time, excludeID *uuid.UUID) ([]model.Booking, error)
	ListActiveBookingsOnDate(ctx context.Context, date time.Time) ([]model.Booking, error)
}

// DateBlock — ответ оракула закрытых дат.
type DateBlock struct {
	IsBlocked bool
	Reason    string
}

type BlockedDateOracle interface {
	IsDateBlocked(ctx context.Context, date time.Time) (DateBlock, error)
}

type GroupPlayOracle interface {
	IsSlotBlocked(ctx context.Context, courtID uuid.UUID, weekday, slotStart string) (bool, error)
}

// GroupPlayKey — ключ блокировки групповой игры внутри одного дня недели.
type GroupPlayKey struct {
	CourtID   uuid.UUID
	SlotStart string
}

// GroupPlayLister — необязательное расширение оракула для построения
// сетки одним запросом вместо запроса на ячейку.
type GroupPlayLister interface {
	ListBlockedSlots(ctx context.Context, weekday string) (map[GroupPlayKey]bool, error)
}
