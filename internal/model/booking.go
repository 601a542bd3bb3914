package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCheckedIn BookingStatus = "checked_in"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Terminal — отменённые и завершённые бронирования больше не меняются.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusCompleted
}

type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusPaid   PaymentStatus = "paid"
	// Оплачено в составе пакетной оплаты повторяющейся группы.
	PaymentStatusCovered PaymentStatus = "covered"
)

// bookings
//
// Занятый интервал не хранится в минутах: он выводится из
// (TimeSlotID, StartMinute, DurationHalves) по текущему каталогу.
type Booking struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Code string    `gorm:"type:varchar(32);not null;uniqueIndex"`

	CourtID     uuid.UUID      `gorm:"type:uuid;not null;index:idx_bookings_court_date,priority:1"`
	BookingDate datatypes.Date `gorm:"not null;index:idx_bookings_court_date,priority:2"`
	TimeSlotID  uuid.UUID      `gorm:"type:uuid;not null;index"`

	// 0 или 30: с какой половины якорного слота начинается бронь.
	StartMinute int `gorm:"not null;default:0"`
	// Длительность в получасах: 1 = 0.5 ч, 16 = 8 ч.
	DurationHalves int `gorm:"not null"`

	Status        BookingStatus `gorm:"type:varchar(32);not null;index"`
	PaymentStatus PaymentStatus `gorm:"type:varchar(32);not null;default:'unpaid'"`
	Amount        int64         `gorm:"not null;default:0"`

	CustomerName string `gorm:"type:varchar(255)"`
	Comment      string `gorm:"type:text"`

	RecurringGroupID *uuid.UUID `gorm:"type:uuid;index"`
	SequenceIndex    int        `gorm:"not null;default:0"`

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CancelledAt *time.Time

	Court    *Court    `gorm:"foreignKey:CourtID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	TimeSlot *TimeSlot `gorm:"foreignKey:TimeSlotID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (b *Booking) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Date возвращает дату брони как time.Time (полночь UTC).
func (b *Booking) Date() time.Time {
	y, m, d := time.Time(b.BookingDate).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// booking_occupancies — по строке на занятую половину слота.
// Уникальный индекс не даёт двум броням занять одну половину
// даже при гонке между проверкой и записью.
type BookingOccupancy struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	BookingID uuid.UUID `gorm:"type:uuid;not null;index"`

	CourtID     uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uq_occupancy_half,priority:1"`
	BookingDate datatypes.Date `gorm:"not null;uniqueIndex:uq_occupancy_half,priority:2"`
	TimeSlotID  uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uq_occupancy_half,priority:3"`
	Half        int            `gorm:"not null;uniqueIndex:uq_occupancy_half,priority:4"`
}

func (o *BookingOccupancy) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
