package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type GroupStatus string

const (
	GroupStatusActive    GroupStatus = "active"
	GroupStatusCompleted GroupStatus = "completed"
	GroupStatusCancelled GroupStatus = "cancelled"
)

type PaymentMode string

const (
	PaymentModeBulk       PaymentMode = "bulk"
	PaymentModePerSession PaymentMode = "per_session"
)

type BulkPaymentStatus string

const (
	BulkPaymentPending BulkPaymentStatus = "pending"
	BulkPaymentPartial BulkPaymentStatus = "partial"
	BulkPaymentPaid    BulkPaymentStatus = "paid"
)

// Причина пропуска даты при планировании.
type SkipReason string

const (
	SkipReasonBlocked  SkipReason = "blocked"
	SkipReasonConflict SkipReason = "conflict"
)

// SkippedDate — дата шаблона, на которую бронь не создана.
type SkippedDate struct {
	Date   string     `json:"date"`
	Reason SkipReason `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}

// recurring_booking_groups — родитель набора еженедельных броней.
type RecurringBookingGroup struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Code string    `gorm:"type:varchar(32);not null;uniqueIndex"`

	// Шаблон: дни недели (0 = воскресенье), слот, длительность, корт.
	CourtID        uuid.UUID                `gorm:"type:uuid;not null;index"`
	TimeSlotID     uuid.UUID                `gorm:"type:uuid;not null"`
	Weekdays       datatypes.JSONSlice[int] `gorm:"not null"`
	DurationHalves int                      `gorm:"not null"`

	// Чистые даты без времени — datatypes.Date
	StartDate datatypes.Date `gorm:"not null"`
	EndDate   datatypes.Date `gorm:"not null"`

	PaymentMode   PaymentMode       `gorm:"type:varchar(16);not null"`
	TotalAmount   int64             `gorm:"not null;default:0"`
	PaidAmount    int64             `gorm:"not null;default:0"`
	PaymentStatus BulkPaymentStatus `gorm:"type:varchar(16);not null;default:'pending'"`

	Status         GroupStatus                      `gorm:"type:varchar(16);not null;index"`
	SkippedDates   datatypes.JSONSlice[SkippedDate] `gorm:"not null"`
	CustomerName   string                           `gorm:"type:varchar(255)"`
	CancelledCount int                              `gorm:"not null;default:0"`

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CancelledAt *time.Time

	Bookings []Booking `gorm:"foreignKey:RecurringGroupID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (g *RecurringBookingGroup) BeforeCreate(*gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodTransfer PaymentMethod = "transfer"
	PaymentMethodQR       PaymentMethod = "qr"
)

// group_payments — история пакетных оплат группы.
type GroupPayment struct {
	ID      uuid.UUID     `gorm:"type:uuid;primaryKey"`
	GroupID uuid.UUID     `gorm:"type:uuid;not null;index"`
	Amount  int64         `gorm:"not null"`
	Method  PaymentMethod `gorm:"type:varchar(16);not null"`
	PaidAt  time.Time     `gorm:"not null"`
}

func (p *GroupPayment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
