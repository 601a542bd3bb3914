package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Тип дня, по которому выбирается каталог слотов.
type DayType string

const (
	DayTypeWeekday DayType = "weekday"
	DayTypeWeekend DayType = "weekend"
)

// Статус слота каталога.
type TimeSlotStatus string

const (
	TimeSlotStatusActive   TimeSlotStatus = "active"
	TimeSlotStatusInactive TimeSlotStatus = "inactive"
)

// time_slots — часовой интервал суточного каталога.
// Время хранится в каноническом виде HH:MM, конец может быть 24:00.
type TimeSlot struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	StartTime string  `gorm:"type:varchar(5);not null;index:idx_time_slots_day_start,priority:2"`
	EndTime   string  `gorm:"type:varchar(5);not null"`
	DayType   DayType `gorm:"type:varchar(16);not null;index:idx_time_slots_day_start,priority:1"`

	Status TimeSlotStatus `gorm:"type:varchar(16);not null;default:'active';index"`

	// Цены в минимальных единицах валюты за час.
	NormalPrice int64 `gorm:"not null"`
	PeakPrice   int64 `gorm:"not null"`
	IsPeak      bool  `gorm:"not null;default:false"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *TimeSlot) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Rate возвращает почасовую ставку с учётом пикового времени.
func (s *TimeSlot) Rate() int64 {
	if s.IsPeak {
		return s.PeakPrice
	}
	return s.NormalPrice
}
