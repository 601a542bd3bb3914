package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CourtStatus string

const (
	CourtStatusAvailable   CourtStatus = "available"
	CourtStatusMaintenance CourtStatus = "maintenance"
	CourtStatusInactive    CourtStatus = "inactive"
)

// courts
type Court struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	Number int         `gorm:"not null;uniqueIndex"`
	Name   string      `gorm:"type:varchar(255)"`
	Status CourtStatus `gorm:"type:varchar(16);not null;default:'available';index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c *Court) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Бронировать можно только доступный корт.
func (c *Court) Bookable() bool {
	return c.Status == CourtStatusAvailable
}
