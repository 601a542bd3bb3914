package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// blocked_dates — день целиком закрыт для бронирования.
type BlockedDate struct {
	Date      datatypes.Date `gorm:"primaryKey"`
	Reason    string         `gorm:"type:varchar(255)"`
	CreatedAt time.Time
}

// group_play_blocks — корт в определённый день недели и время
// отдан под групповые игры.
type GroupPlayBlock struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey"`
	CourtID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_group_play,priority:1"`
	// monday..sunday
	Weekday string `gorm:"type:varchar(16);not null;uniqueIndex:uq_group_play,priority:2"`
	// HH:MM начала слота
	SlotStart string `gorm:"type:varchar(5);not null;uniqueIndex:uq_group_play,priority:3"`
	Label     string `gorm:"type:varchar(255)"`

	CreatedAt time.Time
}

func (b *GroupPlayBlock) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// sequence_counters — атомарные счётчики кодов.
type SequenceCounter struct {
	Name  string `gorm:"type:varchar(64);primaryKey"`
	Value int64  `gorm:"not null;default:0"`
}
