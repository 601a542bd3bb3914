package model

import "gorm.io/gorm"

// AutoMigrate выполняет миграцию всех сущностей движка бронирования.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Court{},
		&TimeSlot{},
		&RecurringBookingGroup{},
		&Booking{},
		&BookingOccupancy{},
		&GroupPayment{},
		&BlockedDate{},
		&GroupPlayBlock{},
		&SequenceCounter{},
		&Event{},
	)
}
