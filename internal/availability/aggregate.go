package availability

import (
	"context"
	"time"

	"github.com/Leganyst/court-booking/internal/calendar"
	"github.com/Leganyst/court-booking/internal/model"
)

type SlotAvailability struct {
	Slot                calendar.Slot
	AvailableCourts     int
	TotalCourts         int
	PolicyBlockedCourts int
	Price               int64
}

type Aggregate struct {
	Date        time.Time
	DayType     model.DayType
	IsBlocked   bool
	BlockReason string
	Slots       []SlotAvailability
}

// AggregateAvailability считает свободные корты по слотам для клиентского
// экрана. Корт занят только если заняты обе половины слота; занятая
// одна половина по-прежнему считается свободной (в отличие от сетки).
func (b *ScheduleBuilder) AggregateAvailability(ctx context.Context, date time.Time) (*Aggregate, error) {
	date = calendar.DateOnly(date)
	dayType := calendar.DayTypeOf(date)

	block, err := b.dates.IsDateBlocked(ctx, date)
	if err != nil {
		return nil, err
	}
	if block.IsBlocked {
		return &Aggregate{Date: date, DayType: dayType, IsBlocked: true, BlockReason: block.Reason}, nil
	}

	snap, err := loadSnapshot(ctx, b.slots, b.courts, b.bookings, b.dates, b.groupPlay, date, dayType)
	if err != nil {
		return nil, err
	}

	bookable := make([]model.Court, 0, len(snap.courts))
	for _, c := range snap.courts {
		if c.Bookable() {
			bookable = append(bookable, c)
		}
	}

	out := &Aggregate{Date: date, DayType: dayType, Slots: make([]SlotAvailability, 0, snap.catalog.Len())}
	for _, slot := range snap.catalog.Slots() {
		row := SlotAvailability{Slot: slot, TotalCourts: len(bookable), Price: slot.Rate()}
		for _, court := range bookable {
			first, second := snap.occupancy[court.ID].Covers(slot.ID)
			if first && second {
				continue
			}
			policy, err := snap.policyBlocked(ctx, court.ID, slot)
			if err != nil {
				return nil, err
			}
			if policy {
				row.PolicyBlockedCourts++
				continue
			}
			row.AvailableCourts++
		}
		out.Slots = append(out.Slots, row)
	}
	return out, nil
}
