package availability

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/Leganyst/court-booking/internal/apperror"
	"github.com/Leganyst/court-booking/internal/calendar"
	"github.com/Leganyst/court-booking/internal/model"
)

// memStore — хранилище в памяти для тестов движка.
type memStore struct {
	slots    []model.TimeSlot
	courts   []model.Court
	bookings []model.Booking

	blocked   map[string]string
	groupPlay map[string]bool

	groupPlayCalls int
}

func newMemStore() *memStore {
	return &memStore{
		blocked:   map[string]string{},
		groupPlay: map[string]bool{},
	}
}

func (m *memStore) addSlot(dayType model.DayType, start, end string, peak bool) model.TimeSlot {
	s := model.TimeSlot{
		ID:          uuid.New(),
		StartTime:   start,
		EndTime:     end,
		DayType:     dayType,
		Status:      model.TimeSlotStatusActive,
		NormalPrice: 20000,
		PeakPrice:   30000,
		IsPeak:      peak,
	}
	m.slots = append(m.slots, s)
	return s
}

func (m *memStore) addCourt(number int, status model.CourtStatus) model.Court {
	c := model.Court{ID: uuid.New(), Number: number, Status: status}
	m.courts = append(m.courts, c)
	return c
}

func (m *memStore) book(court model.Court, date time.Time, slot model.TimeSlot, startMinute, halves int) model.Booking {
	b := model.Booking{
		ID:             uuid.New(),
		Code:           "BK-" + uuid.NewString()[:8],
		CourtID:        court.ID,
		BookingDate:    datatypes.Date(calendar.DateOnly(date)),
		TimeSlotID:     slot.ID,
		StartMinute:    startMinute,
		DurationHalves: halves,
		Status:         model.BookingStatusConfirmed,
	}
	m.bookings = append(m.bookings, b)
	return b
}

func (m *memStore) blockGroupPlay(court model.Court, weekday, start string) {
	m.groupPlay[court.ID.String()+"|"+weekday+"|"+start] = true
}

func (m *memStore) ListTimeSlots(_ context.Context, dayType model.DayType) ([]model.TimeSlot, error) {
	var out []model.TimeSlot
	for _, s := range m.slots {
		if s.DayType == dayType {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (m *memStore) GetTimeSlot(_ context.Context, id uuid.UUID) (*model.TimeSlot, error) {
	for i := range m.slots {
		if m.slots[i].ID == id {
			s := m.slots[i]
			return &s, nil
		}
	}
	return nil, apperror.ErrTimeSlotNotFound
}

func (m *memStore) GetCourt(_ context.Context, id uuid.UUID) (*model.Court, error) {
	for i := range m.courts {
		if m.courts[i].ID == id {
			c := m.courts[i]
			return &c, nil
		}
	}
	return nil, apperror.ErrCourtNotFound
}

func (m *memStore) ListCourts(context.Context) ([]model.Court, error) {
	out := append([]model.Court(nil), m.courts...)
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *memStore) ListActiveBookings(_ context.Context, courtID uuid.UUID, date time.Time, excludeID *uuid.UUID) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range m.bookings {
		if b.CourtID != courtID || !b.Date().Equal(calendar.DateOnly(date)) || b.Status == model.BookingStatusCancelled {
			continue
		}
		if excludeID != nil && b.ID == *excludeID {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (m *memStore) ListActiveBookingsOnDate(_ context.Context, date time.Time) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range m.bookings {
		if b.Date().Equal(calendar.DateOnly(date)) && b.Status != model.BookingStatusCancelled {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) IsDateBlocked(_ context.Context, date time.Time) (DateBlock, error) {
	reason, ok := m.blocked[calendar.FormatDate(date)]
	return DateBlock{IsBlocked: ok, Reason: reason}, nil
}

func (m *memStore) IsSlotBlocked(_ context.Context, courtID uuid.UUID, weekday, slotStart string) (bool, error) {
	m.groupPlayCalls++
	return m.groupPlay[courtID.String()+"|"+weekday+"|"+slotStart], nil
}
