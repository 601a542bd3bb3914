package calendar

import (
	"errors"
	"testing"
	"time"

	"github.com/Leganyst/court-booking/internal/model"
)

func TestParseClock_Basic(t *testing.T) {
	m, err := ParseClock("08:30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != 510 {
		t.Fatalf("expected 510, got %d", m)
	}
}

func TestParseClock_RejectsEndOfDay(t *testing.T) {
	if _, err := ParseClock("24:00"); !errors.Is(err, ErrInvalidClock) {
		t.Fatalf("expected ErrInvalidClock for 24:00 as start, got %v", err)
	}
	m, err := ParseClockEnd("24:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != MinutesPerDay {
		t.Fatalf("expected %d, got %d", MinutesPerDay, m)
	}
	if FormatClock(m) != "24:00" {
		t.Fatalf("expected 24:00, got %s", FormatClock(m))
	}
}

func TestParseClock_Malformed(t *testing.T) {
	for _, s := range []string{"", "8:00", "08-00", "24:30", "12:60", "ab:cd"} {
		if _, err := ParseClockEnd(s); err == nil {
			t.Fatalf("expected error for %q", s)
		}
	}
}

func TestDateOnly_DropsTime(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	in := time.Date(2026, 3, 14, 23, 45, 0, 0, loc)

	d := DateOnly(in)
	if !d.Equal(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %v", d)
	}
}

func TestToday_UsesVenueLocation(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	now := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC) // 03:00 следующего дня по UTC+7

	if got := Today(now, loc); !got.Equal(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected 2026-03-15, got %v", got)
	}
}

func TestDayTypeOf(t *testing.T) {
	sat := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	mon := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	if DayTypeOf(sat) != model.DayTypeWeekend {
		t.Fatalf("saturday must be weekend")
	}
	if DayTypeOf(mon) != model.DayTypeWeekday {
		t.Fatalf("monday must be weekday")
	}
	if WeekdayName(sat) != "saturday" {
		t.Fatalf("unexpected weekday name %q", WeekdayName(sat))
	}
}
