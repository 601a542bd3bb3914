package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Leganyst/court-booking/internal/model"
)

const (
	MinutesPerDay  = 24 * 60
	HalfUnitMinute = 30

	DateLayout = "2006-01-02"
)

var (
	ErrInvalidClock = errors.New("invalid time of day")
	ErrInvalidDate  = errors.New("invalid date")
)

// ParseClock разбирает время HH:MM в минуты от полуночи (0..1439).
func ParseClock(s string) (int, error) {
	m, err := parseClock(s)
	if err != nil {
		return 0, err
	}
	if m >= MinutesPerDay {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return m, nil
}

// ParseClockEnd — как ParseClock, но допускает 24:00 как конец дня.
func ParseClockEnd(s string) (int, error) {
	return parseClock(s)
}

func parseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, okH := twoDigits(s[0:2])
	m, okM := twoDigits(s[3:5])
	if !okH || !okM || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return h*60 + m, nil
}

func twoDigits(s string) (int, bool) {
	if s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

// FormatClock обратна ParseClockEnd: 1440 -> "24:00".
func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// DateOnly отбрасывает время: полночь UTC той же календарной даты.
func DateOnly(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate разбирает дату YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Today — текущая календарная дата площадки.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc != nil {
		now = now.In(loc)
	}
	return DateOnly(now)
}

// DayTypeOf определяет каталог для даты: суббота и воскресенье — выходные.
func DayTypeOf(date time.Time) model.DayType {
	return DayTypeOfWeekday(date.Weekday())
}

func DayTypeOfWeekday(w time.Weekday) model.DayType {
	if w == time.Saturday || w == time.Sunday {
		return model.DayTypeWeekend
	}
	return model.DayTypeWeekday
}

// WeekdayName — ключ дня недели для политики групповых игр.
func WeekdayName(date time.Time) string {
	return strings.ToLower(date.Weekday().String())
}
