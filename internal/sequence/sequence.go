package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/Leganyst/court-booking/internal/apperror"
	"github.com/Leganyst/court-booking/internal/calendar"
)

// Store — атомарный счётчик: увеличить и вернуть новое значение одной
// операцией. Первый вызов для ключа возвращает 1.
type Store interface {
	Increment(ctx context.Context, key string) (int64, error)
}

const (
	GroupKey = "recurring_group"

	bookingPrefix = "BK"
	groupPrefix   = "RG"
)

type Generator struct {
	store Store
}

func NewGenerator(store Store) *Generator {
	return &Generator{store: store}
}

// Next возвращает следующее значение счётчика. Отказ хранилища
// возвращается как есть: запасного неуникального варианта нет.
func (g *Generator) Next(ctx context.Context, key string) (int64, error) {
	n, err := g.store.Increment(ctx, key)
	if err != nil {
		return 0, apperror.Dependency("sequence increment "+key, err)
	}
	return n, nil
}

// NextBookingCode выдаёт код брони с ежедневным сбросом: BK-20261018-0001.
func (g *Generator) NextBookingCode(ctx context.Context, date time.Time) (string, error) {
	n, err := g.Next(ctx, BookingKey(date))
	if err != nil {
		return "", err
	}
	return BookingCode(date, n), nil
}

// NextGroupCode выдаёт код повторяющейся группы: RG-00001.
func (g *Generator) NextGroupCode(ctx context.Context) (string, error) {
	n, err := g.Next(ctx, GroupKey)
	if err != nil {
		return "", err
	}
	return GroupCode(n), nil
}

func BookingKey(date time.Time) string {
	return "booking:" + compactDate(date)
}

func BookingCode(date time.Time, n int64) string {
	return fmt.Sprintf("%s-%s-%04d", bookingPrefix, compactDate(date), n)
}

func GroupCode(n int64) string {
	return fmt.Sprintf("%s-%05d", groupPrefix, n)
}

func compactDate(date time.Time) string {
	return calendar.DateOnly(date).Format("20060102")
}
