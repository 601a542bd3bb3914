package calendar

import (
	"time"
)

// GenerateDates разворачивает еженедельный шаблон в даты внутри [start, end].
// Дни недели: 0 = воскресенье … 6 = суббота. Результат по возрастанию, без повторов.
func GenerateDates(start, end time.Time, weekdays []int) []time.Time {
	start = DateOnly(start)
	end = DateOnly(end)
	if end.Before(start) || len(weekdays) == 0 {
		return []time.Time{}
	}

	wanted := make(map[time.Weekday]struct{}, len(weekdays))
	for _, w := range weekdays {
		if w < 0 || w > 6 {
			continue
		}
		wanted[time.Weekday(w)] = struct{}{}
	}

	var result []time.Time
	for cur := start; !cur.After(end); cur = cur.AddDate(0, 0, 1) {
		if _, ok := wanted[cur.Weekday()]; ok {
			result = append(result, cur)
		}
	}
	if result == nil {
		return []time.Time{}
	}
	return result
}

// AddMonthsClamped прибавляет месяцы, не перескакивая в следующий месяц:
// 31 января + 1 месяц = 28 (29) февраля.
func AddMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, t.Location())
}
