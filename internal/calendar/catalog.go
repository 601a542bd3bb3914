package calendar

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/Leganyst/court-booking/internal/model"
)

var ErrOverlappingSlots = errors.New("time slot catalog has overlapping slots")

// Slot — слот каталога с заранее разобранным временем.
type Slot struct {
	ID          uuid.UUID
	Start       int // минуты от полуночи
	End         int // может быть 1440
	DayType     model.DayType
	IsPeak      bool
	NormalPrice int64
	PeakPrice   int64
}

func (s Slot) Rate() int64 {
	if s.IsPeak {
		return s.PeakPrice
	}
	return s.NormalPrice
}

func (s Slot) StartClock() string { return FormatClock(s.Start) }
func (s Slot) EndClock() string   { return FormatClock(s.End) }

// Catalog — упорядоченный по началу каталог слотов одного типа дня.
type Catalog struct {
	dayType model.DayType
	slots   []Slot
	index   map[uuid.UUID]int
}

// NewCatalog разбирает время один раз при загрузке и сортирует слоты.
// Неактивные слоты в каталог не попадают.
func NewCatalog(dayType model.DayType, rows []model.TimeSlot) (*Catalog, error) {
	slots := make([]Slot, 0, len(rows))
	for _, r := range rows {
		if r.DayType != dayType || r.Status == model.TimeSlotStatusInactive {
			continue
		}
		start, err := ParseClock(r.StartTime)
		if err != nil {
			return nil, fmt.Errorf("slot %s: %w", r.ID, err)
		}
		end, err := ParseClockEnd(r.EndTime)
		if err != nil {
			return nil, fmt.Errorf("slot %s: %w", r.ID, err)
		}
		if end <= start {
			return nil, fmt.Errorf("slot %s: %w: end %s is not after start %s", r.ID, ErrInvalidClock, r.EndTime, r.StartTime)
		}
		slots = append(slots, Slot{
			ID:          r.ID,
			Start:       start,
			End:         end,
			DayType:     r.DayType,
			IsPeak:      r.IsPeak,
			NormalPrice: r.NormalPrice,
			PeakPrice:   r.PeakPrice,
		})
	}

	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Start < slots[j].Start })

	index := make(map[uuid.UUID]int, len(slots))
	for i, s := range slots {
		if i > 0 && slots[i-1].End > s.Start {
			return nil, fmt.Errorf("%w: %s-%s and %s-%s", ErrOverlappingSlots,
				slots[i-1].StartClock(), slots[i-1].EndClock(), s.StartClock(), s.EndClock())
		}
		index[s.ID] = i
	}

	return &Catalog{dayType: dayType, slots: slots, index: index}, nil
}

func (c *Catalog) DayType() model.DayType { return c.dayType }

// Slots возвращает слоты в каноническом порядке.
func (c *Catalog) Slots() []Slot { return c.slots }

func (c *Catalog) Len() int { return len(c.slots) }

// IndexOf возвращает позицию слота в каталоге.
func (c *Catalog) IndexOf(id uuid.UUID) (int, bool) {
	i, ok := c.index[id]
	return i, ok
}

func (c *Catalog) Slot(id uuid.UUID) (Slot, bool) {
	i, ok := c.index[id]
	if !ok {
		return Slot{}, false
	}
	return c.slots[i], true
}
