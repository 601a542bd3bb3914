package calendar

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Half — половина часового слота.
type Half int

const (
	FirstHalf  Half = 0
	SecondHalf Half = 1
)

func (h Half) String() string {
	if h == SecondHalf {
		return "second"
	}
	return "first"
}

// HalfToken — единица сравнения при поиске конфликтов.
type HalfToken struct {
	SlotID uuid.UUID
	Half   Half
}

var (
	ErrInsufficientSlots = errors.New("span runs past the end of the catalog")
	ErrNonConsecutive    = errors.New("span crosses a gap between slots")
	ErrAnchorNotFound    = errors.New("anchor slot is not in the catalog")
	ErrInvalidStart      = errors.New("start minute must be 0 or 30")
	ErrInvalidDuration   = errors.New("duration must be a positive number of half hours")
)

// 8 часов
const MaxDurationHalves = 16

// HalvesFromHours переводит длительность в часах (шаг 0.5) в получасы.
func HalvesFromHours(hours float64) (int, error) {
	halves := hours * 2
	n := int(halves)
	if float64(n) != halves || n < 1 || n > MaxDurationHalves {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDuration, hours)
	}
	return n, nil
}

func HoursFromHalves(halves int) float64 {
	return float64(halves) / 2
}

// Span вычисляет занятые половины слотов для брони, начинающейся в
// якорном слоте. Каждая пересечённая граница обязана удовлетворять
// slot[i].End == slot[i+1].Start. При ошибке возвращаются половины,
// пройденные до неё.
func Span(c *Catalog, anchorID uuid.UUID, startMinute, halves int) ([]HalfToken, error) {
	if startMinute != 0 && startMinute != HalfUnitMinute {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStart, startMinute)
	}
	if halves < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDuration, halves)
	}
	idx, ok := c.IndexOf(anchorID)
	if !ok {
		return nil, ErrAnchorNotFound
	}

	half := FirstHalf
	if startMinute == HalfUnitMinute {
		half = SecondHalf
	}

	slots := c.Slots()
	tokens := make([]HalfToken, 0, halves)
	for len(tokens) < halves {
		if idx >= len(slots) {
			return tokens, ErrInsufficientSlots
		}
		tokens = append(tokens, HalfToken{SlotID: slots[idx].ID, Half: half})
		if half == FirstHalf {
			half = SecondHalf
			continue
		}
		half = FirstHalf
		idx++
		if len(tokens) < halves && idx < len(slots) && slots[idx-1].End != slots[idx].Start {
			return tokens, ErrNonConsecutive
		}
	}
	return tokens, nil
}

// Occupancy — карта занятых половин: токен -> владелец.
type Occupancy struct {
	owners map[HalfToken]uuid.UUID
}

func NewOccupancy() *Occupancy {
	return &Occupancy{owners: make(map[HalfToken]uuid.UUID)}
}

// Add помечает токены занятыми. Первый владелец сохраняется.
func (o *Occupancy) Add(owner uuid.UUID, tokens []HalfToken) {
	for _, t := range tokens {
		if _, taken := o.owners[t]; !taken {
			o.owners[t] = owner
		}
	}
}

func (o *Occupancy) Owner(t HalfToken) (uuid.UUID, bool) {
	id, ok := o.owners[t]
	return id, ok
}

// FirstConflict возвращает первый занятый токен из needed.
func (o *Occupancy) FirstConflict(needed []HalfToken) (HalfToken, uuid.UUID, bool) {
	for _, t := range needed {
		if id, ok := o.owners[t]; ok {
			return t, id, true
		}
	}
	return HalfToken{}, uuid.Nil, false
}

// Covers сообщает, заняты ли первая и вторая половины слота.
func (o *Occupancy) Covers(slotID uuid.UUID) (first, second bool) {
	_, first = o.owners[HalfToken{SlotID: slotID, Half: FirstHalf}]
	_, second = o.owners[HalfToken{SlotID: slotID, Half: SecondHalf}]
	return first, second
}

// DistinctSlots возвращает слоты токенов в порядке появления.
func DistinctSlots(tokens []HalfToken) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(tokens))
	out := make([]uuid.UUID, 0, (len(tokens)+1)/2)
	for _, t := range tokens {
		if _, ok := seen[t.SlotID]; ok {
			continue
		}
		seen[t.SlotID] = struct{}{}
		out = append(out, t.SlotID)
	}
	return out
}
