package availability

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Leganyst/court-booking/internal/calendar"
	"github.com/Leganyst/court-booking/internal/model"
)

// HalfState — состояние половины ячейки сетки.
type HalfState string

const (
	HalfAvailable        HalfState = "available"
	HalfBooked           HalfState = "booked"
	HalfBlockedByPolicy  HalfState = "blocked_by_policy"
	HalfBlockedByDate    HalfState = "blocked_by_date"
	HalfCourtUnavailable HalfState = "court_unavailable"
)

type BookingSummary struct {
	ID               uuid.UUID
	Code             string
	CustomerName     string
	Status           model.BookingStatus
	StartMinute      int
	DurationHalves   int
	RecurringGroupID *uuid.UUID
}

type HalfCell struct {
	State   HalfState
	Booking *BookingSummary
}

// Cell: слот каталога для одного корта.
type Cell struct {
	SlotID          uuid.UUID
	Start           string
	End             string
	IsPeak          bool
	Price           int64
	Available       bool // обе половины свободны
	BlockedByPolicy bool
	BlockedByDate   bool
	Halves          [2]HalfCell
}

type CourtRow struct {
	Court model.Court
	Cells []Cell
}

type Grid struct {
	Date        time.Time
	DayType     model.DayType
	IsBlocked   bool
	BlockReason string
	Courts      []CourtRow
}

type ScheduleBuilder struct {
	slots     TimeSlotStore
	courts    CourtStore
	bookings  BookingStore
	dates     BlockedDateOracle
	groupPlay GroupPlayOracle
}

func NewScheduleBuilder(
	slots TimeSlotStore,
	courts CourtStore,
	bookings BookingStore,
	dates BlockedDateOracle,
	groupPlay GroupPlayOracle,
) *ScheduleBuilder {
	return &ScheduleBuilder{
		slots:     slots,
		courts:    courts,
		bookings:  bookings,
		dates:     dates,
		groupPlay: groupPlay,
	}
}

// BuildSchedule строит сетку корт × слот за дату. Пустой dayType
// означает тип дня самой даты.
func (b *ScheduleBuilder) BuildSchedule(ctx context.Context, date time.Time, dayType model.DayType) (*Grid, error) {
	date = calendar.DateOnly(date)
	if dayType == "" {
		dayType = calendar.DayTypeOf(date)
	}

	snap, err := loadSnapshot(ctx, b.slots, b.courts, b.bookings, b.dates, b.groupPlay, date, dayType)
	if err != nil {
		return nil, err
	}

	grid := &Grid{
		Date:        date,
		DayType:     dayType,
		IsBlocked:   snap.block.IsBlocked,
		BlockReason: snap.block.Reason,
		Courts:      make([]CourtRow, 0, len(snap.courts)),
	}

	for _, court := range snap.courts {
		occ := snap.occupancy[court.ID]
		row := CourtRow{Court: court, Cells: make([]Cell, 0, snap.catalog.Len())}

		for _, slot := range snap.catalog.Slots() {
			policy, err := snap.policyBlocked(ctx, court.ID, slot)
			if err != nil {
				return nil, err
			}
			cell := Cell{
				SlotID:          slot.ID,
				Start:           slot.StartClock(),
				End:             slot.EndClock(),
				IsPeak:          slot.IsPeak,
				Price:           slot.Rate(),
				BlockedByPolicy: policy,
			}
			for h := calendar.FirstHalf; h <= calendar.SecondHalf; h++ {
				cell.Halves[h] = snap.halfCell(court, occ, calendar.HalfToken{SlotID: slot.ID, Half: h}, policy)
				if cell.Halves[h].State == HalfBlockedByDate {
					cell.BlockedByDate = true
				}
			}
			cell.Available = cell.Halves[0].State == HalfAvailable && cell.Halves[1].State == HalfAvailable
			row.Cells = append(row.Cells, cell)
		}
		grid.Courts = append(grid.Courts, row)
	}
	return grid, nil
}

// snapshot — всё, что нужно сетке и агрегату за одну дату.
type snapshot struct {
	catalog   *calendar.Catalog
	courts    []model.Court
	occupancy map[uuid.UUID]*calendar.Occupancy
	owners    map[uuid.UUID]*model.Booking
	block     DateBlock

	weekday   string
	groupPlay GroupPlayOracle
	blocked   map[GroupPlayKey]bool // nil, если оракул не умеет списком
}

func loadSnapshot(
	ctx context.Context,
	slots TimeSlotStore,
	courts CourtStore,
	bookings BookingStore,
	dates BlockedDateOracle,
	groupPlay GroupPlayOracle,
	date time.Time,
	dayType model.DayType,
) (*snapshot, error) {
	block, err := dates.IsDateBlocked(ctx, date)
	if err != nil {
		return nil, err
	}

	catalogs := newCatalogSet(slots)
	catalog, err := catalogs.get(ctx, dayType)
	if err != nil {
		return nil, err
	}

	courtList, err := courts.ListCourts(ctx)
	if err != nil {
		return nil, err
	}

	// Один запрос на всю дату, затем одна карта занятости на корт.
	all, err := bookings.ListActiveBookingsOnDate(ctx, date)
	if err != nil {
		return nil, err
	}
	byCourt := make(map[uuid.UUID][]model.Booking, len(courtList))
	for _, bk := range all {
		byCourt[bk.CourtID] = append(byCourt[bk.CourtID], bk)
	}

	snap := &snapshot{
		catalog:   catalog,
		courts:    courtList,
		occupancy: make(map[uuid.UUID]*calendar.Occupancy, len(courtList)),
		owners:    make(map[uuid.UUID]*model.Booking, len(all)),
		block:     block,
		weekday:   calendar.WeekdayName(date),
		groupPlay: groupPlay,
	}
	for _, court := range courtList {
		occ, owners, err := buildOccupancy(ctx, catalogs, catalog, byCourt[court.ID])
		if err != nil {
			return nil, err
		}
		snap.occupancy[court.ID] = occ
		for id, bk := range owners {
			snap.owners[id] = bk
		}
	}

	if lister, ok := groupPlay.(GroupPlayLister); ok {
		snap.blocked, err = lister.ListBlockedSlots(ctx, snap.weekday)
		if err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func (s *snapshot) policyBlocked(ctx context.Context, courtID uuid.UUID, slot calendar.Slot) (bool, error) {
	if s.blocked != nil {
		return s.blocked[GroupPlayKey{CourtID: courtID, SlotStart: slot.StartClock()}], nil
	}
	return s.groupPlay.IsSlotBlocked(ctx, courtID, s.weekday, slot.StartClock())
}

// halfCell: бронь важнее всего; свободная половина закрытой даты
// становится blocked_by_date.
func (s *snapshot) halfCell(court model.Court, occ *calendar.Occupancy, tok calendar.HalfToken, policy bool) HalfCell {
	if owner, ok := occ.Owner(tok); ok {
		return HalfCell{State: HalfBooked, Booking: summarize(s.owners[owner])}
	}
	switch {
	case !court.Bookable():
		return HalfCell{State: HalfCourtUnavailable}
	case policy:
		return HalfCell{State: HalfBlockedByPolicy}
	case s.block.IsBlocked:
		return HalfCell{State: HalfBlockedByDate}
	default:
		return HalfCell{State: HalfAvailable}
	}
}

func summarize(b *model.Booking) *BookingSummary {
	if b == nil {
		return nil
	}
	return &BookingSummary{
		ID:               b.ID,
		Code:             b.Code,
		CustomerName:     b.CustomerName,
		Status:           b.Status,
		StartMinute:      b.StartMinute,
		DurationHalves:   b.DurationHalves,
		RecurringGroupID: b.RecurringGroupID,
	}
}
