package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Leganyst/court-booking/internal/apperror"
	"github.com/Leganyst/court-booking/internal/calendar"
	"github.com/Leganyst/court-booking/internal/logger"
	"github.com/Leganyst/court-booking/internal/model"
)

// Reason — почему запрошенное время недоступно.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonInsufficientSlots Reason = "insufficient_slots"
	ReasonNonConsecutive    Reason = "non_consecutive"
	ReasonPolicyBlocked     Reason = "policy_blocked"
	ReasonConflict          Reason = "conflict"
	ReasonCourtUnavailable  Reason = "court_unavailable"
)

type Query struct {
	CourtID          uuid.UUID
	Date             time.Time
	TimeSlotID       uuid.UUID
	StartMinute      int
	DurationHalves   int
	ExcludeBookingID *uuid.UUID
}

type Result struct {
	Available          bool
	Reason             Reason
	ConflictingBooking *model.Booking
	// Tokens — половины слотов, которые займёт бронь (если интервал построен).
	Tokens []calendar.HalfToken
	Slot   *model.TimeSlot
	Court  *model.Court
}

// Err переводит отрицательный результат в ошибку таксономии движка.
func (r Result) Err() error {
	switch r.Reason {
	case ReasonNone:
		return nil
	case ReasonInsufficientSlots:
		return apperror.ErrInsufficientSlot
	case ReasonNonConsecutive:
		return apperror.ErrNonConsecutive
	case ReasonPolicyBlocked:
		return apperror.ErrPolicyBlocked
	case ReasonCourtUnavailable:
		return apperror.ErrCourtUnavailable
	default:
		if r.ConflictingBooking != nil {
			return apperror.ErrSlotConflict.WithBooking(r.ConflictingBooking.ID)
		}
		return apperror.ErrSlotConflict
	}
}

type Checker struct {
	slots     TimeSlotStore
	courts    CourtStore
	bookings  BookingStore
	groupPlay GroupPlayOracle
}

func NewChecker(slots TimeSlotStore, courts CourtStore, bookings BookingStore, groupPlay GroupPlayOracle) *Checker {
	return &Checker{
		slots:     slots,
		courts:    courts,
		bookings:  bookings,
		groupPlay: groupPlay,
	}
}

// CheckAvailability отвечает, можно ли занять корт на дату начиная с
// якорного слота. Чистое чтение: ничего не пишет.
func (c *Checker) CheckAvailability(ctx context.Context, q Query) (Result, error) {
	slot, err := c.slots.GetTimeSlot(ctx, q.TimeSlotID)
	if err != nil {
		return Result{}, err
	}
	court, err := c.courts.GetCourt(ctx, q.CourtID)
	if err != nil {
		return Result{}, err
	}
	date := calendar.DateOnly(q.Date)
	if err := DayTypeMismatch(slot, date); err != nil {
		return Result{}, err
	}

	res := Result{Slot: slot, Court: court}
	if !court.Bookable() {
		res.Reason = ReasonCourtUnavailable
		return res, nil
	}

	catalogs := newCatalogSet(c.slots)
	catalog, err := catalogs.get(ctx, slot.DayType)
	if err != nil {
		return Result{}, err
	}

	needed, err := calendar.Span(catalog, slot.ID, q.StartMinute, q.DurationHalves)
	switch {
	case errors.Is(err, calendar.ErrInsufficientSlots):
		res.Reason = ReasonInsufficientSlots
		return res, nil
	case errors.Is(err, calendar.ErrNonConsecutive):
		res.Reason = ReasonNonConsecutive
		return res, nil
	case errors.Is(err, calendar.ErrAnchorNotFound):
		// неактивный слот не бронируется
		return Result{}, apperror.ErrTimeSlotNotFound
	case err != nil:
		return Result{}, apperror.Validation(err.Error())
	}
	res.Tokens = needed

	existing, err := c.bookings.ListActiveBookings(ctx, court.ID, date, q.ExcludeBookingID)
	if err != nil {
		return Result{}, err
	}
	occ, owners, err := buildOccupancy(ctx, catalogs, catalog, existing)
	if err != nil {
		return Result{}, err
	}

	weekday := calendar.WeekdayName(date)
	for _, id := range calendar.DistinctSlots(needed) {
		s, _ := catalog.Slot(id)
		blocked, err := c.groupPlay.IsSlotBlocked(ctx, court.ID, weekday, s.StartClock())
		if err != nil {
			return Result{}, err
		}
		if blocked {
			res.Reason = ReasonPolicyBlocked
			return res, nil
		}
	}

	if tok, owner, hit := occ.FirstConflict(needed); hit {
		res.Reason = ReasonConflict
		res.ConflictingBooking = owners[owner]
		logger.FromContext(ctx).Debug().
			Str("court_id", court.ID.String()).
			Str("date", calendar.FormatDate(date)).
			Str("slot_id", tok.SlotID.String()).
			Str("half", tok.Half.String()).
			Str("booking_id", owner.String()).
			Msg("half-hour already occupied")
		return res, nil
	}

	res.Available = true
	return res, nil
}

// DayTypeMismatch: слот из чужого каталога дал бы половины, которые не
// пересекаются с бронями этого дня, поэтому такой запрос отклоняется.
func DayTypeMismatch(slot *model.TimeSlot, date time.Time) error {
	if dt := calendar.DayTypeOf(date); slot.DayType != dt {
		return apperror.Validation(fmt.Sprintf(
			"time_slot_id: slot %s is in the %s catalog, %s is a %s",
			slot.StartTime, slot.DayType, calendar.FormatDate(date), dt))
	}
	return nil
}

// buildOccupancy индексирует занятые половины всех броней корта за дату.
// Бронь, чей интервал больше не строится по каталогу, занимает
// половины, пройденные до разрыва.
func buildOccupancy(
	ctx context.Context,
	catalogs *catalogSet,
	primary *calendar.Catalog,
	bookings []model.Booking,
) (*calendar.Occupancy, map[uuid.UUID]*model.Booking, error) {
	occ := calendar.NewOccupancy()
	owners := make(map[uuid.UUID]*model.Booking, len(bookings))
	for i := range bookings {
		b := &bookings[i]
		if b.Status == model.BookingStatusCancelled {
			continue
		}
		cat, err := catalogs.forSlot(ctx, primary, b.TimeSlotID)
		if err != nil {
			return nil, nil, err
		}
		if cat == nil {
			logger.FromContext(ctx).Warn().
				Str("booking_id", b.ID.String()).
				Str("slot_id", b.TimeSlotID.String()).
				Msg("booking anchor slot missing from catalog; ignoring for occupancy")
			continue
		}
		tokens, _ := calendar.Span(cat, b.TimeSlotID, b.StartMinute, b.DurationHalves)
		occ.Add(b.ID, tokens)
		owners[b.ID] = b
	}
	return occ, owners, nil
}

// catalogSet лениво грузит каталоги в пределах одного вызова.
type catalogSet struct {
	store    TimeSlotStore
	catalogs map[model.DayType]*calendar.Catalog
}

func newCatalogSet(store TimeSlotStore) *catalogSet {
	return &catalogSet{store: store, catalogs: make(map[model.DayType]*calendar.Catalog, 2)}
}

func (s *catalogSet) get(ctx context.Context, dayType model.DayType) (*calendar.Catalog, error) {
	if c, ok := s.catalogs[dayType]; ok {
		return c, nil
	}
	rows, err := s.store.ListTimeSlots(ctx, dayType)
	if err != nil {
		return nil, err
	}
	c, err := calendar.NewCatalog(dayType, rows)
	if err != nil {
		return nil, fmt.Errorf("load %s catalog: %w", dayType, err)
	}
	s.catalogs[dayType] = c
	return c, nil
}

// forSlot находит каталог, в котором есть слот: сначала основной,
// затем каталог другого типа дня.
func (s *catalogSet) forSlot(ctx context.Context, primary *calendar.Catalog, slotID uuid.UUID) (*calendar.Catalog, error) {
	if _, ok := primary.IndexOf(slotID); ok {
		return primary, nil
	}
	other := model.DayTypeWeekend
	if primary.DayType() == model.DayTypeWeekend {
		other = model.DayTypeWeekday
	}
	c, err := s.get(ctx, other)
	if err != nil {
		return nil, err
	}
	if _, ok := c.IndexOf(slotID); ok {
		return c, nil
	}
	return nil, nil
}
