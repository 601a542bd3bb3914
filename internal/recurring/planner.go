package recurring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Leganyst/court-booking/internal/apperror"
	"github.com/Leganyst/court-booking/internal/availability"
	"github.com/Leganyst/court-booking/internal/calendar"
	"github.com/Leganyst/court-booking/internal/logger"
	"github.com/Leganyst/court-booking/internal/model"
	"github.com/Leganyst/court-booking/internal/validate"
)

// AvailabilityChecker проверяет одну дату шаблона.
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, q availability.Query) (availability.Result, error)
}

// Config — настройки площадки, передаваемые планировщику явно.
type Config struct {
	MaxSpanMonths int
	// 0 — без ограничения
	AdvanceBookingDays int
	Location           *time.Location
	Now                func() time.Time
}

// Today возвращает текущую дату площадки.
func (c Config) Today() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return calendar.Today(now(), c.Location)
}

type PlanRequest struct {
	Weekdays       []int     `json:"weekdays" validate:"required,min=1,dive,min=0,max=6"`
	StartDate      string    `json:"start_date" validate:"required,date"`
	EndDate        string    `json:"end_date" validate:"required,date"`
	CourtID        uuid.UUID `json:"court_id" validate:"required"`
	TimeSlotID     uuid.UUID `json:"time_slot_id" validate:"required"`
	DurationHalves int       `json:"duration_halves" validate:"min=1,max=16"`
}

type DatePrice struct {
	Date   time.Time
	IsPeak bool
	Rate   int64
	Amount int64
}

type PlanResult struct {
	StartDate    time.Time
	EndDate      time.Time
	ValidDates   []time.Time
	SkippedDates []model.SkippedDate
	TotalAmount  int64
	Breakdown    []DatePrice
	// Partial — проверка прервана отменой контекста; уже разобранные
	// даты остаются корректными.
	Partial bool

	Slot  *model.TimeSlot
	Court *model.Court
}

type Planner struct {
	cfg     Config
	checker AvailabilityChecker
	dates   availability.BlockedDateOracle
	slots   availability.TimeSlotStore
	courts  availability.CourtStore
}

func NewPlanner(
	cfg Config,
	checker AvailabilityChecker,
	dates availability.BlockedDateOracle,
	slots availability.TimeSlotStore,
	courts availability.CourtStore,
) *Planner {
	if cfg.MaxSpanMonths <= 0 {
		cfg.MaxSpanMonths = 3
	}
	return &Planner{cfg: cfg, checker: checker, dates: dates, slots: slots, courts: courts}
}

// Plan разворачивает шаблон в даты и проверяет каждую. Ошибки отдельной
// даты попадают в SkippedDates, ошибки всего запроса возвращаются.
func (p *Planner) Plan(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	start, end, err := p.validate(req)
	if err != nil {
		return nil, err
	}

	slot, err := p.slots.GetTimeSlot(ctx, req.TimeSlotID)
	if err != nil {
		return nil, err
	}
	if slot.Status != model.TimeSlotStatusActive {
		return nil, apperror.ErrTimeSlotNotFound
	}
	court, err := p.courts.GetCourt(ctx, req.CourtID)
	if err != nil {
		return nil, err
	}

	var mismatch calendar.Violations
	for _, w := range uniqueWeekdays(req.Weekdays) {
		if calendar.DayTypeOfWeekday(time.Weekday(w)) != slot.DayType {
			mismatch.Add("weekdays: %s is not a %s day of time slot %s",
				time.Weekday(w), slot.DayType, slot.StartTime)
		}
	}
	if !mismatch.Empty() {
		return nil, apperror.Validation(mismatch...)
	}

	res := &PlanResult{
		StartDate:    start,
		EndDate:      end,
		ValidDates:   []time.Time{},
		SkippedDates: []model.SkippedDate{},
		Breakdown:    []DatePrice{},
		Slot:         slot,
		Court:        court,
	}
	log := logger.FromContext(ctx)

	interrupted := func(err error) (*PlanResult, error) {
		res.Partial = true
		log.Warn().Err(err).
			Int("valid", len(res.ValidDates)).
			Int("skipped", len(res.SkippedDates)).
			Msg("recurring plan interrupted")
		return res, err
	}

	for _, date := range calendar.GenerateDates(start, end, req.Weekdays) {
		if err := ctx.Err(); err != nil {
			return interrupted(err)
		}

		skip, ok, err := p.checkDate(ctx, date, req, slot)
		if err != nil {
			// дата не проверена до конца и в результат не попадает
			return interrupted(err)
		}
		if !ok {
			res.SkippedDates = append(res.SkippedDates, skip)
			continue
		}

		amount := SessionPrice(slot.Rate(), req.DurationHalves)
		res.ValidDates = append(res.ValidDates, date)
		res.Breakdown = append(res.Breakdown, DatePrice{
			Date:   date,
			IsPeak: slot.IsPeak,
			Rate:   slot.Rate(),
			Amount: amount,
		})
		res.TotalAmount += amount
	}

	log.Debug().
		Str("court_id", court.ID.String()).
		Str("slot_id", slot.ID.String()).
		Int("valid", len(res.ValidDates)).
		Int("skipped", len(res.SkippedDates)).
		Int64("total", res.TotalAmount).
		Msg("recurring plan built")
	return res, nil
}

// checkDate: сначала закрытая дата, затем проверка доступности.
// Ошибка отдельной даты записывается как конфликт и не прерывает пакет;
// отмена контекста возвращается как ошибка.
func (p *Planner) checkDate(ctx context.Context, date time.Time, req PlanRequest, slot *model.TimeSlot) (model.SkippedDate, bool, error) {
	day := calendar.FormatDate(date)

	block, err := p.dates.IsDateBlocked(ctx, date)
	if err != nil {
		if isCtxErr(err) {
			return model.SkippedDate{}, false, err
		}
		return model.SkippedDate{Date: day, Reason: model.SkipReasonConflict, Detail: err.Error()}, false, nil
	}
	if block.IsBlocked {
		return model.SkippedDate{Date: day, Reason: model.SkipReasonBlocked, Detail: block.Reason}, false, nil
	}

	r, err := p.checker.CheckAvailability(ctx, availability.Query{
		CourtID:        req.CourtID,
		Date:           date,
		TimeSlotID:     slot.ID,
		DurationHalves: req.DurationHalves,
	})
	if err != nil {
		if isCtxErr(err) {
			return model.SkippedDate{}, false, err
		}
		return model.SkippedDate{Date: day, Reason: model.SkipReasonConflict, Detail: err.Error()}, false, nil
	}
	if !r.Available {
		return model.SkippedDate{Date: day, Reason: model.SkipReasonConflict, Detail: conflictDetail(r)}, false, nil
	}
	return model.SkippedDate{}, true, nil
}

func isCtxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func conflictDetail(r availability.Result) string {
	if r.ConflictingBooking != nil && r.ConflictingBooking.Code != "" {
		return fmt.Sprintf("%s: %s", r.Reason, r.ConflictingBooking.Code)
	}
	return string(r.Reason)
}

func (p *Planner) validate(req PlanRequest) (time.Time, time.Time, error) {
	v := calendar.Violations(validate.Struct(&req))

	start, startErr := calendar.ParseDate(req.StartDate)
	end, endErr := calendar.ParseDate(req.EndDate)
	today := p.cfg.Today()

	if startErr == nil && start.Before(today) {
		v.Add("start_date: must not be before %s", calendar.FormatDate(today))
	}
	if startErr == nil && p.cfg.AdvanceBookingDays > 0 {
		if limit := today.AddDate(0, 0, p.cfg.AdvanceBookingDays); start.After(limit) {
			v.Add("start_date: must not be after %s", calendar.FormatDate(limit))
		}
	}
	if startErr == nil && endErr == nil {
		if end.Before(start) {
			v.Add("end_date: must not be before start_date")
		} else if limit := calendar.AddMonthsClamped(start, p.cfg.MaxSpanMonths); end.After(limit) {
			v.Add("end_date: must be within %d months of start_date (until %s)",
				p.cfg.MaxSpanMonths, calendar.FormatDate(limit))
		}
	}

	if !v.Empty() {
		return time.Time{}, time.Time{}, apperror.Validation(v...)
	}
	return start, end, nil
}

func uniqueWeekdays(ws []int) []int {
	seen := make(map[int]bool, len(ws))
	out := make([]int, 0, len(ws))
	for _, w := range ws {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}
