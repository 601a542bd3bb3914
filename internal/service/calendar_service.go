package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	"github.com/Leganyst/court-booking/internal/apperror"
	"github.com/Leganyst/court-booking/internal/availability"
	"github.com/Leganyst/court-booking/internal/calendar"
	"github.com/Leganyst/court-booking/internal/events"
	"github.com/Leganyst/court-booking/internal/logger"
	"github.com/Leganyst/court-booking/internal/model"
	"github.com/Leganyst/court-booking/internal/obs"
	"github.com/Leganyst/court-booking/internal/recurring"
	"github.com/Leganyst/court-booking/internal/repository"
	"github.com/Leganyst/court-booking/internal/sequence"
	"github.com/Leganyst/court-booking/internal/validate"
)

// CalendarService связывает движок доступности с хранилищем: проверки,
// сетка, повторяющиеся группы, коды и события.
type CalendarService struct {
	repos     *repository.Repositories
	seq       *sequence.Generator
	publisher events.Publisher
	venue     recurring.Config
}

func NewCalendarService(
	repos *repository.Repositories,
	seq *sequence.Generator,
	publisher events.Publisher,
	venue recurring.Config,
) *CalendarService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if venue.Now == nil {
		venue.Now = time.Now
	}
	return &CalendarService{
		repos:     repos,
		seq:       seq,
		publisher: publisher,
		venue:     venue,
	}
}

func checkerFor(r *repository.Repositories) *availability.Checker {
	return availability.NewChecker(r.TimeSlots, r.Courts, r.Bookings, r.Policy)
}

func (s *CalendarService) planner(r *repository.Repositories) *recurring.Planner {
	return recurring.NewPlanner(s.venue, checkerFor(r), r.Policy, r.TimeSlots, r.Courts)
}

func (s *CalendarService) CheckAvailability(ctx context.Context, q availability.Query) (res availability.Result, err error) {
	ctx, span := obs.Start(ctx, "CalendarService.CheckAvailability",
		attribute.String("court_id", q.CourtID.String()),
		attribute.String("date", calendar.FormatDate(q.Date)),
	)
	defer func() { obs.End(span, err) }()

	if q.DurationHalves > calendar.MaxDurationHalves {
		return availability.Result{}, apperror.Validation(
			fmt.Sprintf("duration: must be at most %v hours", calendar.HoursFromHalves(calendar.MaxDurationHalves)))
	}
	return checkerFor(s.repos).CheckAvailability(ctx, q)
}

func (s *CalendarService) BuildSchedule(ctx context.Context, date time.Time, dayType model.DayType) (grid *availability.Grid, err error) {
	ctx, span := obs.Start(ctx, "CalendarService.BuildSchedule", attribute.String("date", calendar.FormatDate(date)))
	defer func() { obs.End(span, err) }()

	r := s.repos
	return availability.NewScheduleBuilder(r.TimeSlots, r.Courts, r.Bookings, r.Policy, r.Policy).
		BuildSchedule(ctx, date, dayType)
}

func (s *CalendarService) AggregateAvailability(ctx context.Context, date time.Time) (agg *availability.Aggregate, err error) {
	ctx, span := obs.Start(ctx, "CalendarService.AggregateAvailability", attribute.String("date", calendar.FormatDate(date)))
	defer func() { obs.End(span, err) }()

	r := s.repos
	return availability.NewScheduleBuilder(r.TimeSlots, r.Courts, r.Bookings, r.Policy, r.Policy).
		AggregateAvailability(ctx, date)
}

func (s *CalendarService) PlanRecurring(ctx context.Context, req recurring.PlanRequest) (plan *recurring.PlanResult, err error) {
	ctx, span := obs.Start(ctx, "CalendarService.PlanRecurring",
		attribute.String("court_id", req.CourtID.String()),
		attribute.IntSlice("weekdays", req.Weekdays),
	)
	defer func() { obs.End(span, err) }()

	return s.planner(s.repos).Plan(ctx, req)
}

type CreateBookingRequest struct {
	CourtID        uuid.UUID `json:"court_id" validate:"required"`
	Date           string    `json:"date" validate:"required,date"`
	TimeSlotID     uuid.UUID `json:"time_slot_id" validate:"required"`
	StartMinute    int       `json:"start_minute" validate:"oneof=0 30"`
	DurationHalves int       `json:"duration_halves" validate:"min=1,max=16"`
	CustomerName   string    `json:"customer_name" validate:"max=255"`
	Comment        string    `json:"comment"`
}

// CreateBooking повторяет проверку внутри транзакции и пишет бронь вместе
// со строками занятости; уникальный индекс отсекает гонку двух записей.
func (s *CalendarService) CreateBooking(ctx context.Context, req CreateBookingRequest) (booking *model.Booking, err error) {
	ctx, span := obs.Start(ctx, "CalendarService.CreateBooking",
		attribute.String("court_id", req.CourtID.String()),
		attribute.String("date", req.Date),
	)
	defer func() { obs.End(span, err) }()

	v := calendar.Violations(validate.Struct(&req))
	date, dateErr := calendar.ParseDate(req.Date)
	if dateErr == nil && date.Before(s.venue.Today()) {
		v.Add("date: must not be in the past")
	}
	if !v.Empty() {
		return nil, apperror.Validation(v...)
	}

	block, err := s.repos.Policy.IsDateBlocked(ctx, date)
	if err != nil {
		return nil, err
	}
	if block.IsBlocked {
		return nil, apperror.ErrDateBlocked
	}

	slot, err := s.repos.TimeSlots.GetTimeSlot(ctx, req.TimeSlotID)
	if err != nil {
		return nil, err
	}
	if err := availability.DayTypeMismatch(slot, date); err != nil {
		return nil, err
	}

	code, err := s.seq.NextBookingCode(ctx, date)
	if err != nil {
		return nil, err
	}

	var payload events.BookingEvent
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		res, err := checkerFor(tx).CheckAvailability(ctx, availability.Query{
			CourtID:        req.CourtID,
			Date:           date,
			TimeSlotID:     req.TimeSlotID,
			StartMinute:    req.StartMinute,
			DurationHalves: req.DurationHalves,
		})
		if err != nil {
			return err
		}
		if !res.Available {
			return res.Err()
		}

		booking = &model.Booking{
			Code:           code,
			CourtID:        req.CourtID,
			BookingDate:    datatypes.Date(date),
			TimeSlotID:     req.TimeSlotID,
			StartMinute:    req.StartMinute,
			DurationHalves: req.DurationHalves,
			Status:         model.BookingStatusConfirmed,
			PaymentStatus:  model.PaymentStatusUnpaid,
			Amount:         recurring.SessionPrice(res.Slot.Rate(), req.DurationHalves),
			CustomerName:   req.CustomerName,
			Comment:        req.Comment,
		}
		if err := tx.Bookings.Create(ctx, booking, res.Tokens); err != nil {
			return err
		}

		payload = bookingPayload(booking, s.venue.Now())
		return recordEvent(ctx, tx, model.EventTypeBookingCreated, &booking.ID, nil, payload)
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info().
		Str("booking_id", booking.ID.String()).
		Str("code", booking.Code).
		Str("court_id", booking.CourtID.String()).
		Str("date", req.Date).
		Msg("booking created")
	s.publish(ctx, events.KeyBookingCreated, payload)
	return booking, nil
}

// CancelBooking переводит бронь в cancelled и освобождает её половины.
func (s *CalendarService) CancelBooking(ctx context.Context, id uuid.UUID) (booking *model.Booking, err error) {
	ctx, span := obs.Start(ctx, "CalendarService.CancelBooking", attribute.String("booking_id", id.String()))
	defer func() { obs.End(span, err) }()

	var payload events.BookingEvent
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		b, err := tx.Bookings.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if b.Status.Terminal() {
			return apperror.ErrBookingTerminal
		}

		now := s.venue.Now().UTC()
		if _, err := tx.Bookings.Cancel(ctx, []uuid.UUID{id}, now); err != nil {
			return err
		}
		b.Status = model.BookingStatusCancelled
		b.CancelledAt = &now
		booking = b

		payload = bookingPayload(b, now)
		return recordEvent(ctx, tx, model.EventTypeBookingCancelled, &b.ID, b.RecurringGroupID, payload)
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info().
		Str("booking_id", booking.ID.String()).
		Str("code", booking.Code).
		Msg("booking cancelled")
	s.publish(ctx, events.KeyBookingCancelled, payload)
	return booking, nil
}

type CreateGroupRequest struct {
	recurring.PlanRequest
	PaymentMode  model.PaymentMode `json:"payment_mode" validate:"payment_mode"`
	CustomerName string            `json:"customer_name" validate:"max=255"`
}

type GroupResult struct {
	Group    *model.RecurringBookingGroup
	Bookings []model.Booking
	Plan     *recurring.PlanResult
}

// CreateRecurringGroup планирует даты и создаёт группу с бронями в одной
// транзакции. Дата, занятая между планированием и записью, переносится в
// пропущенные с причиной conflict.
func (s *CalendarService) CreateRecurringGroup(ctx context.Context, req CreateGroupRequest) (out *GroupResult, err error) {
	ctx, span := obs.Start(ctx, "CalendarService.CreateRecurringGroup",
		attribute.String("court_id", req.CourtID.String()),
		attribute.String("payment_mode", string(req.PaymentMode)),
	)
	defer func() { obs.End(span, err) }()

	if v := validate.Struct(&struct {
		PaymentMode  model.PaymentMode `json:"payment_mode" validate:"payment_mode"`
		CustomerName string            `json:"customer_name" validate:"max=255"`
	}{req.PaymentMode, req.CustomerName}); len(v) > 0 {
		return nil, apperror.Validation(v...)
	}

	plan, err := s.planner(s.repos).Plan(ctx, req.PlanRequest)
	if err != nil {
		return nil, err
	}
	if len(plan.ValidDates) == 0 {
		return nil, apperror.ErrNoBookableDates
	}

	// коды выдаются до транзакции: счётчик живёт в своём хранилище
	groupCode, err := s.seq.NextGroupCode(ctx)
	if err != nil {
		return nil, err
	}
	codes := make([]string, len(plan.ValidDates))
	for i, d := range plan.ValidDates {
		if codes[i], err = s.seq.NextBookingCode(ctx, d); err != nil {
			return nil, err
		}
	}

	var payload events.GroupEvent
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		group := &model.RecurringBookingGroup{
			Code:           groupCode,
			CourtID:        req.CourtID,
			TimeSlotID:     req.TimeSlotID,
			Weekdays:       datatypes.NewJSONSlice(req.Weekdays),
			DurationHalves: req.DurationHalves,
			StartDate:      datatypes.Date(plan.StartDate),
			EndDate:        datatypes.Date(plan.EndDate),
			PaymentMode:    req.PaymentMode,
			TotalAmount:    plan.TotalAmount,
			PaymentStatus:  model.BulkPaymentPending,
			Status:         model.GroupStatusActive,
			SkippedDates:   datatypes.NewJSONSlice(append([]model.SkippedDate{}, plan.SkippedDates...)),
			CustomerName:   req.CustomerName,
		}
		if err := tx.Groups.Create(ctx, group); err != nil {
			return err
		}

		checker := checkerFor(tx)
		var (
			created []model.Booking
			total   int64
		)
		for i, date := range plan.ValidDates {
			res, err := checker.CheckAvailability(ctx, availability.Query{
				CourtID:        req.CourtID,
				Date:           date,
				TimeSlotID:     req.TimeSlotID,
				DurationHalves: req.DurationHalves,
			})
			if err != nil {
				return err
			}
			if !res.Available {
				group.SkippedDates = append(group.SkippedDates, model.SkippedDate{
					Date:   calendar.FormatDate(date),
					Reason: model.SkipReasonConflict,
					Detail: "became unavailable: " + string(res.Reason),
				})
				continue
			}

			b := model.Booking{
				Code:             codes[i],
				CourtID:          req.CourtID,
				BookingDate:      datatypes.Date(date),
				TimeSlotID:       req.TimeSlotID,
				DurationHalves:   req.DurationHalves,
				Status:           model.BookingStatusConfirmed,
				PaymentStatus:    model.PaymentStatusUnpaid,
				Amount:           plan.Breakdown[i].Amount,
				CustomerName:     req.CustomerName,
				RecurringGroupID: &group.ID,
				SequenceIndex:    len(created) + 1,
			}
			if err := tx.Bookings.Create(ctx, &b, res.Tokens); err != nil {
				if errors.Is(err, apperror.ErrSlotConflict) {
					group.SkippedDates = append(group.SkippedDates, model.SkippedDate{
						Date:   calendar.FormatDate(date),
						Reason: model.SkipReasonConflict,
						Detail: "became unavailable: conflict",
					})
					continue
				}
				return err
			}
			created = append(created, b)
			total += b.Amount
		}
		if len(created) == 0 {
			return apperror.ErrNoBookableDates
		}

		if len(created) != len(plan.ValidDates) {
			group.TotalAmount = total
			if err := tx.Groups.SaveOutcome(ctx, group); err != nil {
				return err
			}
		}

		out = &GroupResult{Group: group, Bookings: created, Plan: plan}
		payload = groupPayload(group, len(created), s.venue.Now())
		return recordEvent(ctx, tx, model.EventTypeGroupCreated, nil, &group.ID, payload)
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info().
		Str("group_id", out.Group.ID.String()).
		Str("code", out.Group.Code).
		Int("bookings", len(out.Bookings)).
		Int("skipped", len(out.Group.SkippedDates)).
		Int64("total", out.Group.TotalAmount).
		Msg("recurring group created")
	s.publish(ctx, events.KeyGroupCreated, payload)
	return out, nil
}

type CancelGroupResult struct {
	Group          *model.RecurringBookingGroup
	CancelledCount int
}

// CancelGroup: active -> cancelled. Отменяются только будущие
// незавершённые брони группы, прошлые не трогаются.
func (s *CalendarService) CancelGroup(ctx context.Context, id uuid.UUID) (out *CancelGroupResult, err error) {
	ctx, span := obs.Start(ctx, "CalendarService.CancelGroup", attribute.String("group_id", id.String()))
	defer func() { obs.End(span, err) }()

	var payload events.GroupEvent
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		g, err := tx.Groups.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := recurring.CanCancel(g.Status); err != nil {
			return err
		}

		children, err := tx.Bookings.ListByGroupForUpdate(ctx, g.ID)
		if err != nil {
			return err
		}
		today := s.venue.Today()
		ids := make([]uuid.UUID, 0, len(children))
		for i := range children {
			if recurring.CancellableChild(&children[i], today) {
				ids = append(ids, children[i].ID)
			}
		}

		now := s.venue.Now().UTC()
		n, err := tx.Bookings.Cancel(ctx, ids, now)
		if err != nil {
			return err
		}
		if err := tx.Groups.MarkCancelled(ctx, g.ID, int(n), now); err != nil {
			return err
		}
		g.Status = model.GroupStatusCancelled
		g.CancelledCount = int(n)
		g.CancelledAt = &now

		out = &CancelGroupResult{Group: g, CancelledCount: int(n)}
		payload = groupPayload(g, 0, now)
		return recordEvent(ctx, tx, model.EventTypeGroupCancelled, nil, &g.ID, payload)
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info().
		Str("group_id", id.String()).
		Int("cancelled", out.CancelledCount).
		Msg("recurring group cancelled")
	s.publish(ctx, events.KeyGroupCancelled, payload)
	return out, nil
}

type BulkPaymentRequest struct {
	GroupID uuid.UUID           `json:"group_id" validate:"required"`
	Amount  int64               `json:"amount"`
	Method  model.PaymentMethod `json:"method" validate:"payment_method"`
}

// ApplyBulkPayment добавляет платёж к пакетной оплате группы. Когда группа
// оплачена полностью, её брони отмечаются как covered.
func (s *CalendarService) ApplyBulkPayment(ctx context.Context, req BulkPaymentRequest) (group *model.RecurringBookingGroup, err error) {
	ctx, span := obs.Start(ctx, "CalendarService.ApplyBulkPayment",
		attribute.String("group_id", req.GroupID.String()),
		attribute.Int64("amount", req.Amount),
	)
	defer func() { obs.End(span, err) }()

	if v := validate.Struct(&req); len(v) > 0 {
		return nil, apperror.Validation(v...)
	}

	var payload events.GroupEvent
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		g, err := tx.Groups.GetForUpdate(ctx, req.GroupID)
		if err != nil {
			return err
		}
		outcome, err := recurring.ApplyPayment(g, req.Amount)
		if err != nil {
			return err
		}

		payment := &model.GroupPayment{
			GroupID: g.ID,
			Amount:  req.Amount,
			Method:  req.Method,
			PaidAt:  s.venue.Now().UTC(),
		}
		if err := tx.Groups.RecordPayment(ctx, payment, outcome.PaidAmount, outcome.Status); err != nil {
			return err
		}
		if outcome.BecamePaid {
			if _, err := tx.Bookings.MarkGroupCovered(ctx, g.ID); err != nil {
				return err
			}
		}
		g.PaidAmount = outcome.PaidAmount
		g.PaymentStatus = outcome.Status
		group = g

		payload = groupPayload(g, 0, payment.PaidAt)
		return recordEvent(ctx, tx, model.EventTypeGroupPaymentRecorded, nil, &g.ID, payload)
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info().
		Str("group_id", group.ID.String()).
		Int64("amount", req.Amount).
		Int64("paid", group.PaidAmount).
		Str("status", string(group.PaymentStatus)).
		Msg("group payment applied")
	s.publish(ctx, events.KeyGroupPaymentAdded, payload)
	return group, nil
}

// ListGroupBookings отдаёт брони группы страницами, по порядку.
func (s *CalendarService) ListGroupBookings(ctx context.Context, groupID uuid.UUID, page, pageSize int) (calendar.Page[model.Booking], error) {
	if _, err := s.repos.Groups.GetByID(ctx, groupID); err != nil {
		return calendar.Page[model.Booking]{}, err
	}
	page, pageSize = calendar.NormalizePage(page, pageSize)
	items, total, err := s.repos.Bookings.ListByGroup(ctx, groupID, pageSize, calendar.Offset(page, pageSize))
	if err != nil {
		return calendar.Page[model.Booking]{}, err
	}
	return calendar.NewPage(items, page, pageSize, int(total)), nil
}

// ListGroupPayments отдаёт историю оплат группы страницами, от ранних к поздним.
func (s *CalendarService) ListGroupPayments(ctx context.Context, groupID uuid.UUID, page, pageSize int) (calendar.Page[model.GroupPayment], error) {
	if _, err := s.repos.Groups.GetByID(ctx, groupID); err != nil {
		return calendar.Page[model.GroupPayment]{}, err
	}
	payments, err := s.repos.Groups.ListPayments(ctx, groupID)
	if err != nil {
		return calendar.Page[model.GroupPayment]{}, err
	}
	return calendar.Paginate(payments, page, pageSize), nil
}

func (s *CalendarService) publish(ctx context.Context, key string, payload any) {
	if err := s.publisher.PublishJSON(ctx, key, payload); err != nil {
		// запись уже зафиксирована, событие остаётся в таблице events
		logger.FromContext(ctx).Warn().Err(err).Str("key", key).Msg("publish event failed")
	}
}

func recordEvent(ctx context.Context, tx *repository.Repositories, typ model.EventType, bookingID, groupID *uuid.UUID, payload any) error {
	details, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return tx.Events.Create(ctx, &model.Event{
		EventType: typ,
		BookingID: bookingID,
		GroupID:   groupID,
		Details:   string(details),
	})
}

func bookingPayload(b *model.Booking, at time.Time) events.BookingEvent {
	ev := events.BookingEvent{
		BookingID:   b.ID.String(),
		Code:        b.Code,
		CourtID:     b.CourtID.String(),
		Date:        calendar.FormatDate(b.Date()),
		TimeSlotID:  b.TimeSlotID.String(),
		StartMinute: b.StartMinute,
		Hours:       calendar.HoursFromHalves(b.DurationHalves),
		Status:      string(b.Status),
		OccurredAt:  at.UTC(),
	}
	if b.RecurringGroupID != nil {
		ev.GroupID = b.RecurringGroupID.String()
	}
	return ev
}

func groupPayload(g *model.RecurringBookingGroup, bookings int, at time.Time) events.GroupEvent {
	return events.GroupEvent{
		GroupID:        g.ID.String(),
		Code:           g.Code,
		Status:         string(g.Status),
		BookingCount:   bookings,
		CancelledCount: g.CancelledCount,
		TotalAmount:    g.TotalAmount,
		PaidAmount:     g.PaidAmount,
		PaymentStatus:  string(g.PaymentStatus),
		OccurredAt:     at.UTC(),
	}
}
