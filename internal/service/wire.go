package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Leganyst/court-booking/internal/apperror"
	"github.com/Leganyst/court-booking/internal/availability"
	"github.com/Leganyst/court-booking/internal/calendar"
	"github.com/Leganyst/court-booking/internal/model"
	"github.com/Leganyst/court-booking/internal/recurring"
)

// Handler реализует CalendarServer поверх CalendarService.
type Handler struct {
	svc *CalendarService
}

func NewHandler(svc *CalendarService) *Handler {
	return &Handler{svc: svc}
}

var _ CalendarServer = (*Handler)(nil)

// --- запросы ---

type checkRequest struct {
	CourtID          uuid.UUID  `json:"court_id"`
	Date             string     `json:"date"`
	TimeSlotID       uuid.UUID  `json:"time_slot_id"`
	StartMinute      int        `json:"start_minute"`
	DurationHours    float64    `json:"duration_hours"`
	ExcludeBookingID *uuid.UUID `json:"exclude_booking_id,omitempty"`
}

type dateRequest struct {
	Date    string `json:"date"`
	DayType string `json:"day_type,omitempty"`
}

type planRequest struct {
	Weekdays      []int     `json:"weekdays"`
	StartDate     string    `json:"start_date"`
	EndDate       string    `json:"end_date"`
	CourtID       uuid.UUID `json:"court_id"`
	TimeSlotID    uuid.UUID `json:"time_slot_id"`
	DurationHours float64   `json:"duration_hours"`
}

type createBookingRequest struct {
	CourtID       uuid.UUID `json:"court_id"`
	Date          string    `json:"date"`
	TimeSlotID    uuid.UUID `json:"time_slot_id"`
	StartMinute   int       `json:"start_minute"`
	DurationHours float64   `json:"duration_hours"`
	CustomerName  string    `json:"customer_name,omitempty"`
	Comment       string    `json:"comment,omitempty"`
}

type createGroupRequest struct {
	planRequest
	PaymentMode  string `json:"payment_mode"`
	CustomerName string `json:"customer_name,omitempty"`
}

type idRequest struct {
	BookingID uuid.UUID `json:"booking_id,omitempty"`
	GroupID   uuid.UUID `json:"group_id,omitempty"`
}

type paymentRequest struct {
	GroupID uuid.UUID `json:"group_id"`
	Amount  int64     `json:"amount"`
	Method  string    `json:"method"`
}

type listRequest struct {
	GroupID  uuid.UUID `json:"group_id"`
	Page     int       `json:"page,omitempty"`
	PageSize int       `json:"page_size,omitempty"`
}

// --- ответы ---

type CheckResponse struct {
	Available            bool    `json:"available"`
	Reason               string  `json:"reason,omitempty"`
	ConflictingBookingID string  `json:"conflicting_booking_id,omitempty"`
	CourtID              string  `json:"court_id"`
	Date                 string  `json:"date"`
	TimeSlotID           string  `json:"time_slot_id"`
	StartMinute          int     `json:"start_minute"`
	DurationHours        float64 `json:"duration_hours"`
}

type BookingDTO struct {
	ID               string  `json:"id"`
	Code             string  `json:"code"`
	CourtID          string  `json:"court_id"`
	Date             string  `json:"date"`
	TimeSlotID       string  `json:"time_slot_id"`
	StartMinute      int     `json:"start_minute"`
	DurationHours    float64 `json:"duration_hours"`
	Status           string  `json:"status"`
	PaymentStatus    string  `json:"payment_status"`
	Amount           int64   `json:"amount"`
	CustomerName     string  `json:"customer_name,omitempty"`
	RecurringGroupID string  `json:"recurring_group_id,omitempty"`
	SequenceIndex    int     `json:"sequence_index,omitempty"`
}

type HalfDTO struct {
	State     string `json:"state"`
	BookingID string `json:"booking_id,omitempty"`
	Code      string `json:"code,omitempty"`
}

type CellDTO struct {
	SlotID          string    `json:"time_slot_id"`
	Start           string    `json:"start"`
	End             string    `json:"end"`
	IsPeak          bool      `json:"is_peak"`
	Price           int64     `json:"price"`
	Available       bool      `json:"available"`
	BlockedByPolicy bool      `json:"blocked_by_policy"`
	BlockedByDate   bool      `json:"blocked_by_date"`
	Halves          []HalfDTO `json:"halves"`
}

type CourtRowDTO struct {
	CourtID string    `json:"court_id"`
	Number  int       `json:"number"`
	Name    string    `json:"name,omitempty"`
	Status  string    `json:"status"`
	Cells   []CellDTO `json:"cells"`
}

type ScheduleResponse struct {
	Date        string        `json:"date"`
	DayType     string        `json:"day_type"`
	IsBlocked   bool          `json:"is_blocked"`
	BlockReason string        `json:"block_reason,omitempty"`
	Courts      []CourtRowDTO `json:"courts"`
}

type SlotAvailabilityDTO struct {
	TimeSlotID          string `json:"time_slot_id"`
	Start               string `json:"start"`
	End                 string `json:"end"`
	IsPeak              bool   `json:"is_peak"`
	Price               int64  `json:"price"`
	AvailableCourts     int    `json:"available_courts"`
	TotalCourts         int    `json:"total_courts"`
	PolicyBlockedCourts int    `json:"policy_blocked_courts"`
}

type AvailabilityResponse struct {
	Date        string                `json:"date"`
	DayType     string                `json:"day_type"`
	IsBlocked   bool                  `json:"is_blocked"`
	BlockReason string                `json:"block_reason,omitempty"`
	Slots       []SlotAvailabilityDTO `json:"slots"`
}

type DatePriceDTO struct {
	Date   string `json:"date"`
	IsPeak bool   `json:"is_peak"`
	Rate   int64  `json:"rate"`
	Amount int64  `json:"amount"`
}

type PlanResponse struct {
	StartDate    string              `json:"start_date"`
	EndDate      string              `json:"end_date"`
	ValidDates   []string            `json:"valid_dates"`
	SkippedDates []model.SkippedDate `json:"skipped_dates"`
	TotalAmount  int64               `json:"total_amount"`
	Breakdown    []DatePriceDTO      `json:"breakdown"`
	Partial      bool                `json:"partial,omitempty"`
}

type GroupDTO struct {
	ID             string              `json:"id"`
	Code           string              `json:"code"`
	CourtID        string              `json:"court_id"`
	TimeSlotID     string              `json:"time_slot_id"`
	Weekdays       []int               `json:"weekdays"`
	DurationHours  float64             `json:"duration_hours"`
	StartDate      string              `json:"start_date"`
	EndDate        string              `json:"end_date"`
	PaymentMode    string              `json:"payment_mode"`
	TotalAmount    int64               `json:"total_amount"`
	PaidAmount     int64               `json:"paid_amount"`
	PaymentStatus  string              `json:"payment_status"`
	Status         string              `json:"status"`
	SkippedDates   []model.SkippedDate `json:"skipped_dates"`
	CancelledCount int                 `json:"cancelled_count"`
}

type GroupResponse struct {
	Group    GroupDTO     `json:"group"`
	Bookings []BookingDTO `json:"bookings,omitempty"`
}

type BookingPageResponse struct {
	Items    []BookingDTO `json:"items"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
	Pages    int          `json:"pages"`
	Total    int          `json:"total"`
	HasNext  bool         `json:"has_next"`
	HasPrev  bool         `json:"has_prev"`
}

type PaymentDTO struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Method string `json:"method"`
	PaidAt string `json:"paid_at"`
}

type PaymentPageResponse struct {
	Items    []PaymentDTO `json:"items"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
	Pages    int          `json:"pages"`
	Total    int          `json:"total"`
	HasNext  bool         `json:"has_next"`
	HasPrev  bool         `json:"has_prev"`
}

// --- обработчики ---

func (h *Handler) CheckAvailability(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req checkRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, ToStatus(err)
	}
	date, halves, err := dateAndHalves(req.Date, req.DurationHours)
	if err != nil {
		return nil, ToStatus(err)
	}
	res, err := h.svc.CheckAvailability(ctx, availability.Query{
		CourtID:          req.CourtID,
		Date:             date,
		TimeSlotID:       req.TimeSlotID,
		StartMinute:      req.StartMinute,
		DurationHalves:   halves,
		ExcludeBookingID: req.ExcludeBookingID,
	})
	if err != nil {
		return nil, ToStatus(err)
	}
	out := CheckResponse{
		Available:     res.Available,
		Reason:        string(res.Reason),
		CourtID:       req.CourtID.String(),
		Date:          calendar.FormatDate(date),
		TimeSlotID:    req.TimeSlotID.String(),
		StartMinute:   req.StartMinute,
		DurationHours: req.DurationHours,
	}
	if res.ConflictingBooking != nil {
		out.ConflictingBookingID = res.ConflictingBooking.ID.String()
	}
	return reply(out)
}

func (h *Handler) GetSchedule(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req dateRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, ToStatus(err)
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, ToStatus(err)
	}
	dayType := model.DayType(req.DayType)
	if dayType != "" && dayType != model.DayTypeWeekday && dayType != model.DayTypeWeekend {
		return nil, ToStatus(apperror.Validation("day_type: must be weekday or weekend"))
	}
	grid, err := h.svc.BuildSchedule(ctx, date, dayType)
	if err != nil {
		return nil, ToStatus(err)
	}
	return reply(scheduleDTO(grid))
}

func (h *Handler) GetAvailability(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req dateRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, ToStatus(err)
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, ToStatus(err)
	}
	agg, err := h.svc.AggregateAvailability(ctx, date)
	if err != nil {
		return nil, ToStatus(err)
	}
	out := AvailabilityResponse{
		Date:        calendar.FormatDate(agg.Date),
		DayType:     string(agg.DayType),
		IsBlocked:   agg.IsBlocked,
		BlockReason: agg.BlockReason,
		Slots:       make([]SlotAvailabilityDTO, 0, len(agg.Slots)),
	}
	for _, s := range agg.Slots {
		out.Slots = append(out.Slots, SlotAvailabilityDTO{
			TimeSlotID:          s.Slot.ID.String(),
			Start:               s.Slot.StartClock(),
			End:                 s.Slot.EndClock(),
			IsPeak:              s.Slot.IsPeak,
			Price:               s.Price,
			AvailableCourts:     s.AvailableCourts,
			TotalCourts:         s.TotalCourts,
			PolicyBlockedCourts: s.PolicyBlockedCourts,
		})
	}
	return reply(out)
}

func (h *Handler) PlanRecurring(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req planRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, ToStatus(err)
	}
	pr, err := req.toPlan()
	if err != nil {
		return nil, ToStatus(err)
	}
	plan, err := h.svc.PlanRecurring(ctx, pr)
	if plan != nil && plan.Partial {
		// отмена посреди проверки: отдаём то, что успели разобрать
		return reply(planDTO(plan))
	}
	if err != nil {
		return nil, ToStatus(err)
	}
	return reply(planDTO(plan))
}

func (h *Handler) CreateBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req createBookingRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, ToStatus(err)
	}
	halves, err := calendar.HalvesFromHours(req.DurationHours)
	if err != nil {
		return nil, ToStatus(apperror.Validation("duration_hours: " + err.Error()))
	}
	b, err := h.svc.CreateBooking(ctx, CreateBookingRequest{
		CourtID:        req.CourtID,
		Date:           req.Date,
		TimeSlotID:     req.TimeSlotID,
		StartMinute:    req.StartMinute,
		DurationHalves: halves,
		CustomerName:   req.CustomerName,
		Comment:        req.Comment,
	})
	if err != nil {
		return nil, ToStatus(err)
	}
	return reply(bookingDTO(b))
}

func (h *Handler) CancelBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req idRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, ToStatus(err)
	}
	if req.BookingID == uuid.Nil {
		return nil, ToStatus(apperror.Validation("booking_id: is required"))
	}
	b, err := h.svc.CancelBooking(ctx, req.BookingID)
	if err != nil {
		return nil, ToStatus(err)
	}
	return reply(bookingDTO(b))
}

func (h *Handler) CreateRecurringGroup(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req createGroupRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, ToStatus(err)
	}
	pr, err := req.toPlan()
	if err != nil {
		return nil, ToStatus(err)
	}
	res, err := h.svc.CreateRecurringGroup(ctx, CreateGroupRequest{
		PlanRequest:  pr,
		PaymentMode:  model.PaymentMode(req.PaymentMode),
		CustomerName: req.CustomerName,
	})
	if err != nil {
		return nil, ToStatus(err)
	}
	out := GroupResponse{Group: groupDTO(res.Group)}
	for i := range res.Bookings {
		out.Bookings = append(out.Bookings, bookingDTO(&res.Bookings[i]))
	}
	return reply(out)
}

func (h *Handler) CancelRecurringGroup(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req idRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, ToStatus(err)
	}
	if req.GroupID == uuid.Nil {
		return nil, ToStatus(apperror.Validation("group_id: is required"))
	}
	res, err := h.svc.CancelGroup(ctx, req.GroupID)
	if err != nil {
		return nil, ToStatus(err)
	}
	return reply(GroupResponse{Group: groupDTO(res.Group)})
}

func (h *Handler) AddGroupPayment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req paymentRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, ToStatus(err)
	}
	g, err := h.svc.ApplyBulkPayment(ctx, BulkPaymentRequest{
		GroupID: req.GroupID,
		Amount:  req.Amount,
		Method:  model.PaymentMethod(req.Method),
	})
	if err != nil {
		return nil, ToStatus(err)
	}
	return reply(GroupResponse{Group: groupDTO(g)})
}

func (h *Handler) ListGroupBookings(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req listRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, ToStatus(err)
	}
	page, err := h.svc.ListGroupBookings(ctx, req.GroupID, req.Page, req.PageSize)
	if err != nil {
		return nil, ToStatus(err)
	}
	out := BookingPageResponse{
		Items:    make([]BookingDTO, 0, len(page.Items)),
		Page:     page.Page,
		PageSize: page.PageSize,
		Pages:    page.Pages,
		Total:    page.Total,
		HasNext:  page.HasNext,
		HasPrev:  page.HasPrev,
	}
	for i := range page.Items {
		out.Items = append(out.Items, bookingDTO(&page.Items[i]))
	}
	return reply(out)
}

func (h *Handler) ListGroupPayments(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req listRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, ToStatus(err)
	}
	page, err := h.svc.ListGroupPayments(ctx, req.GroupID, req.Page, req.PageSize)
	if err != nil {
		return nil, ToStatus(err)
	}
	out := PaymentPageResponse{
		Items:    make([]PaymentDTO, 0, len(page.Items)),
		Page:     page.Page,
		PageSize: page.PageSize,
		Pages:    page.Pages,
		Total:    page.Total,
		HasNext:  page.HasNext,
		HasPrev:  page.HasPrev,
	}
	for _, p := range page.Items {
		out.Items = append(out.Items, PaymentDTO{
			ID:     p.ID.String(),
			Amount: p.Amount,
			Method: string(p.Method),
			PaidAt: p.PaidAt.UTC().Format(time.RFC3339),
		})
	}
	return reply(out)
}

// --- преобразования ---

func reply(v any) (*structpb.Struct, error) {
	out, err := encodeStruct(v)
	if err != nil {
		return nil, ToStatus(err)
	}
	return out, nil
}

func parseDate(s string) (time.Time, error) {
	d, err := calendar.ParseDate(s)
	if err != nil {
		return time.Time{}, apperror.Validation("date: must be YYYY-MM-DD")
	}
	return d, nil
}

func dateAndHalves(date string, hours float64) (time.Time, int, error) {
	var v calendar.Violations
	d, err := calendar.ParseDate(date)
	if err != nil {
		v.Add("date: must be YYYY-MM-DD")
	}
	halves, err := calendar.HalvesFromHours(hours)
	if err != nil {
		v.Add("duration_hours: must be a multiple of 0.5 between 0.5 and %v", calendar.HoursFromHalves(calendar.MaxDurationHalves))
	}
	if !v.Empty() {
		return time.Time{}, 0, apperror.Validation(v...)
	}
	return d, halves, nil
}

func (r planRequest) toPlan() (recurring.PlanRequest, error) {
	halves, err := calendar.HalvesFromHours(r.DurationHours)
	if err != nil {
		return recurring.PlanRequest{}, apperror.Validation(
			"duration_hours: must be a multiple of 0.5 between 0.5 and 8")
	}
	return recurring.PlanRequest{
		Weekdays:       r.Weekdays,
		StartDate:      r.StartDate,
		EndDate:        r.EndDate,
		CourtID:        r.CourtID,
		TimeSlotID:     r.TimeSlotID,
		DurationHalves: halves,
	}, nil
}

func bookingDTO(b *model.Booking) BookingDTO {
	out := BookingDTO{
		ID:            b.ID.String(),
		Code:          b.Code,
		CourtID:       b.CourtID.String(),
		Date:          calendar.FormatDate(b.Date()),
		TimeSlotID:    b.TimeSlotID.String(),
		StartMinute:   b.StartMinute,
		DurationHours: calendar.HoursFromHalves(b.DurationHalves),
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		Amount:        b.Amount,
		CustomerName:  b.CustomerName,
		SequenceIndex: b.SequenceIndex,
	}
	if b.RecurringGroupID != nil {
		out.RecurringGroupID = b.RecurringGroupID.String()
	}
	return out
}

func groupDTO(g *model.RecurringBookingGroup) GroupDTO {
	skipped := []model.SkippedDate(g.SkippedDates)
	if skipped == nil {
		skipped = []model.SkippedDate{}
	}
	return GroupDTO{
		ID:             g.ID.String(),
		Code:           g.Code,
		CourtID:        g.CourtID.String(),
		TimeSlotID:     g.TimeSlotID.String(),
		Weekdays:       []int(g.Weekdays),
		DurationHours:  calendar.HoursFromHalves(g.DurationHalves),
		StartDate:      calendar.FormatDate(time.Time(g.StartDate)),
		EndDate:        calendar.FormatDate(time.Time(g.EndDate)),
		PaymentMode:    string(g.PaymentMode),
		TotalAmount:    g.TotalAmount,
		PaidAmount:     g.PaidAmount,
		PaymentStatus:  string(g.PaymentStatus),
		Status:         string(g.Status),
		SkippedDates:   skipped,
		CancelledCount: g.CancelledCount,
	}
}

func planDTO(p *recurring.PlanResult) PlanResponse {
	out := PlanResponse{
		StartDate:    calendar.FormatDate(p.StartDate),
		EndDate:      calendar.FormatDate(p.EndDate),
		ValidDates:   make([]string, 0, len(p.ValidDates)),
		SkippedDates: p.SkippedDates,
		TotalAmount:  p.TotalAmount,
		Breakdown:    make([]DatePriceDTO, 0, len(p.Breakdown)),
		Partial:      p.Partial,
	}
	if out.SkippedDates == nil {
		out.SkippedDates = []model.SkippedDate{}
	}
	for _, d := range p.ValidDates {
		out.ValidDates = append(out.ValidDates, calendar.FormatDate(d))
	}
	for _, b := range p.Breakdown {
		out.Breakdown = append(out.Breakdown, DatePriceDTO{
			Date:   calendar.FormatDate(b.Date),
			IsPeak: b.IsPeak,
			Rate:   b.Rate,
			Amount: b.Amount,
		})
	}
	return out
}

func scheduleDTO(g *availability.Grid) ScheduleResponse {
	out := ScheduleResponse{
		Date:        calendar.FormatDate(g.Date),
		DayType:     string(g.DayType),
		IsBlocked:   g.IsBlocked,
		BlockReason: g.BlockReason,
		Courts:      make([]CourtRowDTO, 0, len(g.Courts)),
	}
	for _, row := range g.Courts {
		r := CourtRowDTO{
			CourtID: row.Court.ID.String(),
			Number:  row.Court.Number,
			Name:    row.Court.Name,
			Status:  string(row.Court.Status),
			Cells:   make([]CellDTO, 0, len(row.Cells)),
		}
		for _, c := range row.Cells {
			cell := CellDTO{
				SlotID:          c.SlotID.String(),
				Start:           c.Start,
				End:             c.End,
				IsPeak:          c.IsPeak,
				Price:           c.Price,
				Available:       c.Available,
				BlockedByPolicy: c.BlockedByPolicy,
				BlockedByDate:   c.BlockedByDate,
				Halves:          make([]HalfDTO, 0, len(c.Halves)),
			}
			for _, hc := range c.Halves {
				hd := HalfDTO{State: string(hc.State)}
				if hc.Booking != nil {
					hd.BookingID = hc.Booking.ID.String()
					hd.Code = hc.Booking.Code
				}
				cell.Halves = append(cell.Halves, hd)
			}
			r.Cells = append(r.Cells, cell)
		}
		out.Courts = append(out.Courts, r)
	}
	return out
}
