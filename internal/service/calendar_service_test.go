package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Leganyst/court-booking/internal/apperror"
	"github.com/Leganyst/court-booking/internal/availability"
	"github.com/Leganyst/court-booking/internal/events"
	"github.com/Leganyst/court-booking/internal/model"
	"github.com/Leganyst/court-booking/internal/recurring"
	"github.com/Leganyst/court-booking/internal/repository"
	"github.com/Leganyst/court-booking/internal/sequence"
)

var dbSeq atomic.Int64

type fixture struct {
	svc   *CalendarService
	repos *repository.Repositories
	pub   *events.MemoryPublisher
	clock *testClock

	morning model.TimeSlot // 08:00-09:00, будни
	late    model.TimeSlot // 09:00-10:00, будни, пик
	court   model.Court
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:service_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := model.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Сегодня 2026-10-18 (воскресенье), ближайший понедельник 2026-10-19.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := openTestDB(t)
	repos := repository.New(db)
	ctx := context.Background()

	f := &fixture{
		repos: repos,
		pub:   &events.MemoryPublisher{},
		clock: &testClock{now: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)},
	}
	f.morning = model.TimeSlot{
		StartTime: "08:00", EndTime: "09:00", DayType: model.DayTypeWeekday,
		Status: model.TimeSlotStatusActive, NormalPrice: 20000, PeakPrice: 30000,
	}
	f.late = model.TimeSlot{
		StartTime: "09:00", EndTime: "10:00", DayType: model.DayTypeWeekday,
		Status: model.TimeSlotStatusActive, NormalPrice: 20000, PeakPrice: 30000, IsPeak: true,
	}
	for _, s := range []*model.TimeSlot{&f.morning, &f.late} {
		if err := repos.TimeSlots.Create(ctx, s); err != nil {
			t.Fatalf("seed slot: %v", err)
		}
	}
	f.court = model.Court{Number: 1, Name: "Court 1", Status: model.CourtStatusAvailable}
	if err := repos.Courts.Create(ctx, &f.court); err != nil {
		t.Fatalf("seed court: %v", err)
	}

	f.svc = NewCalendarService(
		repos,
		sequence.NewGenerator(repository.NewGormSequenceStore(db)),
		f.pub,
		recurring.Config{Location: time.UTC, Now: f.clock.Now},
	)
	return f
}

func (f *fixture) bookingRequest(date string, slot model.TimeSlot, startMinute, halves int) CreateBookingRequest {
	return CreateBookingRequest{
		CourtID:        f.court.ID,
		Date:           date,
		TimeSlotID:     slot.ID,
		StartMinute:    startMinute,
		DurationHalves: halves,
		CustomerName:   "Ivan",
	}
}

func (f *fixture) mondayGroup(t *testing.T, mode model.PaymentMode) *GroupResult {
	t.Helper()
	res, err := f.svc.CreateRecurringGroup(context.Background(), CreateGroupRequest{
		PlanRequest: recurring.PlanRequest{
			Weekdays:       []int{1},
			StartDate:      "2026-10-19",
			EndDate:        "2026-12-21",
			CourtID:        f.court.ID,
			TimeSlotID:     f.morning.ID,
			DurationHalves: 2,
		},
		PaymentMode:  mode,
		CustomerName: "Club",
	})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	return res
}

func TestCreateBooking_AssignsCodeAndOccupies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.svc.CreateBooking(ctx, f.bookingRequest("2026-10-19", f.morning, 30, 2))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.Code != "BK-20261019-0001" {
		t.Fatalf("code = %q", b.Code)
	}
	if b.Status != model.BookingStatusConfirmed || b.PaymentStatus != model.PaymentStatusUnpaid {
		t.Fatalf("unexpected status %s/%s", b.Status, b.PaymentStatus)
	}
	// ставка якорного слота: 20000 в час, час брони
	if b.Amount != 20000 {
		t.Fatalf("amount = %d", b.Amount)
	}

	// 08:30-09:30: занята вторая половина 08:00 и первая 09:00
	grid, err := f.svc.BuildSchedule(ctx, b.Date(), "")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	cells := grid.Courts[0].Cells
	if cells[0].Halves[0].State != availability.HalfAvailable ||
		cells[0].Halves[1].State != availability.HalfBooked ||
		cells[1].Halves[0].State != availability.HalfBooked ||
		cells[1].Halves[1].State != availability.HalfAvailable {
		t.Fatalf("unexpected halves: %+v / %+v", cells[0].Halves, cells[1].Halves)
	}

	second, err := f.svc.CreateBooking(ctx, f.bookingRequest("2026-10-19", f.morning, 0, 1))
	if err != nil {
		t.Fatalf("adjacent half should be bookable: %v", err)
	}
	if second.Code != "BK-20261019-0002" {
		t.Fatalf("second code = %q", second.Code)
	}

	msgs := f.pub.Messages()
	if len(msgs) != 2 || msgs[0].Key != events.KeyBookingCreated {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	evs, err := f.repos.Events.ListByBooking(ctx, b.ID)
	if err != nil || len(evs) != 1 || evs[0].EventType != model.EventTypeBookingCreated {
		t.Fatalf("audit events = %+v, err %v", evs, err)
	}
}

func TestCreateBooking_ConflictReportsExistingBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateBooking(ctx, f.bookingRequest("2026-10-19", f.morning, 0, 2))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = f.svc.CreateBooking(ctx, f.bookingRequest("2026-10-19", f.morning, 30, 1))
	if !errors.Is(err, apperror.ErrSlotConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	var ae *apperror.Error
	if !errors.As(err, &ae) || ae.BookingID == nil || *ae.BookingID != first.ID {
		t.Fatalf("conflict should name booking %s: %+v", first.ID, ae)
	}
	if n := len(f.pub.Messages()); n != 1 {
		t.Fatalf("failed create must not publish, got %d messages", n)
	}
}

func TestCreateBooking_ConcurrentRequestsOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 8
	var (
		wg        sync.WaitGroup
		ok        atomic.Int32
		conflicts atomic.Int32
		other     = make(chan error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateBooking(ctx, f.bookingRequest("2026-10-20", f.morning, 0, 2))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, apperror.ErrSlotConflict):
				conflicts.Add(1)
			default:
				other <- err
			}
		}()
	}
	wg.Wait()
	close(other)
	for err := range other {
		t.Errorf("unexpected error: %v", err)
	}
	if ok.Load() != 1 || conflicts.Load() != workers-1 {
		t.Fatalf("ok=%d conflicts=%d", ok.Load(), conflicts.Load())
	}
}

func TestCreateBooking_RejectsBlockedDateAndPast(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.repos.Policy.BlockDate(ctx, time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC), "tournament"); err != nil {
		t.Fatalf("block: %v", err)
	}
	if _, err := f.svc.CreateBooking(ctx, f.bookingRequest("2026-10-21", f.morning, 0, 2)); !errors.Is(err, apperror.ErrDateBlocked) {
		t.Fatalf("expected ErrDateBlocked, got %v", err)
	}

	_, err := f.svc.CreateBooking(ctx, f.bookingRequest("2026-10-16", f.morning, 0, 2))
	if apperror.KindOf(err) != apperror.KindValidation {
		t.Fatalf("expected validation error for past date, got %v", err)
	}

	req := f.bookingRequest("2026-10-19", f.morning, 15, 0)
	_, err = f.svc.CreateBooking(ctx, req)
	var ae *apperror.Error
	if !errors.As(err, &ae) || len(ae.Details) != 2 {
		t.Fatalf("expected both violations, got %v", err)
	}
}

func TestCreateBooking_SlotMustMatchDayType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	weekend := model.TimeSlot{
		StartTime: "08:00", EndTime: "09:00", DayType: model.DayTypeWeekend,
		Status: model.TimeSlotStatusActive, NormalPrice: 25000, PeakPrice: 35000,
	}
	if err := f.repos.TimeSlots.Create(ctx, &weekend); err != nil {
		t.Fatalf("seed weekend slot: %v", err)
	}
	saturday := time.Date(2026, 10, 24, 0, 0, 0, 0, time.UTC)

	if _, err := f.svc.CreateBooking(ctx, f.bookingRequest("2026-10-24", weekend, 0, 2)); err != nil {
		t.Fatalf("weekend slot on saturday: %v", err)
	}
	// те же часы по будничному каталогу не должны пройти мимо занятости
	_, err := f.svc.CreateBooking(ctx, f.bookingRequest("2026-10-24", f.morning, 0, 2))
	if apperror.KindOf(err) != apperror.KindValidation {
		t.Fatalf("expected validation error for weekday slot on saturday, got %v", err)
	}
	_, err = f.svc.CreateBooking(ctx, f.bookingRequest("2026-10-19", weekend, 0, 2))
	if apperror.KindOf(err) != apperror.KindValidation {
		t.Fatalf("expected validation error for weekend slot on monday, got %v", err)
	}

	active, err := f.repos.Bookings.ListActiveBookings(ctx, f.court.ID, saturday, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 1 || active[0].TimeSlotID != weekend.ID {
		t.Fatalf("expected single weekend booking, got %+v", active)
	}

	_, err = f.svc.CheckAvailability(ctx, availability.Query{
		CourtID:        f.court.ID,
		Date:           saturday,
		TimeSlotID:     f.morning.ID,
		DurationHalves: 2,
	})
	if apperror.KindOf(err) != apperror.KindValidation {
		t.Fatalf("expected check to reject weekday slot on saturday, got %v", err)
	}
}

func TestCancelBooking_FreesHalvesAndIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.svc.CreateBooking(ctx, f.bookingRequest("2026-10-19", f.morning, 0, 2))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	cancelled, err := f.svc.CancelBooking(ctx, b.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != model.BookingStatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("unexpected booking after cancel: %+v", cancelled)
	}

	if _, err := f.svc.CreateBooking(ctx, f.bookingRequest("2026-10-19", f.morning, 0, 2)); err != nil {
		t.Fatalf("freed time should be bookable again: %v", err)
	}
	if _, err := f.svc.CancelBooking(ctx, b.ID); !errors.Is(err, apperror.ErrBookingTerminal) {
		t.Fatalf("expected ErrBookingTerminal, got %v", err)
	}
}

func TestCreateRecurringGroup_CreatesOrderedChildren(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// чужая бронь на 2026-11-02 делает эту дату конфликтной
	if _, err := f.svc.CreateBooking(ctx, f.bookingRequest("2026-11-02", f.morning, 30, 1)); err != nil {
		t.Fatalf("seed booking: %v", err)
	}

	res := f.mondayGroup(t, model.PaymentModeBulk)
	g := res.Group
	if g.Code != "RG-00001" || g.Status != model.GroupStatusActive {
		t.Fatalf("unexpected group: %+v", g)
	}
	if len(res.Bookings) != 9 {
		t.Fatalf("bookings = %d, want 9", len(res.Bookings))
	}
	if len(g.SkippedDates) != 1 || g.SkippedDates[0].Date != "2026-11-02" || g.SkippedDates[0].Reason != model.SkipReasonConflict {
		t.Fatalf("skipped = %+v", g.SkippedDates)
	}
	if g.TotalAmount != 9*20000 {
		t.Fatalf("total = %d", g.TotalAmount)
	}
	for i, b := range res.Bookings {
		if b.SequenceIndex != i+1 || b.RecurringGroupID == nil || *b.RecurringGroupID != g.ID {
			t.Fatalf("booking %d: %+v", i, b)
		}
	}

	page, err := f.svc.ListGroupBookings(ctx, g.ID, 2, 4)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 9 || len(page.Items) != 4 || page.Items[0].SequenceIndex != 5 || !page.HasNext {
		t.Fatalf("unexpected page: %+v", page)
	}

	stored, err := f.repos.Groups.GetByID(ctx, g.ID)
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if len(stored.Weekdays) != 1 || stored.Weekdays[0] != 1 || len(stored.SkippedDates) != 1 {
		t.Fatalf("stored group: %+v", stored)
	}
}

func TestCreateRecurringGroup_AllDatesUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.repos.Policy.BlockDate(ctx, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), "closed"); err != nil {
		t.Fatalf("block: %v", err)
	}
	_, err := f.svc.CreateRecurringGroup(ctx, CreateGroupRequest{
		PlanRequest: recurring.PlanRequest{
			Weekdays:       []int{1},
			StartDate:      "2026-10-19",
			EndDate:        "2026-10-19",
			CourtID:        f.court.ID,
			TimeSlotID:     f.morning.ID,
			DurationHalves: 2,
		},
		PaymentMode: model.PaymentModePerSession,
	})
	if !errors.Is(err, apperror.ErrNoBookableDates) {
		t.Fatalf("expected ErrNoBookableDates, got %v", err)
	}
}

func TestCancelGroup_OnlyFutureChildren(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.mondayGroup(t, model.PaymentModePerSession)
	if len(res.Bookings) != 10 {
		t.Fatalf("bookings = %d, want 10", len(res.Bookings))
	}

	// прошли 19.10, 26.10 и 02.11
	f.clock.Set(time.Date(2026, 11, 3, 9, 0, 0, 0, time.UTC))

	out, err := f.svc.CancelGroup(ctx, res.Group.ID)
	if err != nil {
		t.Fatalf("cancel group: %v", err)
	}
	if out.CancelledCount != 7 || out.Group.Status != model.GroupStatusCancelled {
		t.Fatalf("unexpected result: count=%d status=%s", out.CancelledCount, out.Group.Status)
	}

	page, err := f.svc.ListGroupBookings(ctx, res.Group.ID, 1, 20)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, b := range page.Items {
		past := b.Date().Before(time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC))
		if past && b.Status != model.BookingStatusConfirmed {
			t.Fatalf("past booking %s changed to %s", b.Code, b.Status)
		}
		if !past && b.Status != model.BookingStatusCancelled {
			t.Fatalf("future booking %s still %s", b.Code, b.Status)
		}
	}

	if _, err := f.svc.CancelGroup(ctx, res.Group.ID); !errors.Is(err, apperror.ErrGroupNotActive) {
		t.Fatalf("second cancel: expected ErrGroupNotActive, got %v", err)
	}

	msgs := f.pub.Messages()
	last := msgs[len(msgs)-1]
	var ev events.GroupEvent
	if err := json.Unmarshal(last.Body, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if last.Key != events.KeyGroupCancelled || ev.CancelledCount != 7 {
		t.Fatalf("unexpected last event %s: %+v", last.Key, ev)
	}
}

func TestApplyBulkPayment_PartialThenPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.mondayGroup(t, model.PaymentModeBulk)
	total := res.Group.TotalAmount

	g, err := f.svc.ApplyBulkPayment(ctx, BulkPaymentRequest{GroupID: res.Group.ID, Amount: 50000, Method: model.PaymentMethodCash})
	if err != nil {
		t.Fatalf("first payment: %v", err)
	}
	if g.PaymentStatus != model.BulkPaymentPartial || g.PaidAmount != 50000 {
		t.Fatalf("after first payment: %s %d", g.PaymentStatus, g.PaidAmount)
	}

	_, err = f.svc.ApplyBulkPayment(ctx, BulkPaymentRequest{GroupID: res.Group.ID, Amount: total, Method: model.PaymentMethodCard})
	if !errors.Is(err, apperror.ErrOverpayment) {
		t.Fatalf("expected ErrOverpayment, got %v", err)
	}

	f.clock.Set(time.Date(2026, 10, 18, 15, 0, 0, 0, time.UTC))
	g, err = f.svc.ApplyBulkPayment(ctx, BulkPaymentRequest{GroupID: res.Group.ID, Amount: total - 50000, Method: model.PaymentMethodTransfer})
	if err != nil {
		t.Fatalf("second payment: %v", err)
	}
	if g.PaymentStatus != model.BulkPaymentPaid || g.PaidAmount != total {
		t.Fatalf("after second payment: %s %d", g.PaymentStatus, g.PaidAmount)
	}

	page, err := f.svc.ListGroupBookings(ctx, res.Group.ID, 1, 20)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, b := range page.Items {
		if b.PaymentStatus != model.PaymentStatusCovered {
			t.Fatalf("booking %s payment status %s", b.Code, b.PaymentStatus)
		}
	}

	payments, err := f.svc.ListGroupPayments(ctx, res.Group.ID, 1, 20)
	if err != nil || payments.Total != 2 || len(payments.Items) != 2 {
		t.Fatalf("payments = %+v, err %v", payments, err)
	}
	if payments.Items[0].Amount != 50000 || payments.Items[1].Method != model.PaymentMethodTransfer {
		t.Fatalf("payments out of order: %+v", payments.Items)
	}
	// отклонённая переплата в историю не попадает
	second, err := f.svc.ListGroupPayments(ctx, res.Group.ID, 2, 1)
	if err != nil || len(second.Items) != 1 || second.HasNext || !second.HasPrev || second.Items[0].Amount != total-50000 {
		t.Fatalf("second page = %+v, err %v", second, err)
	}
}

func TestApplyBulkPayment_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	perSession := f.mondayGroup(t, model.PaymentModePerSession)
	if _, err := f.svc.ApplyBulkPayment(ctx, BulkPaymentRequest{GroupID: perSession.Group.ID, Amount: 100, Method: model.PaymentMethodCash}); !errors.Is(err, apperror.ErrNotBulkPayment) {
		t.Fatalf("expected ErrNotBulkPayment, got %v", err)
	}

	_, err := f.svc.ApplyBulkPayment(ctx, BulkPaymentRequest{GroupID: perSession.Group.ID, Amount: 100, Method: "barter"})
	if apperror.KindOf(err) != apperror.KindValidation {
		t.Fatalf("expected validation error for method, got %v", err)
	}
}

func TestListGroupPayments_UnknownGroup(t *testing.T) {
	f := newFixture(t)
	res := f.mondayGroup(t, model.PaymentModeBulk)

	page, err := f.svc.ListGroupPayments(context.Background(), res.Group.ID, 0, 0)
	if err != nil || page.Total != 0 || len(page.Items) != 0 || page.PageSize != 20 {
		t.Fatalf("empty history = %+v, err %v", page, err)
	}
	_, err = f.svc.ListGroupPayments(context.Background(), uuid.New(), 1, 20)
	if apperror.KindOf(err) != apperror.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCheckAvailability_ReadOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q := availability.Query{
		CourtID:        f.court.ID,
		Date:           time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
		TimeSlotID:     f.morning.ID,
		DurationHalves: 4,
	}
	for i := 0; i < 2; i++ {
		res, err := f.svc.CheckAvailability(ctx, q)
		if err != nil || !res.Available {
			t.Fatalf("check %d: %+v, %v", i, res, err)
		}
	}
	q.DurationHalves = 6
	res, err := f.svc.CheckAvailability(ctx, q)
	if err != nil || res.Reason != availability.ReasonInsufficientSlots {
		t.Fatalf("expected insufficient_slots, got %+v, %v", res, err)
	}
}

func TestAggregateAvailability_CountsCourts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateBooking(ctx, f.bookingRequest("2026-10-19", f.late, 0, 2)); err != nil {
		t.Fatalf("create: %v", err)
	}
	agg, err := f.svc.AggregateAvailability(ctx, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(agg.Slots) != 2 {
		t.Fatalf("slots = %d", len(agg.Slots))
	}
	if agg.Slots[0].AvailableCourts != 1 || agg.Slots[1].AvailableCourts != 0 || agg.Slots[1].Price != 30000 {
		t.Fatalf("unexpected aggregate: %+v", agg.Slots)
	}
}
