package service

import (
	"context"
	"net"
	"testing"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/Leganyst/court-booking/internal/apperror"
)

func startServer(t *testing.T, f *fixture) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(RecoveryInterceptor, LoggingInterceptor))
	RegisterCalendarServer(srv, NewHandler(f.svc))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn)
}

func errorInfo(t *testing.T, err error) (*status.Status, *errdetails.ErrorInfo, *errdetails.BadRequest) {
	t.Helper()
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("not a status error: %v", err)
	}
	var (
		info *errdetails.ErrorInfo
		br   *errdetails.BadRequest
	)
	for _, d := range st.Details() {
		switch v := d.(type) {
		case *errdetails.ErrorInfo:
			info = v
		case *errdetails.BadRequest:
			br = v
		}
	}
	return st, info, br
}

func TestGRPC_CreateBookingAndConflict(t *testing.T) {
	f := newFixture(t)
	client := startServer(t, f)
	ctx := context.Background()

	req := map[string]any{
		"court_id":       f.court.ID.String(),
		"date":           "2026-10-19",
		"time_slot_id":   f.morning.ID.String(),
		"start_minute":   0,
		"duration_hours": 1.5,
		"customer_name":  "Ivan",
	}
	var created BookingDTO
	if err := client.Call(ctx, "CreateBooking", req, &created); err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Code != "BK-20261019-0001" || created.DurationHours != 1.5 || created.Status != "confirmed" {
		t.Fatalf("unexpected booking: %+v", created)
	}

	var check CheckResponse
	err := client.Call(ctx, "CheckAvailability", map[string]any{
		"court_id":       f.court.ID.String(),
		"date":           "2026-10-19",
		"time_slot_id":   f.late.ID.String(),
		"start_minute":   0,
		"duration_hours": 0.5,
	}, &check)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if check.Available || check.Reason != "conflict" || check.ConflictingBookingID != created.ID {
		t.Fatalf("unexpected check: %+v", check)
	}

	err = client.Call(ctx, "CreateBooking", req, nil)
	st, info, _ := errorInfo(t, err)
	if st.Code() != codes.FailedPrecondition {
		t.Fatalf("code = %s", st.Code())
	}
	if info == nil || info.Reason != apperror.ErrSlotConflict.Code || info.Metadata["booking_id"] != created.ID {
		t.Fatalf("unexpected error info: %+v", info)
	}
}

func TestGRPC_ValidationDetails(t *testing.T) {
	f := newFixture(t)
	client := startServer(t, f)

	err := client.Call(context.Background(), "CheckAvailability", map[string]any{
		"court_id":       f.court.ID.String(),
		"date":           "19.10.2026",
		"time_slot_id":   f.morning.ID.String(),
		"duration_hours": 0.75,
	}, nil)
	st, info, br := errorInfo(t, err)
	if st.Code() != codes.InvalidArgument {
		t.Fatalf("code = %s", st.Code())
	}
	if info == nil || info.Reason != "validation_failed" {
		t.Fatalf("unexpected error info: %+v", info)
	}
	if br == nil || len(br.FieldViolations) != 2 ||
		br.FieldViolations[0].Field != "date" || br.FieldViolations[1].Field != "duration_hours" {
		t.Fatalf("unexpected violations: %+v", br)
	}
}

func TestGRPC_NotFound(t *testing.T) {
	f := newFixture(t)
	client := startServer(t, f)

	err := client.Call(context.Background(), "CancelRecurringGroup", map[string]any{
		"group_id": f.court.ID.String(),
	}, nil)
	st, info, _ := errorInfo(t, err)
	if st.Code() != codes.NotFound || info == nil || info.Reason != apperror.ErrGroupNotFound.Code {
		t.Fatalf("unexpected status %s / %+v", st.Code(), info)
	}
}

func TestGRPC_RecurringRoundTrip(t *testing.T) {
	f := newFixture(t)
	client := startServer(t, f)
	ctx := context.Background()

	plan := map[string]any{
		"weekdays":       []any{1, 3},
		"start_date":     "2026-10-19",
		"end_date":       "2026-11-01",
		"court_id":       f.court.ID.String(),
		"time_slot_id":   f.morning.ID.String(),
		"duration_hours": 1,
	}
	var planned PlanResponse
	if err := client.Call(ctx, "PlanRecurring", plan, &planned); err != nil {
		t.Fatalf("plan: %v", err)
	}
	want := []string{"2026-10-19", "2026-10-21", "2026-10-26", "2026-10-28"}
	if len(planned.ValidDates) != len(want) || planned.TotalAmount != 4*20000 {
		t.Fatalf("unexpected plan: %+v", planned)
	}
	for i, d := range want {
		if planned.ValidDates[i] != d {
			t.Fatalf("valid_dates[%d] = %s, want %s", i, planned.ValidDates[i], d)
		}
	}

	plan["payment_mode"] = "bulk"
	var created GroupResponse
	if err := client.Call(ctx, "CreateRecurringGroup", plan, &created); err != nil {
		t.Fatalf("create group: %v", err)
	}
	if created.Group.Code != "RG-00001" || len(created.Bookings) != 4 || created.Group.PaymentStatus != "pending" {
		t.Fatalf("unexpected group: %+v", created)
	}

	var paid GroupResponse
	err := client.Call(ctx, "AddGroupPayment", map[string]any{
		"group_id": created.Group.ID,
		"amount":   created.Group.TotalAmount,
		"method":   "qr",
	}, &paid)
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if paid.Group.PaymentStatus != "paid" || paid.Group.PaidAmount != created.Group.TotalAmount {
		t.Fatalf("unexpected payment result: %+v", paid.Group)
	}

	var page BookingPageResponse
	if err := client.Call(ctx, "ListGroupBookings", map[string]any{"group_id": created.Group.ID}, &page); err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 4 || page.Items[0].PaymentStatus != "covered" {
		t.Fatalf("unexpected page: %+v", page)
	}

	var payments PaymentPageResponse
	if err := client.Call(ctx, "ListGroupPayments", map[string]any{"group_id": created.Group.ID}, &payments); err != nil {
		t.Fatalf("payments: %v", err)
	}
	if payments.Total != 1 || payments.Items[0].Method != "qr" || payments.Items[0].Amount != created.Group.TotalAmount {
		t.Fatalf("unexpected payments: %+v", payments)
	}
	if payments.Items[0].PaidAt != "2026-10-18T12:00:00Z" {
		t.Fatalf("paid_at = %s", payments.Items[0].PaidAt)
	}

	var sched ScheduleResponse
	if err := client.Call(ctx, "GetSchedule", map[string]any{"date": "2026-10-21"}, &sched); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(sched.Courts) != 1 || sched.Courts[0].Cells[0].Halves[0].State != "booked" {
		t.Fatalf("unexpected schedule: %+v", sched)
	}
}
