package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/protoadapt"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Leganyst/court-booking/internal/apperror"
	"github.com/Leganyst/court-booking/internal/logger"
)

const ServiceName = "court_booking.v1.CalendarService"

// CalendarServer — gRPC-поверхность движка. Сообщения передаются как
// google.protobuf.Struct, поля описаны в wire.go.
type CalendarServer interface {
	CheckAvailability(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetSchedule(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetAvailability(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	PlanRecurring(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	CreateBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	CancelBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	CreateRecurringGroup(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	CancelRecurringGroup(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	AddGroupPayment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ListGroupBookings(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ListGroupPayments(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(srv CalendarServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func unary(name string, m unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return m(srv.(CalendarServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return m(srv.(CalendarServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var CalendarServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CalendarServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CheckAvailability", CalendarServer.CheckAvailability),
		unary("GetSchedule", CalendarServer.GetSchedule),
		unary("GetAvailability", CalendarServer.GetAvailability),
		unary("PlanRecurring", CalendarServer.PlanRecurring),
		unary("CreateBooking", CalendarServer.CreateBooking),
		unary("CancelBooking", CalendarServer.CancelBooking),
		unary("CreateRecurringGroup", CalendarServer.CreateRecurringGroup),
		unary("CancelRecurringGroup", CalendarServer.CancelRecurringGroup),
		unary("AddGroupPayment", CalendarServer.AddGroupPayment),
		unary("ListGroupBookings", CalendarServer.ListGroupBookings),
		unary("ListGroupPayments", CalendarServer.ListGroupPayments),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "court_booking/v1/calendar.proto",
}

func RegisterCalendarServer(s grpc.ServiceRegistrar, srv CalendarServer) {
	s.RegisterService(&CalendarServiceDesc, srv)
}

// Client вызывает методы сервиса по готовому соединению.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call вызывает метод сервиса: req кодируется в Struct, ответ
// раскладывается в out.
func (c *Client) Call(ctx context.Context, method string, req, out any) error {
	in, err := encodeStruct(req)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	b, err := protojson.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func encodeStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeStruct(in *structpb.Struct, v any) error {
	b, err := protojson.Marshal(in)
	if err != nil {
		return apperror.Validation("request: " + err.Error())
	}
	if err := json.Unmarshal(b, v); err != nil {
		return apperror.Validation("request: " + jsonProblem(err))
	}
	return nil
}

func jsonProblem(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("%s: must be %s", typeErr.Field, typeErr.Type)
	}
	return err.Error()
}

const errorDomain = "court-booking"

// ToStatus переводит ошибку движка в gRPC-статус с деталями.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	var ae *apperror.Error
	if !errors.As(err, &ae) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return status.FromContextError(err).Err()
		}
		if _, ok := status.FromError(err); ok {
			return err
		}
		return status.Error(codes.Internal, "internal error")
	}

	var code codes.Code
	switch ae.Kind {
	case apperror.KindValidation:
		code = codes.InvalidArgument
	case apperror.KindNotFound:
		code = codes.NotFound
	case apperror.KindConflict, apperror.KindPolicyBlock:
		code = codes.FailedPrecondition
	case apperror.KindDependency:
		code = codes.Unavailable
	default:
		code = codes.Internal
	}

	st := status.New(code, ae.Error())
	info := &errdetails.ErrorInfo{
		Reason:   ae.Code,
		Domain:   errorDomain,
		Metadata: map[string]string{"kind": ae.Kind.String()},
	}
	if ae.BookingID != nil {
		info.Metadata["booking_id"] = ae.BookingID.String()
	}
	details := []protoadapt.MessageV1{info}
	if len(ae.Details) > 0 {
		br := &errdetails.BadRequest{}
		for _, d := range ae.Details {
			field, desc, _ := strings.Cut(d, ": ")
			br.FieldViolations = append(br.FieldViolations, &errdetails.BadRequest_FieldViolation{
				Field:       field,
				Description: desc,
			})
		}
		details = append(details, br)
	}
	withDetails, derr := st.WithDetails(details...)
	if derr != nil {
		return st.Err()
	}
	return withDetails.Err()
}

// LoggingInterceptor кладёт в контекст логгер с методом и пишет итог вызова.
func LoggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	ctx = logger.With(ctx, "method", info.FullMethod)
	resp, err := handler(ctx, req)

	l := logger.FromContext(ctx)
	ev := l.Info()
	if err != nil {
		ev = l.Warn().Str("code", status.Code(err).String()).Err(err)
	}
	ev.Dur("took", time.Since(start)).Msg("grpc call")
	return resp, err
}

// RecoveryInterceptor переводит панику обработчика в Internal.
func RecoveryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(ctx).Error().
				Str("method", info.FullMethod).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("grpc handler panic")
			err = status.Error(codes.Internal, "internal error")
		}
	}()
	return handler(ctx, req)
}
