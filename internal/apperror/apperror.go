package apperror

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind классифицирует ошибку движка бронирования.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindPolicyBlock
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPolicyBlock:
		return "policy_block"
	case KindDependency:
		return "dependency"
	default:
		return "internal"
	}
}

// Error — ошибка с видом, стабильным кодом и необязательными деталями.
type Error struct {
	Kind    Kind
	Code    string
	Message string

	// Details — полный список нарушений для ошибок валидации.
	Details []string
	// BookingID — бронирование, с которым обнаружен конфликт.
	BookingID *uuid.UUID

	Err error
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Details) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Details, "; "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is сравнивает ошибки по коду, чтобы errors.Is работал с копиями сентинелов.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// WithBooking возвращает копию ошибки с привязкой к бронированию.
func (e *Error) WithBooking(id uuid.UUID) *Error {
	cp := *e
	cp.BookingID = &id
	return &cp
}

// Wrap возвращает копию ошибки с причиной.
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// Validation собирает все нарушения в одну ошибку.
func Validation(details ...string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    "validation_failed",
		Message: "validation failed",
		Details: details,
	}
}

// Dependency оборачивает отказ хранилища или внешнего оракула.
func Dependency(op string, err error) *Error {
	return &Error{
		Kind:    KindDependency,
		Code:    "dependency_failure",
		Message: fmt.Sprintf("%s failed", op),
		Err:     err,
	}
}

// KindOf возвращает вид ошибки или KindInternal для чужих ошибок.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Sentinels.
var (
	ErrCourtNotFound    = New(KindNotFound, "court_not_found", "court not found")
	ErrTimeSlotNotFound = New(KindNotFound, "time_slot_not_found", "time slot not found")
	ErrBookingNotFound  = New(KindNotFound, "booking_not_found", "booking not found")
	ErrGroupNotFound    = New(KindNotFound, "group_not_found", "recurring group not found")

	ErrSlotConflict     = New(KindConflict, "conflict", "requested time is already booked")
	ErrNonConsecutive   = New(KindConflict, "non_consecutive", "requested span crosses a gap in the time slot catalog")
	ErrInsufficientSlot = New(KindConflict, "insufficient_slots", "requested span runs past the end of the time slot catalog")
	ErrCourtUnavailable = New(KindConflict, "court_unavailable", "court is not available for booking")
	ErrNoBookableDates  = New(KindConflict, "no_bookable_dates", "no date in the recurring pattern can be booked")
	ErrConcurrentUpdate = New(KindConflict, "concurrent_update", "record was modified concurrently")

	ErrPolicyBlocked = New(KindPolicyBlock, "policy_blocked", "time is reserved for group play")
	ErrDateBlocked   = New(KindPolicyBlock, "date_blocked", "date is closed for bookings")

	ErrGroupNotActive  = New(KindValidation, "group_not_active", "recurring group is not active")
	ErrNotBulkPayment  = New(KindValidation, "not_bulk_payment", "recurring group is not in bulk payment mode")
	ErrOverpayment     = New(KindValidation, "overpayment", "payment exceeds the outstanding amount")
	ErrInvalidAmount   = New(KindValidation, "invalid_amount", "payment amount must be positive")
	ErrBookingTerminal = New(KindValidation, "booking_terminal", "booking is already cancelled or completed")
)
