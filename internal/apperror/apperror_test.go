package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func TestIs_MatchesCopiesByCode(t *testing.T) {
	id := uuid.New()
	err := fmt.Errorf("create booking: %w", ErrSlotConflict.WithBooking(id))

	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected errors.Is to match conflict sentinel")
	}
	if errors.Is(err, ErrNonConsecutive) {
		t.Fatalf("conflict must not match non_consecutive")
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *Error in chain")
	}
	if appErr.BookingID == nil || *appErr.BookingID != id {
		t.Fatalf("booking id not carried: %+v", appErr.BookingID)
	}
	if ErrSlotConflict.BookingID != nil {
		t.Fatalf("sentinel must not be mutated")
	}
}

func TestValidation_KeepsAllDetails(t *testing.T) {
	err := Validation("weekdays is required", "end_date must not be before start_date")

	if KindOf(err) != KindValidation {
		t.Fatalf("kind = %v, want validation", KindOf(err))
	}
	if len(err.Details) != 2 {
		t.Fatalf("details = %v", err.Details)
	}
	want := "validation failed: weekdays is required; end_date must not be before start_date"
	if err.Error() != want {
		t.Fatalf("message = %q, want %q", err.Error(), want)
	}
}

func TestDependency_Unwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := Dependency("increment sequence", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected cause in chain")
	}
	if KindOf(err) != KindDependency {
		t.Fatalf("kind = %v", KindOf(err))
	}
	if KindOf(cause) != KindInternal {
		t.Fatalf("foreign error must be internal")
	}
}
