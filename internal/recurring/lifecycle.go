package recurring

import (
	"time"

	"github.com/Leganyst/court-booking/internal/apperror"
	"github.com/Leganyst/court-booking/internal/model"
)

// CanCancel: отменить можно только активную группу.
func CanCancel(status model.GroupStatus) error {
	if status != model.GroupStatusActive {
		return apperror.ErrGroupNotActive
	}
	return nil
}

// CancellableChild сообщает, отменяется ли дочерняя бронь вместе с группой:
// только будущие (с сегодняшнего дня) и не завершённые.
func CancellableChild(b *model.Booking, today time.Time) bool {
	if b.Status.Terminal() {
		return false
	}
	return !b.Date().Before(today)
}

// NextPaymentState выводит статус пакетной оплаты из сумм.
func NextPaymentState(total, paid int64) model.BulkPaymentStatus {
	switch {
	case paid <= 0:
		return model.BulkPaymentPending
	case paid >= total:
		return model.BulkPaymentPaid
	default:
		return model.BulkPaymentPartial
	}
}

type PaymentOutcome struct {
	PaidAmount int64
	Status     model.BulkPaymentStatus
	// BecamePaid — группа только что оплачена полностью.
	BecamePaid bool
}

// ApplyPayment проверяет платёж и считает новое состояние группы.
// pending -> partial -> paid, оплаченная сумма не убывает и не
// превышает итог.
func ApplyPayment(g *model.RecurringBookingGroup, amount int64) (PaymentOutcome, error) {
	if g.PaymentMode != model.PaymentModeBulk {
		return PaymentOutcome{}, apperror.ErrNotBulkPayment
	}
	if g.Status != model.GroupStatusActive {
		return PaymentOutcome{}, apperror.ErrGroupNotActive
	}
	if amount <= 0 {
		return PaymentOutcome{}, apperror.ErrInvalidAmount
	}
	if g.PaidAmount+amount > g.TotalAmount {
		return PaymentOutcome{}, apperror.ErrOverpayment
	}

	paid := g.PaidAmount + amount
	status := NextPaymentState(g.TotalAmount, paid)
	return PaymentOutcome{
		PaidAmount: paid,
		Status:     status,
		BecamePaid: status == model.BulkPaymentPaid && g.PaymentStatus != model.BulkPaymentPaid,
	}, nil
}

// SessionPrice — стоимость брони: почасовая ставка × получасы / 2,
// округление половины копейки вверх.
func SessionPrice(rate int64, halves int) int64 {
	return (rate*int64(halves) + 1) / 2
}
