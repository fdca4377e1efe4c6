package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/you/intella-booking/services/booking-service/internal/domain"
)

func TestCaptureComputesFeesAndWritesLedger(t *testing.T) {
	h := newHarness(t)
	b := h.book(t, 1000)
	h.pay(t, b, "20", "3.6")

	got := h.reload(t, b.ID)
	require.Equal(t, domain.PaymentConfirmed, got.PaymentStatus)
	require.Equal(t, domain.StatusPendingConfirmation, got.Status)
	require.True(t, got.Captured())
	require.True(t, got.PGFee.Equal(dec("23.6")))
	require.True(t, got.IntellaFee.Equal(dec("50")))
	require.True(t, got.ExpertEarning.Equal(dec("926.4")))
	require.True(t, got.FeePercent.Equal(dec("5")))

	rows := h.ledger(t, b.ID)
	require.Len(t, rows, 4)
	byType := map[domain.EntryType]domain.LedgerEntry{}
	for _, r := range rows {
		byType[r.EntryType] = r
	}
	require.Equal(t, domain.Debit, byType[domain.EntryBookingPayment].Direction)
	require.True(t, byType[domain.EntryExpertEarning].Amount.Equal(dec("926.4")))

	evs, err := h.store.Outbox.ByType(context.Background(), domain.RKBookingPaymentCaptured)
	require.NoError(t, err)
	require.Len(t, evs, 1)
}

func TestCaptureTwiceWritesFourRows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.book(t, 1000)
	ev := captured(b, "20", "3.6")

	out, err := h.capture.Handle(ctx, ev)
	require.NoError(t, err)
	require.Equal(t, OutcomeCaptured, out)

	out, err = h.capture.Handle(ctx, ev)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, out)

	// same payment redelivered under a new event id
	ev.EventID = "evt_redelivery"
	out, err = h.capture.Handle(ctx, ev)
	require.NoError(t, err)
	require.Equal(t, OutcomeReplayed, out)

	require.Len(t, h.ledger(t, b.ID), 4)
}

func TestCaptureErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, err := h.capture.Handle(ctx, PaymentEvent{Event: "order.paid", BookingID: "x"})
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, out)

	_, err = h.capture.Handle(ctx, PaymentEvent{Event: EventPaymentCaptured})
	require.ErrorIs(t, err, domain.ErrMissingBookingID)

	_, err = h.capture.Handle(ctx, PaymentEvent{Event: EventPaymentCaptured, BookingID: "missing"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCaptureWithoutFeeConfig(t *testing.T) {
	h := newHarnessWith(t, false)
	b := h.book(t, 1000)

	_, err := h.capture.Handle(context.Background(), captured(b, "20", "3.6"))
	require.ErrorIs(t, err, domain.ErrFeeConfigMissing)

	got := h.reload(t, b.ID)
	require.Equal(t, domain.PaymentUnpaid, got.PaymentStatus)
	require.Empty(t, h.ledger(t, b.ID))
}

func TestPaymentFailedCancelsBooking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.book(t, 1000)

	out, err := h.capture.Handle(ctx, PaymentEvent{
		EventID: "evt_fail", Event: EventPaymentFailed, BookingID: b.ID, ErrorReason: "payment_cancelled",
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, out)

	got := h.reload(t, b.ID)
	require.Equal(t, domain.StatusCancelled, got.Status)
	require.Equal(t, domain.ActorSystem, got.CancelledBy)
	require.Equal(t, domain.PaymentAbandoned, got.PaymentStatus)
	require.Empty(t, h.ledger(t, b.ID))

	other := h.book(t, 1000)
	_, err = h.capture.Handle(ctx, PaymentEvent{Event: EventPaymentFailed, BookingID: other.ID, ErrorReason: "insufficient_funds"})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentFailed, h.reload(t, other.ID).PaymentStatus)
}

func TestFailureAfterCaptureIsNoop(t *testing.T) {
	h := newHarness(t)
	b := h.book(t, 1000)
	h.pay(t, b, "20", "3.6")

	out, err := h.capture.Handle(context.Background(), PaymentEvent{Event: EventPaymentFailed, BookingID: b.ID})
	require.NoError(t, err)
	require.Equal(t, OutcomeStaleFailure, out)

	got := h.reload(t, b.ID)
	require.Equal(t, domain.StatusPendingConfirmation, got.Status)
	require.Equal(t, domain.PaymentConfirmed, got.PaymentStatus)
}

func TestCaptureAfterFailureIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.book(t, 1000)

	_, err := h.capture.Handle(ctx, PaymentEvent{EventID: "evt_fail", Event: EventPaymentFailed, BookingID: b.ID, ErrorReason: "insufficient_funds"})
	require.NoError(t, err)

	out, err := h.capture.Handle(ctx, captured(b, "20", "3.6"))
	require.NoError(t, err)
	require.Equal(t, OutcomeStaleCapture, out)

	got := h.reload(t, b.ID)
	require.Equal(t, domain.StatusCancelled, got.Status)
	require.Equal(t, domain.PaymentFailed, got.PaymentStatus)
	require.Equal(t, domain.RefundNone, got.RefundStatus)
	require.Empty(t, got.PaymentID)
	require.Empty(t, h.ledger(t, b.ID))

	_, err = h.store.Refunds.ByBooking(ctx, b.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	out, err = h.capture.Handle(ctx, captured(b, "20", "3.6"))
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, out)
}

func TestLateCaptureIsRecordedAndRefunded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.book(t, 500)

	_, err := h.bookings.UserCancel(ctx, user, b.ID, "")
	require.NoError(t, err)

	out, err := h.capture.Handle(ctx, captured(b, "10", "0"))
	require.NoError(t, err)
	require.Equal(t, OutcomeLateCapture, out)

	got := h.reload(t, b.ID)
	require.Equal(t, domain.StatusCancelled, got.Status)
	require.Equal(t, domain.PaymentConfirmed, got.PaymentStatus)
	require.Equal(t, domain.RefundPending, got.RefundStatus)
	require.Len(t, h.ledger(t, b.ID), 4)

	task, err := h.store.Refunds.ByBooking(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, "late_capture", task.Reason)
}

func TestCaptureOfDifferentPaymentIsIgnored(t *testing.T) {
	h := newHarness(t)
	b := h.book(t, 1000)
	h.pay(t, b, "20", "3.6")

	ev := captured(b, "1", "0")
	ev.EventID, ev.PaymentID = "evt_2", "pay_other"
	out, err := h.capture.Handle(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, OutcomeOtherPayment, out)
	require.True(t, h.reload(t, b.ID).PGFee.Equal(dec("23.6")))
}
