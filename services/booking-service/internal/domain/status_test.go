package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestConfirmedOnlyReachableFromPending(t *testing.T) {
	for _, from := range []Status{StatusConfirmed, StatusRejected, StatusCancelled} {
		require.False(t, CanTransition(from, StatusConfirmed), "from %s", from)
	}
	require.True(t, CanTransition(StatusPendingConfirmation, StatusConfirmed))
}

func TestTerminalStatesHaveNoOutgoingEdges(t *testing.T) {
	for _, ev := range []Event{EventPaymentCaptured, EventPaymentFailed, EventFreeConfirmed, EventHostAccept,
		EventHostReject, EventUserCancel, EventExpire, EventHostCancel, EventExpertNoShow} {
		tr, err := Plan(ev)
		require.NoError(t, err)
		require.False(t, tr.From.Terminal(), "event %s leaves a terminal state", ev)
	}
}

func TestCheckRejectsWrongStatus(t *testing.T) {
	tr, err := Plan(EventHostAccept)
	require.NoError(t, err)

	b := &Booking{Status: StatusCancelled, PaymentStatus: PaymentConfirmed}
	require.True(t, errors.Is(tr.Check(b), ErrPreconditionFailed))

	b = &Booking{Status: StatusPendingConfirmation, PaymentStatus: PaymentUnpaid}
	require.True(t, errors.Is(tr.Check(b), ErrPreconditionFailed))

	b.PaymentStatus = PaymentConfirmed
	require.NoError(t, tr.Check(b))
}

func TestUpdatesSetExactlyOneActorColumn(t *testing.T) {
	for ev, col := range map[Event]string{
		EventHostReject: "rejected_by", EventExpire: "rejected_by",
		EventUserCancel: "cancelled_by", EventHostCancel: "cancelled_by",
		EventPaymentFailed: "cancelled_by", EventExpertNoShow: "cancelled_by",
	} {
		tr, _ := Plan(ev)
		u := tr.Updates()
		_, rej := u["rejected_by"]
		_, can := u["cancelled_by"]
		require.True(t, rej != can, "event %s", ev)
		require.Contains(t, u, col)
	}
}

func TestPlanUnknownEvent(t *testing.T) {
	_, err := Plan("teleport")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRefundAmountDue(t *testing.T) {
	now := time.Now()
	b := &Booking{Amount: decimal.NewFromInt(500), GatewayFee: decimal.RequireFromString("8.47"),
		GatewayTax: decimal.RequireFromString("1.53"), PaymentID: "pay_1", CapturedAt: &now}
	require.True(t, b.RefundAmountDue().Equal(decimal.NewFromInt(490)))
	require.True(t, b.NeedsRefund())

	b.RefundStatus = RefundSucceeded
	require.False(t, b.NeedsRefund())
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	require.Equal(t, 30*time.Second, Backoff(1, 30*time.Second, time.Hour))
	require.Equal(t, 60*time.Second, Backoff(2, 30*time.Second, time.Hour))
	require.Equal(t, 4*time.Minute, Backoff(4, 30*time.Second, time.Hour))
	require.Equal(t, time.Hour, Backoff(20, 30*time.Second, time.Hour))
}
