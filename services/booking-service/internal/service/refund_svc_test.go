package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/you/intella-booking/services/booking-service/internal/domain"
)

func TestHostRejectRefundsNetOfGatewayFee(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.book(t, 500)
	h.pay(t, b, "10", "0")

	out, err := h.bookings.HostReject(ctx, host, b.ID, "")
	require.NoError(t, err)
	require.True(t, out.RefundQueued)
	require.Empty(t, h.gw.refundCalls(), "refund runs off the request path")

	res, err := h.refunds.ProcessDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, domain.TaskSucceeded, res[0].Status)

	calls := h.gw.refundCalls()
	require.Len(t, calls, 1)
	require.True(t, calls[0].Amount.Equal(decimal.NewFromInt(490)))
	require.Equal(t, "pay_"+b.OrderCode, calls[0].PaymentID)
	require.Equal(t, "host_rejected", calls[0].Notes["reason"])
	require.Equal(t, "host", calls[0].Notes["initiator"])

	got := h.reload(t, b.ID)
	require.Equal(t, domain.RefundSucceeded, got.RefundStatus)
	require.True(t, got.RefundAmount.Equal(decimal.NewFromInt(490)))
	require.NotEmpty(t, got.RefundID)

	rows := h.ledger(t, b.ID)
	require.Len(t, rows, 8)
	net := map[domain.EntryType]decimal.Decimal{}
	for _, r := range rows {
		key := r.EntryType
		if orig, ok := domain.ReversalOf[key]; ok {
			key = orig
		}
		net[key] = net[key].Add(r.Signed())
	}
	for typ, sum := range net {
		require.True(t, sum.IsZero(), "%s nets to %s", typ, sum)
	}
}

func TestExecuteTwiceRefundsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.book(t, 1000)
	h.pay(t, b, "20", "3.6")
	_, err := h.bookings.UserCancel(ctx, user, b.ID, "")
	require.NoError(t, err)

	first, err := h.refunds.Execute(ctx, b.ID, "", domain.ActorAdmin)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeRefunded, first.Outcome)
	require.True(t, first.Amount.Equal(dec("976.4")))

	second, err := h.refunds.Execute(ctx, b.ID, "", domain.ActorAdmin)
	require.NoError(t, err)
	require.Equal(t, domain.TaskSucceeded, second.Status)

	require.Len(t, h.gw.refundCalls(), 1)
	require.Equal(t, domain.RefundSucceeded, h.reload(t, b.ID).RefundStatus)
}

func TestExecuteSkipsUncapturedBooking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.book(t, 1000)
	_, err := h.bookings.UserCancel(ctx, user, b.ID, "")
	require.NoError(t, err)

	res, err := h.refunds.Execute(ctx, b.ID, "", domain.ActorAdmin)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeNotCaptured, res.Outcome)
	require.Empty(t, h.gw.refundCalls())

	_, err = h.refunds.Execute(ctx, h.book(t, 0).ID, "", domain.ActorAdmin)
	require.ErrorIs(t, err, domain.ErrPreconditionFailed)
}

func TestRefundRetriesThenFailsDurably(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.book(t, 500)
	h.pay(t, b, "10", "0")
	h.gw.setRefundErr(errGatewayDown)

	_, err := h.bookings.HostReject(ctx, host, b.ID, "")
	require.NoError(t, err)

	res, err := h.refunds.ProcessDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, domain.TaskQueued, res[0].Status)
	require.Equal(t, domain.RefundPending, h.reload(t, b.ID).RefundStatus)

	// not due until the backoff elapses
	res, err = h.refunds.ProcessDue(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, res)

	h.clock.Advance(time.Minute)
	res, err = h.refunds.ProcessDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, domain.TaskFailed, res[0].Status)

	got := h.reload(t, b.ID)
	require.Equal(t, domain.RefundFailed, got.RefundStatus)
	require.Equal(t, domain.StatusRejected, got.Status, "the rejection stands")
	require.Len(t, h.ledger(t, b.ID), 4)

	failed, err := h.refunds.Tasks(ctx, domain.TaskFailed, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Contains(t, failed[0].LastError, "gateway unavailable")
	evs, err := h.store.Outbox.ByType(ctx, domain.RKRefundFailed)
	require.NoError(t, err)
	require.Len(t, evs, 1)

	h.gw.setRefundErr(nil)
	task, err := h.refunds.Retry(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskQueued, task.Status)
	require.Zero(t, task.Attempts)

	res, err = h.refunds.ProcessDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, domain.TaskSucceeded, res[0].Status)
	require.Equal(t, domain.RefundSucceeded, h.reload(t, b.ID).RefundStatus)
	require.Len(t, h.ledger(t, b.ID), 8)
}

func TestRetryRequiresFailedTask(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.refunds.Retry(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	b := h.book(t, 500)
	h.pay(t, b, "10", "0")
	_, err = h.bookings.HostReject(ctx, host, b.ID, "")
	require.NoError(t, err)
	_, err = h.refunds.Retry(ctx, b.ID)
	require.ErrorIs(t, err, domain.ErrPreconditionFailed)
}
