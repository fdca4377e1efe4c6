package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/you/intella-booking/services/booking-service/internal/domain"
)

func TestExpiryRejectsOverdueAndRefundsCaptured(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	paid := h.book(t, 1000)
	h.pay(t, paid, "20", "3.6")
	unpaid := h.book(t, 500)
	free := h.book(t, 0)

	rep, err := h.expiry.RunJobs(ctx)
	require.NoError(t, err)
	require.Zero(t, rep.Expired, "nothing has started yet")

	h.clock.Advance(2 * time.Hour)
	rep, err = h.expiry.RunJobs(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, rep.Expired)
	require.Equal(t, 1, rep.RefundsQueued)

	for _, id := range []string{paid.ID, unpaid.ID, free.ID} {
		got := h.reload(t, id)
		require.Equal(t, domain.StatusRejected, got.Status)
		require.Equal(t, domain.ActorSystem, got.RejectedBy)
		require.Equal(t, rep.RunID, got.ExpiryRunID)
	}

	batch, err := h.expiry.ProcessRefunds(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, batch.Backfilled)
	require.Len(t, batch.Results, 1)
	require.True(t, batch.Results[0].Amount.Equal(dec("976.4")))
	require.Len(t, h.gw.refundCalls(), 1)
	require.Equal(t, "expired", h.gw.refundCalls()[0].Notes["reason"])

	rep, err = h.expiry.RunJobs(ctx)
	require.NoError(t, err)
	require.Zero(t, rep.Expired)
	batch, err = h.expiry.ProcessRefunds(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, batch.Results)
	require.Len(t, h.gw.refundCalls(), 1)
}

func TestProcessRefundsBackfillsMissingTasks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.book(t, 1000)
	h.pay(t, b, "20", "3.6")

	// rows expired by an earlier release that never queued refunds
	h.clock.Advance(3 * time.Hour)
	n, err := h.store.Bookings.ExpireDue(ctx, h.clock.Now(), "legacy-run")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	batch, err := h.expiry.ProcessRefunds(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, batch.Backfilled)
	require.Len(t, batch.Results, 1)
	require.Equal(t, domain.RefundSucceeded, h.reload(t, b.ID).RefundStatus)
}

func TestRunJobsIsExclusive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	release, ok, err := h.locker.TryLock(ctx, expiryLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.expiry.RunJobs(ctx)
	require.ErrorIs(t, err, domain.ErrBusy)

	release()
	_, err = h.expiry.RunJobs(ctx)
	require.NoError(t, err)
}

func TestExpertNoShowCancelsAndRefunds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	skipped := h.book(t, 1000)
	attended := h.book(t, 1000)
	for _, b := range []string{skipped.ID, attended.ID} {
		h.pay(t, h.reload(t, b), "20", "3.6")
		_, err := h.bookings.Accept(ctx, host, b)
		require.NoError(t, err)
	}

	h.clock.Advance(2*time.Hour + 5*time.Minute)
	_, err := h.bookings.RecordJoin(ctx, user, skipped.ID)
	require.NoError(t, err)
	_, err = h.bookings.RecordJoin(ctx, user, attended.ID)
	require.NoError(t, err)
	got, err := h.bookings.RecordJoin(ctx, host, attended.ID)
	require.NoError(t, err)
	require.NotNil(t, got.HostJoinedAt)

	// session ended at 10:30; grace runs to 10:45
	h.clock.Advance(30 * time.Minute)
	rep, err := h.expiry.RunJobs(ctx)
	require.NoError(t, err)
	require.Zero(t, rep.NoShows)

	h.clock.Advance(15 * time.Minute)
	rep, err = h.expiry.RunJobs(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, rep.NoShows)
	require.Equal(t, 1, rep.RefundsQueued)

	b := h.reload(t, skipped.ID)
	require.Equal(t, domain.StatusCancelled, b.Status)
	require.Equal(t, domain.ActorSystem, b.CancelledBy)
	require.Equal(t, "expert", b.NoShow)
	require.Equal(t, domain.RefundPending, b.RefundStatus)
	require.Equal(t, domain.StatusConfirmed, h.reload(t, attended.ID).Status)

	_, err = h.refunds.ProcessDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, h.ledger(t, skipped.ID), 8)
}

func TestRecordJoinRequiresConfirmedParticipant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.book(t, 0)

	_, err := h.bookings.RecordJoin(ctx, user, b.ID)
	require.ErrorIs(t, err, domain.ErrPreconditionFailed)
	_, err = h.bookings.RecordJoin(ctx, Caller{ID: "stranger"}, b.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)
}
