package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/you/intella-booking/services/booking-service/internal/domain"
	"github.com/you/intella-booking/services/booking-service/internal/gateway"
	"github.com/you/intella-booking/services/booking-service/internal/repository"
)

type RefundPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// StaleAfter returns tasks left in processing by a dead worker to the queue.
	StaleAfter time.Duration
}

func (p RefundPolicy) withDefaults() RefundPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 6
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = 30 * time.Second
	}
	if p.BackoffMax <= 0 {
		p.BackoffMax = time.Hour
	}
	if p.StaleAfter <= 0 {
		p.StaleAfter = 10 * time.Minute
	}
	return p
}

type RefundResult struct {
	BookingID string                  `json:"booking_id"`
	Status    domain.RefundTaskStatus `json:"status"`
	Outcome   domain.RefundOutcome    `json:"outcome,omitempty"`
	Amount    decimal.Decimal         `json:"amount"`
	Attempts  int                     `json:"attempts"`
	RefundID  string                  `json:"refund_id,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

type RefundSvc struct {
	store  *repository.Store
	gw     gateway.Gateway
	policy RefundPolicy
	logger *slog.Logger
	now    func() time.Time
}

func NewRefundSvc(store *repository.Store, gw gateway.Gateway, policy RefundPolicy, logger *slog.Logger, now func() time.Time) *RefundSvc {
	logger, now = defaults(logger, now)
	return &RefundSvc{store: store, gw: gw, policy: policy.withDefaults(), logger: logger.With("module", "refund"), now: now}
}

// Execute queues the refund owed for a terminal booking and runs it now.
// Repeated calls never issue a second gateway refund.
func (s *RefundSvc) Execute(ctx context.Context, bookingID, reason string, initiator domain.Actor) (*RefundResult, error) {
	b, err := s.store.Bookings.ByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.Status.Terminal() {
		return nil, fmt.Errorf("%w: booking %s is %s", domain.ErrPreconditionFailed, bookingID, b.Status)
	}
	now := s.now()
	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		_, err := enqueueRefund(ctx, tx, b, orDefault(reason, "admin_refund"), initiator, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.ProcessBooking(ctx, bookingID)
}

// ProcessBooking runs the booking's queued task if it is due.
func (s *RefundSvc) ProcessBooking(ctx context.Context, bookingID string) (*RefundResult, error) {
	t, err := s.store.Refunds.ByBooking(ctx, bookingID)
	if errors.Is(err, domain.ErrNotFound) {
		b, err := s.store.Bookings.ByID(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		return &RefundResult{BookingID: bookingID, Status: domain.TaskSkipped, Outcome: classify(b)}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.ProcessTask(ctx, *t)
}

// ProcessDue drains up to limit due tasks.
func (s *RefundSvc) ProcessDue(ctx context.Context, limit int) ([]RefundResult, error) {
	now := s.now()
	if n, err := s.store.Refunds.ReleaseStale(ctx, now.Add(-s.policy.StaleAfter), now); err != nil {
		return nil, err
	} else if n > 0 {
		s.logger.WarnContext(ctx, "released stale refund tasks", "operation", "process_due", "count", n)
	}
	tasks, err := s.store.Refunds.Due(ctx, now, limit)
	if err != nil {
		return nil, err
	}
	out := make([]RefundResult, 0, len(tasks))
	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		r, err := s.ProcessTask(ctx, t)
		if err != nil {
			s.logger.ErrorContext(ctx, "refund task errored", "operation", "process_due", "booking_id", t.BookingID, "error", err)
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

// ProcessTask claims t and attempts the refund once. Gateway failures are
// recorded on the task rather than returned.
func (s *RefundSvc) ProcessTask(ctx context.Context, t domain.RefundTask) (res *RefundResult, err error) {
	ctx, span := tracer.Start(ctx, "refund.process")
	span.SetAttributes(attribute.String("booking.id", t.BookingID))
	defer func() { endSpan(span, err) }()

	now := s.now()
	claimed, err := s.store.Refunds.Claim(ctx, t.ID, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		cur, err := s.store.Refunds.ByBooking(ctx, t.BookingID)
		if err != nil {
			return nil, err
		}
		return &RefundResult{BookingID: cur.BookingID, Status: cur.Status, Outcome: domain.RefundOutcome(cur.Outcome), Attempts: cur.Attempts, Error: cur.LastError}, nil
	}
	attempt := t.Attempts + 1
	res = &RefundResult{BookingID: t.BookingID, Attempts: attempt}

	b, err := s.store.Bookings.ByID(ctx, t.BookingID)
	if err != nil {
		return nil, err
	}
	if oc := classify(b); oc != "" {
		res.Status, res.Outcome = domain.TaskSkipped, oc
		err = s.store.InTx(ctx, func(tx *repository.Store) error {
			if err := tx.Refunds.Complete(ctx, t.ID, domain.TaskSkipped, oc, now); err != nil {
				return err
			}
			if oc == domain.OutcomeAlreadyRefunded {
				return nil
			}
			return tx.Bookings.SetRefundState(ctx, b.ID,
				[]domain.RefundStatus{domain.RefundPending, domain.RefundFailed},
				map[string]any{"refund_status": domain.RefundNone, "updated_at": now})
		})
		if errors.Is(err, domain.ErrPreconditionFailed) {
			err = nil
		}
		s.logger.InfoContext(ctx, "refund skipped", "operation", "refund", "outcome", string(oc), "booking_id", b.ID)
		return res, err
	}

	amount := b.RefundAmountDue()
	res.Amount = amount
	ref, gwErr := s.gw.Refund(ctx, gateway.RefundRequest{
		PaymentID:      b.PaymentID,
		Amount:         amount,
		Currency:       b.Currency,
		IdempotencyKey: "refund-" + b.ID,
		Notes: map[string]string{
			"booking_id": b.ID,
			"order_code": b.OrderCode,
			"reason":     t.Reason,
			"initiator":  string(t.Initiator),
		},
	})
	if gwErr != nil {
		return s.recordFailure(ctx, t, b, attempt, gwErr, res)
	}

	res.Status, res.Outcome, res.RefundID = domain.TaskSucceeded, domain.OutcomeRefunded, ref.ID
	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		if err := tx.Bookings.SetRefundState(ctx, b.ID,
			[]domain.RefundStatus{domain.RefundNone, domain.RefundPending, domain.RefundFailed},
			map[string]any{
				"refund_status":    domain.RefundSucceeded,
				"refund_id":        ref.ID,
				"refund_amount":    amount,
				"refund_reason":    t.Reason,
				"refund_initiator": t.Initiator,
				"refunded_at":      now,
				"updated_at":       now,
			}); err != nil {
			return err
		}
		if _, err := tx.Ledger.Insert(ctx, domain.ReversalEntries(b, now)); err != nil {
			return err
		}
		if err := tx.Refunds.Complete(ctx, t.ID, domain.TaskSucceeded, domain.OutcomeRefunded, now); err != nil {
			return err
		}
		b.RefundStatus = domain.RefundSucceeded
		msg := domain.NewBookingEvent(b, now)
		msg.Reason = t.Reason
		msg.RefundAmount = amount.StringFixed(2)
		return tx.Outbox.Add(ctx, domain.RKRefundSucceeded, b.ID, msg, now)
	})
	if err != nil {
		// the gateway deduplicates on the idempotency key, so the stale
		// sweep can safely re-run this task
		s.logger.ErrorContext(ctx, "refund issued but not recorded", "operation", "refund", "outcome", "failure", "booking_id", b.ID, "refund_id", ref.ID, "error", err)
		return nil, err
	}
	s.logger.InfoContext(ctx, "refund issued", "operation", "refund", "outcome", "success",
		"booking_id", b.ID, "refund_id", ref.ID, "amount", amount.StringFixed(2), "attempt", attempt)
	return res, nil
}

func (s *RefundSvc) recordFailure(ctx context.Context, t domain.RefundTask, b *domain.Booking, attempt int, cause error, res *RefundResult) (*RefundResult, error) {
	now := s.now()
	res.Error = cause.Error()
	if attempt < s.policy.MaxAttempts {
		next := now.Add(domain.Backoff(attempt, s.policy.BackoffBase, s.policy.BackoffMax))
		res.Status = domain.TaskQueued
		s.logger.WarnContext(ctx, "refund attempt failed", "operation", "refund", "outcome", "retry",
			"booking_id", b.ID, "attempt", attempt, "next_attempt_at", next, "error", cause)
		return res, s.store.Refunds.Reschedule(ctx, t.ID, next, cause.Error(), now)
	}

	res.Status = domain.TaskFailed
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		if err := tx.Refunds.Fail(ctx, t.ID, cause.Error(), now); err != nil {
			return err
		}
		if err := tx.Bookings.SetRefundState(ctx, b.ID,
			[]domain.RefundStatus{domain.RefundNone, domain.RefundPending},
			map[string]any{"refund_status": domain.RefundFailed, "updated_at": now}); err != nil {
			return err
		}
		b.RefundStatus = domain.RefundFailed
		msg := domain.NewBookingEvent(b, now)
		msg.Reason = t.Reason
		return tx.Outbox.Add(ctx, domain.RKRefundFailed, b.ID, msg, now)
	})
	s.logger.ErrorContext(ctx, "refund gave up", "operation", "refund", "outcome", "failure",
		"booking_id", b.ID, "attempts", attempt, "error", cause)
	return res, err
}

// Retry puts a failed refund back on the queue with a fresh attempt budget.
func (s *RefundSvc) Retry(ctx context.Context, bookingID string) (*domain.RefundTask, error) {
	now := s.now()
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		ok, err := tx.Refunds.Retry(ctx, bookingID, now)
		if err != nil {
			return err
		}
		if !ok {
			if _, err := tx.Refunds.ByBooking(ctx, bookingID); err != nil {
				return err
			}
			return fmt.Errorf("%w: refund for %s is not failed", domain.ErrPreconditionFailed, bookingID)
		}
		return tx.Bookings.SetRefundState(ctx, bookingID,
			[]domain.RefundStatus{domain.RefundFailed},
			map[string]any{"refund_status": domain.RefundPending, "updated_at": now})
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "refund requeued", "operation", "retry", "outcome", "success", "booking_id", bookingID)
	return s.store.Refunds.ByBooking(ctx, bookingID)
}

func (s *RefundSvc) Tasks(ctx context.Context, status domain.RefundTaskStatus, limit int) ([]domain.RefundTask, error) {
	return s.store.Refunds.List(ctx, status, limit)
}

// classify returns why no gateway call is needed, or "" when one is.
func classify(b *domain.Booking) domain.RefundOutcome {
	switch {
	case b.RefundStatus == domain.RefundSucceeded:
		return domain.OutcomeAlreadyRefunded
	case !b.Captured():
		return domain.OutcomeNotCaptured
	case !b.RefundAmountDue().IsPositive():
		return domain.OutcomeNothingDue
	}
	return ""
}
