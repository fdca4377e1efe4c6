package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/you/intella-booking/services/booking-service/internal/domain"
	"github.com/you/intella-booking/services/booking-service/internal/repository"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
)

// PaymentEvent is a gateway webhook normalized across providers.
type PaymentEvent struct {
	EventID     string // gateway delivery id, used for dedup when present
	Event       string
	PaymentID   string
	OrderID     string
	BookingID   string
	Amount      decimal.Decimal
	GatewayFee  decimal.Decimal // excluding tax
	GatewayTax  decimal.Decimal
	ErrorReason string
}

type CaptureOutcome string

const (
	OutcomeCaptured     CaptureOutcome = "captured"
	OutcomeReplayed     CaptureOutcome = "replayed"
	OutcomeLateCapture  CaptureOutcome = "late_capture"
	OutcomeFailed       CaptureOutcome = "payment_failed"
	OutcomeIgnored      CaptureOutcome = "ignored"
	OutcomeDuplicate    CaptureOutcome = "duplicate"
	OutcomeStaleFailure CaptureOutcome = "stale_failure"
	OutcomeStaleCapture CaptureOutcome = "stale_capture"
	OutcomeOtherPayment CaptureOutcome = "other_payment"
	OutcomeFreeBooking  CaptureOutcome = "free_booking"
)

const lateCaptureReason = "late_capture"

type CaptureSvc struct {
	store  *repository.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewCaptureSvc(store *repository.Store, logger *slog.Logger, now func() time.Time) *CaptureSvc {
	logger, now = defaults(logger, now)
	return &CaptureSvc{store: store, logger: logger.With("module", "capture"), now: now}
}

// Handle applies one webhook delivery. Every path is safe to repeat: the
// gateway retries on any error.
func (s *CaptureSvc) Handle(ctx context.Context, ev PaymentEvent) (out CaptureOutcome, err error) {
	ctx, span := tracer.Start(ctx, "capture.handle")
	span.SetAttributes(attribute.String("payment.event", ev.Event), attribute.String("booking.id", ev.BookingID))
	defer func() {
		span.SetAttributes(attribute.String("capture.outcome", string(out)))
		endSpan(span, err)
	}()

	if ev.Event != EventPaymentCaptured && ev.Event != EventPaymentFailed {
		return OutcomeIgnored, nil
	}
	if strings.TrimSpace(ev.BookingID) == "" {
		return "", domain.ErrMissingBookingID
	}
	if ev.EventID != "" {
		seen, err := s.store.Events.Seen(ctx, ev.EventID)
		if err != nil {
			return "", err
		}
		if seen {
			return OutcomeDuplicate, nil
		}
	}

	b, err := s.store.Bookings.ByID(ctx, ev.BookingID)
	if err != nil {
		return "", err
	}
	out, err = s.apply(ctx, ev, b)
	if errors.Is(err, domain.ErrPreconditionFailed) {
		// a concurrent writer moved the booking; decide again on fresh state
		if b, err = s.store.Bookings.ByID(ctx, ev.BookingID); err != nil {
			return "", err
		}
		out, err = s.apply(ctx, ev, b)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "webhook not applied", "operation", ev.Event, "outcome", "failure", "booking_id", ev.BookingID, "error", err)
		return "", err
	}
	s.logger.InfoContext(ctx, "webhook applied", "operation", ev.Event, "outcome", string(out), "booking_id", ev.BookingID, "payment_id", ev.PaymentID)
	return out, nil
}

func (s *CaptureSvc) apply(ctx context.Context, ev PaymentEvent, b *domain.Booking) (CaptureOutcome, error) {
	if ev.Event == EventPaymentFailed {
		return s.failed(ctx, ev, b)
	}
	if b.OrderCode == "" {
		return "", domain.ErrOrderCodeMissing
	}
	if b.Amount.IsZero() {
		return OutcomeFreeBooking, s.mark(ctx, s.store, ev, b)
	}
	if b.PaymentStatus == domain.PaymentConfirmed {
		if b.PaymentID != ev.PaymentID {
			s.logger.WarnContext(ctx, "capture for already paid booking ignored", "booking_id", b.ID, "payment_id", ev.PaymentID, "recorded_payment_id", b.PaymentID)
			return OutcomeOtherPayment, s.mark(ctx, s.store, ev, b)
		}
		return s.replay(ctx, ev, b)
	}

	// A terminal booking that is still unpaid got its money after the
	// user or host walked away; record the capture and refund it. A
	// booking whose payment already failed keeps that outcome.
	late := b.Status.Terminal() && b.PaymentStatus == domain.PaymentUnpaid
	if b.Status.Terminal() && !late {
		s.logger.WarnContext(ctx, "capture after failed payment ignored", "booking_id", b.ID, "payment_id", ev.PaymentID, "payment_status", string(b.PaymentStatus))
		return OutcomeStaleCapture, s.mark(ctx, s.store, ev, b)
	}

	cfg, err := s.store.Fees.Active(ctx)
	if err != nil {
		return "", err
	}
	if !ev.Amount.IsZero() && !ev.Amount.Equal(b.Amount) {
		s.logger.WarnContext(ctx, "captured amount differs from booking amount", "booking_id", b.ID, "captured", ev.Amount.String(), "amount", b.Amount.String())
	}
	now := s.now()
	pgFee := ev.GatewayFee.Add(ev.GatewayTax)
	f := domain.ComputeFees(b.Amount, pgFee, *cfg)
	updates := map[string]any{
		"payment_status": domain.PaymentConfirmed,
		"payment_id":     ev.PaymentID,
		"captured_at":    now,
		"gateway_fee":    ev.GatewayFee,
		"gateway_tax":    ev.GatewayTax,
		"pg_fee":         pgFee,
		"intella_fee":    f.PlatformFee,
		"expert_earning": f.ExpertEarning,
		"fee_percent":    cfg.FeePercent,
		"min_fee":        cfg.MinFee,
		"updated_at":     now,
	}
	if ev.OrderID != "" && b.GatewayOrderID == "" {
		updates["gateway_order_id"] = ev.OrderID
	}
	exp := domain.Expected{Status: b.Status, Payment: b.PaymentStatus}
	if !late {
		t, _ := domain.Plan(domain.EventPaymentCaptured)
		if err := t.Check(b); err != nil {
			return "", err
		}
		exp = t.Expected()
	}

	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		if err := tx.Bookings.Transition(ctx, b.ID, exp, updates); err != nil {
			if errors.Is(err, domain.ErrPreconditionFailed) {
				return err
			}
			return fmt.Errorf("%w: %v", domain.ErrBookingUpdate, err)
		}
		b.PaymentStatus = domain.PaymentConfirmed
		b.PaymentID = ev.PaymentID
		b.CapturedAt = &now
		b.GatewayFee, b.GatewayTax, b.PGFee = ev.GatewayFee, ev.GatewayTax, pgFee
		b.IntellaFee, b.ExpertEarning = f.PlatformFee, f.ExpertEarning
		b.FeePercent, b.MinFee = cfg.FeePercent, cfg.MinFee

		if _, err := tx.Ledger.Insert(ctx, domain.CaptureEntries(b, f, now)); err != nil {
			return fmt.Errorf("%w: ledger: %v", domain.ErrBookingUpdate, err)
		}
		if err := tx.Outbox.Add(ctx, domain.RKBookingPaymentCaptured, b.ID, domain.NewBookingEvent(b, now), now); err != nil {
			return err
		}
		if late {
			if _, err := enqueueRefund(ctx, tx, b, lateCaptureReason, domain.ActorSystem, now); err != nil {
				return err
			}
		}
		return s.mark(ctx, tx, ev, b)
	})
	if err != nil {
		return "", err
	}
	if late {
		return OutcomeLateCapture, nil
	}
	return OutcomeCaptured, nil
}

// replay re-asserts the capture rows from the stored fee snapshot so a
// delivery that died between writes still converges.
func (s *CaptureSvc) replay(ctx context.Context, ev PaymentEvent, b *domain.Booking) (CaptureOutcome, error) {
	at := s.now()
	if b.CapturedAt != nil {
		at = *b.CapturedAt
	}
	f := domain.FeeBreakdown{Gross: b.Amount, GatewayFee: b.PGFee, PlatformFee: b.IntellaFee, ExpertEarning: b.ExpertEarning}
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		if _, err := tx.Ledger.Insert(ctx, domain.CaptureEntries(b, f, at)); err != nil {
			return fmt.Errorf("%w: ledger: %v", domain.ErrBookingUpdate, err)
		}
		return s.mark(ctx, tx, ev, b)
	})
	return OutcomeReplayed, err
}

func (s *CaptureSvc) failed(ctx context.Context, ev PaymentEvent, b *domain.Booking) (CaptureOutcome, error) {
	t, _ := domain.Plan(domain.EventPaymentFailed)
	if t.Check(b) != nil {
		// the other outcome already won; nothing to undo
		return OutcomeStaleFailure, s.mark(ctx, s.store, ev, b)
	}
	pay := domain.PaymentFailed
	if userAbandoned(ev.ErrorReason) {
		pay = domain.PaymentAbandoned
	}
	now := s.now()
	u := t.Updates()
	u["payment_status"] = pay
	u["payment_failure_reason"] = ev.ErrorReason
	u["updated_at"] = now
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		if err := tx.Bookings.Transition(ctx, b.ID, t.Expected(), u); err != nil {
			if errors.Is(err, domain.ErrPreconditionFailed) {
				return err
			}
			return fmt.Errorf("%w: %v", domain.ErrBookingUpdate, err)
		}
		apply(b, t)
		b.PaymentStatus = pay
		msg := domain.NewBookingEvent(b, now)
		msg.Reason = "payment_" + string(pay)
		if err := tx.Outbox.Add(ctx, domain.RKBookingCancelled, b.ID, msg, now); err != nil {
			return err
		}
		return s.mark(ctx, tx, ev, b)
	})
	if err != nil {
		return "", err
	}
	return OutcomeFailed, nil
}

func (s *CaptureSvc) mark(ctx context.Context, st *repository.Store, ev PaymentEvent, b *domain.Booking) error {
	if ev.EventID == "" {
		return nil
	}
	return st.Events.Mark(ctx, ev.EventID, ev.Event, b.ID, s.now())
}

// userAbandoned reports whether the gateway says the payer backed out.
func userAbandoned(reason string) bool {
	r := strings.ToLower(reason)
	return strings.Contains(r, "cancel") || strings.Contains(r, "abandon")
}
