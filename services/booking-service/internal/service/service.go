package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/you/intella-booking/pkg/auth"
	"github.com/you/intella-booking/pkg/obs"
	"github.com/you/intella-booking/services/booking-service/internal/domain"
	"github.com/you/intella-booking/services/booking-service/internal/repository"
)

var tracer = otel.Tracer("github.com/you/intella-booking/services/booking-service/internal/service")

// Caller is the authenticated principal behind a request.
type Caller struct {
	ID    string
	Email string
	Role  string
}

func (c Caller) IsAdmin() bool { return c.Role == auth.RoleAdmin }

// System is used by schedulers and batch routes.
var System = Caller{ID: "system", Role: auth.RoleAdmin}

func defaults(logger *slog.Logger, now func() time.Time) (*slog.Logger, func() time.Time) {
	if logger == nil {
		logger = obs.Discard()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return logger, now
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// enqueueRefund queues the refund owed for b inside the caller's transaction.
// b must reflect the booking after its transition.
func enqueueRefund(ctx context.Context, tx *repository.Store, b *domain.Booking, reason string, initiator domain.Actor, now time.Time) (bool, error) {
	if !b.NeedsRefund() {
		return false, nil
	}
	created, err := tx.Refunds.Enqueue(ctx, &domain.RefundTask{
		ID:            uuid.NewString(),
		BookingID:     b.ID,
		Reason:        reason,
		Initiator:     initiator,
		Status:        domain.TaskQueued,
		NextAttemptAt: now,
		Notes:         datatypes.JSONMap{"order_code": b.OrderCode, "status": string(b.Status)},
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return false, fmt.Errorf("enqueue refund: %w", err)
	}
	if !created {
		return false, nil
	}
	if err := tx.Bookings.SetRefundState(ctx, b.ID,
		[]domain.RefundStatus{domain.RefundNone, domain.RefundPending, domain.RefundFailed},
		map[string]any{"refund_status": domain.RefundPending, "refund_reason": reason, "refund_initiator": initiator, "updated_at": now},
	); err != nil {
		return false, fmt.Errorf("mark refund pending: %w", err)
	}
	b.RefundStatus = domain.RefundPending
	ev := domain.NewBookingEvent(b, now)
	ev.Reason = reason
	if err := tx.Outbox.Add(ctx, domain.RKRefundRequested, b.ID, ev, now); err != nil {
		return false, err
	}
	return true, nil
}

func initiatorFor(c Caller, fallback domain.Actor) domain.Actor {
	if c.IsAdmin() && c.ID != System.ID {
		return domain.ActorAdmin
	}
	return fallback
}
