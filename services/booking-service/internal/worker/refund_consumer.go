package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/you/intella-booking/pkg/mq"
	"github.com/you/intella-booking/services/booking-service/internal/domain"
	"github.com/you/intella-booking/services/booking-service/internal/service"
)

type bookingRefunder interface {
	ProcessBooking(ctx context.Context, bookingID string) (*service.RefundResult, error)
}

// RefundConsumer executes a refund as soon as booking.refund_requested is
// relayed instead of waiting for the next queue tick.
type RefundConsumer struct {
	refunds bookingRefunder
	logger  *slog.Logger
}

func NewRefundConsumer(refunds bookingRefunder, logger *slog.Logger) *RefundConsumer {
	return &RefundConsumer{refunds: refunds, logger: logger.With("module", "worker.refund_consumer")}
}

// Handle is an mq.Handler.
func (c *RefundConsumer) Handle(ctx context.Context, d amqp.Delivery) error {
	if d.RoutingKey != domain.RKRefundRequested {
		return nil
	}
	var ev domain.BookingEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		return fmt.Errorf("%w: decode %s: %v", mq.ErrPoison, d.RoutingKey, err)
	}
	if ev.BookingID == "" {
		return fmt.Errorf("%w: %s without booking_id", mq.ErrPoison, d.RoutingKey)
	}
	res, err := c.refunds.ProcessBooking(ctx, ev.BookingID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: booking %s", mq.ErrPoison, ev.BookingID)
	}
	if err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "refund processed", "operation", "refund", "outcome", string(res.Status),
		"booking_id", ev.BookingID, "attempts", res.Attempts)
	return nil
}
