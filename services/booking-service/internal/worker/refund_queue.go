package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/you/intella-booking/services/booking-service/internal/domain"
	"github.com/you/intella-booking/services/booking-service/internal/service"
)

type refundDrainer interface {
	ProcessRefunds(ctx context.Context, limit int) (*service.RefundBatchReport, error)
}

// RefundQueue drains due refund tasks, including retries after backoff.
type RefundQueue struct {
	refunds  refundDrainer
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

func NewRefundQueue(refunds refundDrainer, logger *slog.Logger, interval time.Duration, batch int) *RefundQueue {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batch <= 0 {
		batch = 20
	}
	return &RefundQueue{refunds: refunds, logger: logger.With("module", "worker.refunds"), interval: interval, batch: batch}
}

func (w *RefundQueue) Run(ctx context.Context) error {
	return every(ctx, w.logger, w.interval, "drain", w.tick)
}

func (w *RefundQueue) tick(ctx context.Context) error {
	rep, err := w.refunds.ProcessRefunds(ctx, w.batch)
	if errors.Is(err, domain.ErrBusy) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, r := range rep.Results {
		if r.Error != "" {
			w.logger.WarnContext(ctx, "refund attempt failed", "operation", "drain", "outcome", string(r.Status),
				"booking_id", r.BookingID, "attempts", r.Attempts, "error", r.Error)
		}
	}
	return nil
}
