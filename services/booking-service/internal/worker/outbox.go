package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/you/intella-booking/services/booking-service/internal/events"
	"github.com/you/intella-booking/services/booking-service/internal/repository"
)

// OutboxRelay publishes committed outbox rows. Rows stay unpublished until
// the publisher accepts them, so delivery is at least once.
type OutboxRelay struct {
	store     *repository.Store
	publisher events.Publisher
	logger    *slog.Logger
	interval  time.Duration
	batch     int
	now       func() time.Time
}

func NewOutboxRelay(store *repository.Store, pub events.Publisher, logger *slog.Logger, interval time.Duration, batch int) *OutboxRelay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &OutboxRelay{
		store: store, publisher: pub, logger: logger.With("module", "worker.outbox"),
		interval: interval, batch: batch, now: func() time.Time { return time.Now().UTC() },
	}
}

func (w *OutboxRelay) Run(ctx context.Context) error {
	return every(ctx, w.logger, w.interval, "relay", func(ctx context.Context) error {
		_, err := w.RelayOnce(ctx)
		return err
	})
}

// RelayOnce returns the number of rows published.
func (w *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	var published int
	err := w.store.InTx(ctx, func(tx *repository.Store) error {
		rows, err := tx.Outbox.FetchUnpublished(ctx, w.batch)
		if err != nil {
			return err
		}
		for _, r := range rows {
			msg := events.Message{ID: r.ID, Type: r.EventType, Key: r.PartitionKey, Payload: r.Payload}
			if err := w.publisher.Publish(ctx, msg); err != nil {
				w.logger.WarnContext(ctx, "publish failed", "operation", "relay", "outcome", "retry",
					"event_type", r.EventType, "outbox_id", r.ID, "error", err)
				if err := tx.Outbox.MarkFailed(ctx, r.ID, err.Error()); err != nil {
					return err
				}
				continue
			}
			if err := tx.Outbox.MarkPublished(ctx, r.ID, w.now()); err != nil {
				return err
			}
			published++
		}
		return nil
	})
	return published, err
}
