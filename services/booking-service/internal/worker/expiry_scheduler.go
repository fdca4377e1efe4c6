package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/you/intella-booking/services/booking-service/internal/domain"
	"github.com/you/intella-booking/services/booking-service/internal/service"
)

type expiryRunner interface {
	RunJobs(ctx context.Context) (*service.ExpiryReport, error)
}

// ExpiryScheduler replaces the external cron hitting run-expiry-jobs.
type ExpiryScheduler struct {
	jobs     expiryRunner
	logger   *slog.Logger
	interval time.Duration
}

func NewExpiryScheduler(jobs expiryRunner, logger *slog.Logger, interval time.Duration) *ExpiryScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpiryScheduler{jobs: jobs, logger: logger.With("module", "worker.expiry"), interval: interval}
}

func (w *ExpiryScheduler) Run(ctx context.Context) error {
	return every(ctx, w.logger, w.interval, "expiry", w.tick)
}

func (w *ExpiryScheduler) tick(ctx context.Context) error {
	rep, err := w.jobs.RunJobs(ctx)
	if errors.Is(err, domain.ErrBusy) {
		w.logger.DebugContext(ctx, "expiry run held by another replica", "operation", "expiry", "outcome", "skipped")
		return nil
	}
	if err != nil {
		return err
	}
	if rep.Expired > 0 || rep.NoShows > 0 {
		w.logger.InfoContext(ctx, "expiry run finished", "operation", "expiry", "outcome", "success",
			"run_id", rep.RunID, "expired", rep.Expired, "no_shows", rep.NoShows, "refunds_queued", rep.RefundsQueued)
	}
	return nil
}
