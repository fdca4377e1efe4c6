package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/you/intella-booking/pkg/lock"
	"github.com/you/intella-booking/services/booking-service/internal/domain"
	"github.com/you/intella-booking/services/booking-service/internal/repository"
)

const (
	expiryLockKey  = "booking:expiry-jobs"
	refundsLockKey = "booking:expiry-refunds"
)

type ExpiryDeps struct {
	Store       *repository.Store
	Refunds     *RefundSvc
	Locker      lock.Locker
	LockTTL     time.Duration
	NoShowGrace time.Duration
	Batch       int
	Logger      *slog.Logger
	Now         func() time.Time
}

type ExpirySvc struct {
	store   *repository.Store
	refunds *RefundSvc
	locker  lock.Locker
	ttl     time.Duration
	grace   time.Duration
	batch   int
	logger  *slog.Logger
	now     func() time.Time
}

func NewExpirySvc(d ExpiryDeps) *ExpirySvc {
	logger, now := defaults(d.Logger, d.Now)
	s := &ExpirySvc{
		store: d.Store, refunds: d.Refunds, locker: d.Locker,
		ttl: d.LockTTL, grace: d.NoShowGrace, batch: d.Batch,
		logger: logger.With("module", "expiry"), now: now,
	}
	if s.locker == nil {
		s.locker = lock.NewLocalLocker()
	}
	if s.ttl <= 0 {
		s.ttl = 50 * time.Second
	}
	if s.batch <= 0 {
		s.batch = 100
	}
	return s
}

type ExpiryReport struct {
	RunID         string `json:"run_id"`
	Expired       int64  `json:"expired"`
	NoShows       int    `json:"no_shows"`
	RefundsQueued int    `json:"refunds_queued"`
}

// RunJobs expires overdue requests and settles expert no-shows. Only one
// run may be active across replicas.
func (s *ExpirySvc) RunJobs(ctx context.Context) (*ExpiryReport, error) {
	release, ok, err := s.locker.TryLock(ctx, expiryLockKey, s.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrBusy
	}
	defer release()

	rep, err := s.Enforce(ctx)
	if err != nil {
		return nil, err
	}
	n, queued, err := s.SettleNoShows(ctx)
	if err != nil {
		return rep, err
	}
	rep.NoShows = n
	rep.RefundsQueued += queued
	return rep, nil
}

// Enforce rejects every pending booking whose start has passed with one
// guarded bulk update, then queues refunds for the rows that run touched.
func (s *ExpirySvc) Enforce(ctx context.Context) (rep *ExpiryReport, err error) {
	ctx, span := tracer.Start(ctx, "expiry.enforce")
	defer func() { endSpan(span, err) }()

	now := s.now()
	rep = &ExpiryReport{RunID: uuid.NewString()}
	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		n, err := tx.Bookings.ExpireDue(ctx, now, rep.RunID)
		if err != nil {
			return err
		}
		rep.Expired = n
		if n == 0 {
			return nil
		}
		rows, err := tx.Bookings.ByExpiryRun(ctx, rep.RunID)
		if err != nil {
			return err
		}
		for i := range rows {
			b := &rows[i]
			msg := domain.NewBookingEvent(b, now)
			msg.Reason = "expired"
			if err := tx.Outbox.Add(ctx, domain.RKBookingRejected, b.ID, msg, now); err != nil {
				return err
			}
			queued, err := enqueueRefund(ctx, tx, b, "expired", domain.ActorSystem, now)
			if err != nil {
				return err
			}
			if queued {
				rep.RefundsQueued++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("expiry.expired", rep.Expired))
	s.logger.InfoContext(ctx, "expiry run", "operation", "enforce", "outcome", "success",
		"run_id", rep.RunID, "expired", rep.Expired, "refunds_queued", rep.RefundsQueued)
	return rep, nil
}

// SettleNoShows cancels confirmed sessions the user attended and the expert
// skipped, and queues a refund for each.
func (s *ExpirySvc) SettleNoShows(ctx context.Context) (settled, queued int, err error) {
	now := s.now()
	rows, err := s.store.Bookings.NoShowCandidates(ctx, now.Add(-s.grace), s.batch)
	if err != nil {
		return 0, 0, err
	}
	t, _ := domain.Plan(domain.EventExpertNoShow)
	for i := range rows {
		b := &rows[i]
		err := s.store.InTx(ctx, func(tx *repository.Store) error {
			u := t.Updates()
			u["no_show"] = "expert"
			u["updated_at"] = now
			if err := tx.Bookings.Transition(ctx, b.ID, t.Expected(), u); err != nil {
				return err
			}
			apply(b, t)
			b.NoShow = "expert"
			msg := domain.NewBookingEvent(b, now)
			msg.Reason = "expert_no_show"
			if err := tx.Outbox.Add(ctx, domain.RKBookingCancelled, b.ID, msg, now); err != nil {
				return err
			}
			ok, err := enqueueRefund(ctx, tx, b, "expert_no_show", domain.ActorSystem, now)
			if ok {
				queued++
			}
			return err
		})
		if errors.Is(err, domain.ErrPreconditionFailed) {
			continue
		}
		if err != nil {
			return settled, queued, fmt.Errorf("settle no-show %s: %w", b.ID, err)
		}
		settled++
		s.logger.InfoContext(ctx, "expert no-show settled", "operation", "no_show", "outcome", "success", "booking_id", b.ID)
	}
	return settled, queued, nil
}

type RefundBatchReport struct {
	Backfilled int            `json:"backfilled"`
	Results    []RefundResult `json:"results"`
}

// ProcessRefunds backfills tasks for system-rejected bookings that lack
// one, then drains due refund tasks.
func (s *ExpirySvc) ProcessRefunds(ctx context.Context, limit int) (*RefundBatchReport, error) {
	release, ok, err := s.locker.TryLock(ctx, refundsLockKey, s.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrBusy
	}
	defer release()

	if limit <= 0 {
		limit = s.batch
	}
	rep := &RefundBatchReport{}
	orphans, err := s.store.Bookings.RefundsWithoutTask(ctx, limit)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range orphans {
		b := &orphans[i]
		err := s.store.InTx(ctx, func(tx *repository.Store) error {
			ok, err := enqueueRefund(ctx, tx, b, "expired", domain.ActorSystem, now)
			if ok {
				rep.Backfilled++
			}
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	rep.Results, err = s.refunds.ProcessDue(ctx, limit)
	if err != nil {
		return rep, err
	}
	return rep, nil
}
