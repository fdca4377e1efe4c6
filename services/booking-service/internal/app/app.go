// Package app wires the booking services shared by the API and worker binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/you/intella-booking/pkg/config"
	"github.com/you/intella-booking/pkg/db"
	"github.com/you/intella-booking/pkg/lock"
	"github.com/you/intella-booking/services/booking-service/internal/gateway"
	"github.com/you/intella-booking/services/booking-service/internal/meeting"
	"github.com/you/intella-booking/services/booking-service/internal/repository"
	"github.com/you/intella-booking/services/booking-service/internal/service"
)

type Services struct {
	Store       *repository.Store
	Omise       *gateway.Omise // nil unless Omise keys are configured
	Bookings    *service.BookingSvc
	Capture     *service.CaptureSvc
	Refunds     *service.RefundSvc
	Expiry      *service.ExpirySvc
	Withdrawals *service.WithdrawalSvc
	Fees        *service.FeeSvc

	closers []func() error
}

func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

// Build wires every service. On error nothing opened so far is left behind.
func Build(ctx context.Context, cfg config.App, logger *slog.Logger) (_ *Services, err error) {
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.TimeZone, err)
	}
	gdb, err := db.Open(ctx, cfg.DBDriver, cfg.DBDSN, cfg.DBMaxConns)
	if err != nil {
		return nil, err
	}
	store := repository.NewStore(gdb)
	s := &Services{Store: store}
	s.closers = append(s.closers, func() error { return db.Close(gdb) })
	defer func() {
		if err != nil {
			s.Close()
		}
	}()
	if err := store.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if cfg.OmisePub != "" && cfg.OmiseSec != "" {
		if s.Omise, err = gateway.NewOmise(cfg.OmisePub, cfg.OmiseSec, cfg.OmiseSourceType); err != nil {
			return nil, err
		}
	}
	var gw gateway.Gateway
	switch cfg.GatewayProvider {
	case "razorpay":
		if gw, err = gateway.NewRazorpay(cfg.RazorpayBaseURL, cfg.RazorpayKeyID, cfg.RazorpayKeySecret); err != nil {
			return nil, err
		}
	case "omise":
		if s.Omise == nil {
			return nil, fmt.Errorf("gateway omise requires OMISE_PUBLIC_KEY and OMISE_SECRET_KEY")
		}
		gw = s.Omise
	default:
		return nil, fmt.Errorf("unknown gateway provider %q", cfg.GatewayProvider)
	}

	meet, err := meeting.NewLinkScheduler(cfg.MeetingBaseURL)
	if err != nil {
		return nil, err
	}
	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.RedisURL != "" {
		rdb, err := lock.Connect(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, rdb.Close)
		locker = lock.NewRedisLocker(rdb, cfg.ServiceName+":")
	} else {
		logger.Warn("REDIS_URL not set, job locks are process-local", "module", "app")
	}

	s.Bookings = service.NewBookingSvc(service.BookingDeps{
		Store: store, Gateway: gw, Meetings: meet, IDs: node,
		Location: loc, Currency: cfg.Currency, Logger: logger,
	})
	s.Capture = service.NewCaptureSvc(store, logger, nil)
	s.Refunds = service.NewRefundSvc(store, gw, service.RefundPolicy{
		MaxAttempts: cfg.RefundMaxAttempts,
		BackoffBase: cfg.RefundBackoffBase,
		BackoffMax:  cfg.RefundBackoffMax,
	}, logger, nil)
	s.Expiry = service.NewExpirySvc(service.ExpiryDeps{
		Store: store, Refunds: s.Refunds, Locker: locker, LockTTL: cfg.ExpiryLockTTL,
		NoShowGrace: cfg.NoShowGrace, Batch: cfg.RefundBatch, Logger: logger,
	})
	s.Withdrawals = service.NewWithdrawalSvc(store, locker, cfg.NoShowGrace, logger, nil)
	s.Fees = service.NewFeeSvc(store, cfg.Currency, logger, nil)
	return s, nil
}
