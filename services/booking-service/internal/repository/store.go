package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/you/intella-booking/services/booking-service/internal/domain"
)

// Store bundles the repositories that share one connection or transaction.
type Store struct {
	db          *gorm.DB
	Bookings    *BookingRepo
	Ledger      *LedgerRepo
	Fees        *FeeRepo
	Withdrawals *WithdrawalRepo
	Refunds     *RefundTaskRepo
	Outbox      *OutboxRepo
	Events      *EventRepo
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:          db,
		Bookings:    NewBookingRepo(db),
		Ledger:      NewLedgerRepo(db),
		Fees:        NewFeeRepo(db),
		Withdrawals: NewWithdrawalRepo(db),
		Refunds:     NewRefundTaskRepo(db),
		Outbox:      NewOutboxRepo(db),
		Events:      NewEventRepo(db),
	}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&domain.Booking{},
		&domain.LedgerEntry{},
		&domain.FeeConfig{},
		&domain.WithdrawalRequest{},
		&domain.RefundTask{},
		&domain.OutboxEvent{},
		&domain.EventConsumed{},
	)
}

// InTx runs fn against repositories bound to a single transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}
