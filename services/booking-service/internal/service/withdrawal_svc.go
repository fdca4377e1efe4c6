package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/you/intella-booking/pkg/auth"
	"github.com/you/intella-booking/pkg/lock"
	"github.com/you/intella-booking/services/booking-service/internal/domain"
	"github.com/you/intella-booking/services/booking-service/internal/repository"
)

type WithdrawalSvc struct {
	store  *repository.Store
	locker lock.Locker
	hold   time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewWithdrawalSvc builds the payout service. hold is how long after a
// session ends its earning stays unavailable; it matches the no-show grace.
func NewWithdrawalSvc(store *repository.Store, locker lock.Locker, hold time.Duration, logger *slog.Logger, now func() time.Time) *WithdrawalSvc {
	logger, now = defaults(logger, now)
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &WithdrawalSvc{store: store, locker: locker, hold: hold, logger: logger.With("module", "withdrawal"), now: now}
}

// Earnings derives the expert's balance from the ledger and open withdrawals.
// Only earnings from sessions that are over can be withdrawn.
func (s *WithdrawalSvc) Earnings(ctx context.Context, c Caller, expertID string) (*domain.Earnings, error) {
	if !c.IsAdmin() || expertID == "" {
		expertID = c.ID
	}
	if expertID == "" {
		return nil, domain.ErrUnauthorized
	}
	return s.earnings(ctx, s.store, expertID)
}

func (s *WithdrawalSvc) earnings(ctx context.Context, st *repository.Store, expertID string) (*domain.Earnings, error) {
	earned, reversed, err := st.Ledger.ExpertTotals(ctx, expertID)
	if err != nil {
		return nil, err
	}
	cleared, err := st.Ledger.ClearedEarnings(ctx, expertID, s.now().Add(-s.hold))
	if err != nil {
		return nil, err
	}
	held, err := st.Withdrawals.HeldTotal(ctx, expertID)
	if err != nil {
		return nil, err
	}
	return &domain.Earnings{
		ExpertID:  expertID,
		Earned:    earned,
		Reversed:  reversed,
		Pending:   earned.Sub(reversed).Sub(cleared),
		Withdrawn: held,
		Available: cleared.Sub(held),
	}, nil
}

type WithdrawalInput struct {
	Amount        decimal.Decimal
	PayoutAccount string
}

func (s *WithdrawalSvc) Request(ctx context.Context, c Caller, in WithdrawalInput) (*domain.WithdrawalRequest, error) {
	if c.Role != auth.RoleHost {
		return nil, domain.ErrForbidden
	}
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be > 0", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(in.PayoutAccount) == "" {
		return nil, fmt.Errorf("%w: payout_account is required", domain.ErrInvalidInput)
	}
	release, ok, err := s.locker.TryLock(ctx, "withdrawal:"+c.ID, 30*time.Second)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrBusy
	}
	defer release()

	now := s.now()
	w := &domain.WithdrawalRequest{
		ID:            uuid.NewString(),
		ExpertID:      c.ID,
		Amount:        in.Amount.Round(2),
		PayoutAccount: strings.TrimSpace(in.PayoutAccount),
		Status:        domain.WithdrawalRequested,
		RequestedAt:   now,
		UpdatedAt:     now,
	}
	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		bal, err := s.earnings(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		if w.Amount.GreaterThan(bal.Available) {
			return fmt.Errorf("%w: available %s", domain.ErrInsufficientBalance, bal.Available.StringFixed(2))
		}
		if err := tx.Withdrawals.Create(ctx, w); err != nil {
			return err
		}
		return tx.Outbox.Add(ctx, domain.RKWithdrawalRequested, w.ExpertID, withdrawalEvent(w, now), now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "withdrawal requested", "operation", "request", "outcome", "success", "withdrawal_id", w.ID, "expert_id", w.ExpertID)
	return w, nil
}

func (s *WithdrawalSvc) List(ctx context.Context, c Caller, expertID string, status domain.WithdrawalStatus, limit int) ([]domain.WithdrawalRequest, error) {
	if !c.IsAdmin() {
		expertID = c.ID
	}
	return s.store.Withdrawals.List(ctx, expertID, status, limit)
}

func (s *WithdrawalSvc) Process(ctx context.Context, id, note string) (*domain.WithdrawalRequest, error) {
	now := s.now()
	return s.move(ctx, id, domain.WithdrawalProcessing, map[string]any{"processing_at": now, "admin_note": note})
}

// Complete records the payout; method and reference are mandatory.
func (s *WithdrawalSvc) Complete(ctx context.Context, id, method, reference, note string) (*domain.WithdrawalRequest, error) {
	if strings.TrimSpace(method) == "" || strings.TrimSpace(reference) == "" {
		return nil, fmt.Errorf("%w: payout_method and reference are required", domain.ErrInvalidInput)
	}
	now := s.now()
	return s.move(ctx, id, domain.WithdrawalProcessed, map[string]any{
		"processed_at": now, "payout_method": method, "admin_reference": reference, "admin_note": note,
	})
}

func (s *WithdrawalSvc) Reject(ctx context.Context, id, note string) (*domain.WithdrawalRequest, error) {
	now := s.now()
	return s.move(ctx, id, domain.WithdrawalRejected, map[string]any{"rejected_at": now, "admin_note": note})
}

func (s *WithdrawalSvc) Fail(ctx context.Context, id, note string) (*domain.WithdrawalRequest, error) {
	now := s.now()
	return s.move(ctx, id, domain.WithdrawalFailed, map[string]any{"failed_at": now, "admin_note": note})
}

func (s *WithdrawalSvc) move(ctx context.Context, id string, to domain.WithdrawalStatus, updates map[string]any) (*domain.WithdrawalRequest, error) {
	w, err := s.store.Withdrawals.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanMoveWithdrawal(w.Status, to) {
		return nil, fmt.Errorf("%w: withdrawal %s cannot move from %s to %s", domain.ErrInvalidTransition, id, w.Status, to)
	}
	now := s.now()
	updates["status"] = to
	updates["updated_at"] = now
	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		if err := tx.Withdrawals.Move(ctx, id, w.Status, updates); err != nil {
			return err
		}
		w.Status = to
		if ref, ok := updates["admin_reference"].(string); ok {
			w.AdminReference = ref
		}
		return tx.Outbox.Add(ctx, domain.RKWithdrawalUpdated, w.ExpertID, withdrawalEvent(w, now), now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "withdrawal moved", "operation", "move", "outcome", "success", "withdrawal_id", id, "status", to)
	return s.store.Withdrawals.ByID(ctx, id)
}

func withdrawalEvent(w *domain.WithdrawalRequest, at time.Time) domain.WithdrawalEvent {
	return domain.WithdrawalEvent{
		WithdrawalID: w.ID,
		ExpertID:     w.ExpertID,
		Amount:       w.Amount.StringFixed(2),
		Status:       w.Status,
		Reference:    w.AdminReference,
		OccurredAt:   at,
	}
}
