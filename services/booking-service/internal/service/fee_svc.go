package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/you/intella-booking/services/booking-service/internal/domain"
	"github.com/you/intella-booking/services/booking-service/internal/repository"
)

type FeeSvc struct {
	store    *repository.Store
	currency string
	logger   *slog.Logger
	now      func() time.Time
}

func NewFeeSvc(store *repository.Store, currency string, logger *slog.Logger, now func() time.Time) *FeeSvc {
	logger, now = defaults(logger, now)
	return &FeeSvc{store: store, currency: currency, logger: logger.With("module", "fee"), now: now}
}

func (s *FeeSvc) Active(ctx context.Context) (*domain.FeeConfig, error) {
	return s.store.Fees.Active(ctx)
}

// Replace publishes a new fee version; earlier versions stay for audit.
func (s *FeeSvc) Replace(ctx context.Context, c Caller, percent, minFee decimal.Decimal, currency string) (*domain.FeeConfig, error) {
	if !c.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if percent.IsNegative() || percent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("%w: fee_percent must be within 0..100", domain.ErrInvalidInput)
	}
	if minFee.IsNegative() {
		return nil, fmt.Errorf("%w: min_fee must be >= 0", domain.ErrInvalidInput)
	}
	if currency = strings.ToUpper(strings.TrimSpace(currency)); currency == "" {
		currency = s.currency
	}
	cfg := &domain.FeeConfig{FeePercent: percent.Round(2), MinFee: minFee.Round(2), Currency: currency, CreatedBy: c.ID}
	if err := s.store.Fees.Replace(ctx, cfg, s.now()); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "fee config replaced", "operation", "replace", "outcome", "success",
		"fee_config_id", cfg.ID, "fee_percent", cfg.FeePercent.String(), "min_fee", cfg.MinFee.String())
	return cfg, nil
}

func (s *FeeSvc) History(ctx context.Context, limit int) ([]domain.FeeConfig, error) {
	return s.store.Fees.History(ctx, limit)
}
