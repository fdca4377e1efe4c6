package repository

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/you/intella-booking/services/booking-service/internal/domain"
)

type WithdrawalRepo struct{ db *gorm.DB }

func NewWithdrawalRepo(db *gorm.DB) *WithdrawalRepo {
	return &WithdrawalRepo{db: db}
}

func (r *WithdrawalRepo) Create(ctx context.Context, w *domain.WithdrawalRequest) error {
	return r.db.WithContext(ctx).Create(w).Error
}

func (r *WithdrawalRepo) ByID(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	var w domain.WithdrawalRequest
	if err := r.db.WithContext(ctx).First(&w, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &w, nil
}

// Move applies updates while the request is still in status from.
func (r *WithdrawalRepo) Move(ctx context.Context, id string, from domain.WithdrawalStatus, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&domain.WithdrawalRequest{}).
		Where("id = ? AND status = ?", id, from).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := r.ByID(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: withdrawal %s is no longer %s", domain.ErrPreconditionFailed, id, from)
}

func (r *WithdrawalRepo) List(ctx context.Context, expertID string, status domain.WithdrawalStatus, limit int) ([]domain.WithdrawalRequest, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Model(&domain.WithdrawalRequest{})
	if expertID != "" {
		q = q.Where("expert_id = ?", expertID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []domain.WithdrawalRequest
	err := q.Order("requested_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// HeldTotal sums requests that still reserve (or already paid out) the expert's balance.
func (r *WithdrawalRepo) HeldTotal(ctx context.Context, expertID string) (decimal.Decimal, error) {
	var rows []domain.WithdrawalRequest
	err := r.db.WithContext(ctx).
		Where("expert_id = ? AND status IN ?", expertID, []domain.WithdrawalStatus{
			domain.WithdrawalRequested, domain.WithdrawalProcessing, domain.WithdrawalProcessed,
		}).Find(&rows).Error
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, w := range rows {
		total = total.Add(w.Amount)
	}
	return total, nil
}
