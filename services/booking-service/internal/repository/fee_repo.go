package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/you/intella-booking/services/booking-service/internal/domain"
)

type FeeRepo struct{ db *gorm.DB }

func NewFeeRepo(db *gorm.DB) *FeeRepo {
	return &FeeRepo{db: db}
}

func (r *FeeRepo) Active(ctx context.Context) (*domain.FeeConfig, error) {
	var c domain.FeeConfig
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id DESC").Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrFeeConfigMissing
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Replace deactivates the current version and inserts c as the active one.
func (r *FeeRepo) Replace(ctx context.Context, c *domain.FeeConfig, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.FeeConfig{}).Where("is_active = ?", true).
			Updates(map[string]any{"is_active": false, "deactivated_at": now}).Error; err != nil {
			return err
		}
		c.ID = 0
		c.IsActive = true
		c.CreatedAt = now
		return tx.Create(c).Error
	})
}

func (r *FeeRepo) History(ctx context.Context, limit int) ([]domain.FeeConfig, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []domain.FeeConfig
	err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}
