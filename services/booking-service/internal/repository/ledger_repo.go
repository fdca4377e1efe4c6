package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/you/intella-booking/services/booking-service/internal/domain"
)

type LedgerRepo struct{ db *gorm.DB }

func NewLedgerRepo(db *gorm.DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

// Insert writes rows that do not exist yet; duplicates of (booking_id,
// entry_type) are skipped. It returns how many rows were new.
func (r *LedgerRepo) Insert(ctx context.Context, rows []domain.LedgerEntry) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "booking_id"}, {Name: "entry_type"}},
			DoNothing: true,
		}).
		Create(&rows)
	return res.RowsAffected, res.Error
}

func (r *LedgerRepo) ByBooking(ctx context.Context, bookingID string) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).Order("id ASC").Find(&out).Error
	return out, err
}

// ExpertTotals returns captured earnings and reversed earnings for one expert.
func (r *LedgerRepo) ExpertTotals(ctx context.Context, expertID string) (earned, reversed decimal.Decimal, err error) {
	var rows []domain.LedgerEntry
	err = r.db.WithContext(ctx).
		Where("expert_id = ? AND entry_type IN ?", expertID,
			[]domain.EntryType{domain.EntryExpertEarning, domain.EntryRefundExpert}).
		Find(&rows).Error
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	earned, reversed = decimal.Zero, decimal.Zero
	for _, e := range rows {
		if e.EntryType == domain.EntryExpertEarning {
			earned = earned.Add(e.Amount)
		} else {
			reversed = reversed.Add(e.Amount)
		}
	}
	return earned, reversed, nil
}

// ClearedEarnings sums expert earnings from sessions that are over: confirmed
// bookings that ended before cutoff and are not waiting on a no-show refund.
func (r *LedgerRepo) ClearedEarnings(ctx context.Context, expertID string, cutoff time.Time) (decimal.Decimal, error) {
	var rows []domain.LedgerEntry
	err := r.db.WithContext(ctx).
		Joins("JOIN bookings ON bookings.id = ledger_entries.booking_id").
		Where("ledger_entries.expert_id = ? AND ledger_entries.entry_type = ?", expertID, domain.EntryExpertEarning).
		Where("bookings.status = ? AND bookings.ends_at <= ?", domain.StatusConfirmed, cutoff).
		Where("NOT (bookings.user_joined_at IS NOT NULL AND bookings.host_joined_at IS NULL)").
		Find(&rows).Error
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, e := range rows {
		sum = sum.Add(e.Amount)
	}
	return sum, nil
}
