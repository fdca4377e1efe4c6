package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/you/intella-booking/services/booking-service/internal/domain"
)

type BookingRepo struct{ db *gorm.DB }

func NewBookingRepo(db *gorm.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

func (r *BookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *BookingRepo) ByID(ctx context.Context, id string) (*domain.Booking, error) {
	var b domain.Booking
	if err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

// Transition applies updates only while the row still holds the expected
// state. Zero affected rows on an existing booking is ErrPreconditionFailed.
func (r *BookingRepo) Transition(ctx context.Context, id string, exp domain.Expected, updates map[string]any) error {
	q := r.db.WithContext(ctx).Model(&domain.Booking{}).
		Where("id = ? AND status = ?", id, exp.Status)
	if exp.Payment != "" {
		q = q.Where("payment_status = ?", exp.Payment)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	return r.missOrStale(ctx, id, fmt.Sprintf("expected status=%s payment=%s", exp.Status, exp.Payment))
}

// SetRefundState moves refund_status guarded by its current value.
func (r *BookingRepo) SetRefundState(ctx context.Context, id string, from []domain.RefundStatus, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&domain.Booking{}).
		Where("id = ? AND refund_status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	return r.missOrStale(ctx, id, fmt.Sprintf("expected refund_status in %v", from))
}

func (r *BookingRepo) missOrStale(ctx context.Context, id, detail string) error {
	var n int64
	if err := r.db.WithContext(ctx).Model(&domain.Booking{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: booking %s %s", domain.ErrPreconditionFailed, id, detail)
}

// MarkFreeConfirmed stamps the first free-booking confirmation. It reports
// false when the booking was already confirmed or is not an eligible free booking.
func (r *BookingRepo) MarkFreeConfirmed(ctx context.Context, id string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Booking{}).
		Where("id = ? AND status = ? AND payment_status = ? AND amount = 0 AND free_confirmed_at IS NULL",
			id, domain.StatusPendingConfirmation, domain.PaymentConfirmed).
		Updates(map[string]any{"free_confirmed_at": now, "updated_at": now})
	return res.RowsAffected == 1, res.Error
}

// RecordJoin sets user_joined_at or host_joined_at once on a confirmed booking.
func (r *BookingRepo) RecordJoin(ctx context.Context, id string, host bool, now time.Time) (bool, error) {
	col := "user_joined_at"
	if host {
		col = "host_joined_at"
	}
	res := r.db.WithContext(ctx).Model(&domain.Booking{}).
		Where("id = ? AND status = ? AND "+col+" IS NULL", id, domain.StatusConfirmed).
		Updates(map[string]any{col: now, "updated_at": now})
	return res.RowsAffected == 1, res.Error
}

// ExpireDue rejects every pending booking whose start has passed in one
// set-based statement and tags the rows with runID.
func (r *BookingRepo) ExpireDue(ctx context.Context, now time.Time, runID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Booking{}).
		Where("status = ? AND starts_at <= ?", domain.StatusPendingConfirmation, now).
		Updates(map[string]any{
			"status":        domain.StatusRejected,
			"rejected_by":   domain.ActorSystem,
			"expiry_run_id": runID,
			"expired_at":    now,
			"updated_at":    now,
		})
	return res.RowsAffected, res.Error
}

func (r *BookingRepo) ByExpiryRun(ctx context.Context, runID string) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.db.WithContext(ctx).Where("expiry_run_id = ?", runID).Order("starts_at ASC").Find(&out).Error
	return out, err
}

// NoShowCandidates are confirmed sessions that ended before cutoff where
// the user joined and the expert never did.
func (r *BookingRepo) NoShowCandidates(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND ends_at <= ? AND user_joined_at IS NOT NULL AND host_joined_at IS NULL",
			domain.StatusConfirmed, cutoff).
		Order("ends_at ASC").Limit(limit).Find(&out).Error
	return out, err
}

// RefundsWithoutTask finds system-rejected captured bookings that never got a refund task.
func (r *BookingRepo) RefundsWithoutTask(ctx context.Context, limit int) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND rejected_by = ? AND payment_status = ? AND amount > 0 AND refund_status <> ?",
			domain.StatusRejected, domain.ActorSystem, domain.PaymentConfirmed, domain.RefundSucceeded).
		Where("NOT EXISTS (SELECT 1 FROM refund_tasks t WHERE t.booking_id = bookings.id)").
		Order("starts_at ASC").Limit(limit).Find(&out).Error
	return out, err
}

type ListFilter struct {
	UserID   string
	ExpertID string
	Status   domain.Status
	Page     int
	Size     int
}

func (r *BookingRepo) List(ctx context.Context, f ListFilter) ([]domain.Booking, int64, error) {
	if f.Size <= 0 || f.Size > 100 {
		f.Size = 20
	}
	if f.Page < 0 {
		f.Page = 0
	}
	qb := r.db.WithContext(ctx).Model(&domain.Booking{})
	if f.UserID != "" {
		qb = qb.Where("user_id = ?", f.UserID)
	}
	if f.ExpertID != "" {
		qb = qb.Where("expert_id = ?", f.ExpertID)
	}
	if f.Status != "" {
		qb = qb.Where("status = ?", f.Status)
	}
	var total int64
	if err := qb.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []domain.Booking
	if err := qb.Order("starts_at DESC").Limit(f.Size).Offset(f.Page * f.Size).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
