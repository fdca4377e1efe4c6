package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/you/intella-booking/services/booking-service/internal/domain"
)

type RefundTaskRepo struct{ db *gorm.DB }

func NewRefundTaskRepo(db *gorm.DB) *RefundTaskRepo {
	return &RefundTaskRepo{db: db}
}

// Enqueue inserts the task unless the booking already has one.
func (r *RefundTaskRepo) Enqueue(ctx context.Context, t *domain.RefundTask) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "booking_id"}}, DoNothing: true}).
		Create(t)
	return res.RowsAffected == 1, res.Error
}

func (r *RefundTaskRepo) ByBooking(ctx context.Context, bookingID string) (*domain.RefundTask, error) {
	var t domain.RefundTask
	if err := r.db.WithContext(ctx).First(&t, "booking_id = ?", bookingID).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *RefundTaskRepo) Due(ctx context.Context, now time.Time, limit int) ([]domain.RefundTask, error) {
	var out []domain.RefundTask
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", domain.TaskQueued, now).
		Order("next_attempt_at ASC").Limit(limit).Find(&out).Error
	return out, err
}

// Claim moves a due task to processing; false means another worker won.
func (r *RefundTaskRepo) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.RefundTask{}).
		Where("id = ? AND status = ? AND next_attempt_at <= ?", id, domain.TaskQueued, now).
		Updates(map[string]any{
			"status":     domain.TaskProcessing,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": now,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *RefundTaskRepo) Complete(ctx context.Context, id string, status domain.RefundTaskStatus, outcome domain.RefundOutcome, now time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.RefundTask{}).
		Where("id = ? AND status = ?", id, domain.TaskProcessing).
		Updates(map[string]any{
			"status":       status,
			"outcome":      string(outcome),
			"last_error":   "",
			"completed_at": now,
			"updated_at":   now,
		}).Error
}

func (r *RefundTaskRepo) Reschedule(ctx context.Context, id string, next time.Time, lastErr string, now time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.RefundTask{}).
		Where("id = ? AND status = ?", id, domain.TaskProcessing).
		Updates(map[string]any{
			"status":          domain.TaskQueued,
			"next_attempt_at": next,
			"last_error":      truncate(lastErr, 1024),
			"updated_at":      now,
		}).Error
}

func (r *RefundTaskRepo) Fail(ctx context.Context, id string, lastErr string, now time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.RefundTask{}).
		Where("id = ? AND status = ?", id, domain.TaskProcessing).
		Updates(map[string]any{
			"status":       domain.TaskFailed,
			"last_error":   truncate(lastErr, 1024),
			"completed_at": now,
			"updated_at":   now,
		}).Error
}

// Retry requeues a failed task with a fresh attempt budget.
func (r *RefundTaskRepo) Retry(ctx context.Context, bookingID string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.RefundTask{}).
		Where("booking_id = ? AND status = ?", bookingID, domain.TaskFailed).
		Updates(map[string]any{
			"status":          domain.TaskQueued,
			"attempts":        0,
			"next_attempt_at": now,
			"completed_at":    nil,
			"updated_at":      now,
		})
	return res.RowsAffected == 1, res.Error
}

// ReleaseStale returns tasks stuck in processing (crashed worker) to the queue.
func (r *RefundTaskRepo) ReleaseStale(ctx context.Context, olderThan, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.RefundTask{}).
		Where("status = ? AND updated_at < ?", domain.TaskProcessing, olderThan).
		Updates(map[string]any{"status": domain.TaskQueued, "next_attempt_at": now, "updated_at": now})
	return res.RowsAffected, res.Error
}

func (r *RefundTaskRepo) List(ctx context.Context, status domain.RefundTaskStatus, limit int) ([]domain.RefundTask, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Model(&domain.RefundTask{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []domain.RefundTask
	err := q.Order("updated_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
