package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/you/intella-booking/services/booking-service/internal/domain"
)

type OutboxRepo struct{ db *gorm.DB }

func NewOutboxRepo(db *gorm.DB) *OutboxRepo {
	return &OutboxRepo{db: db}
}

// Add records an event to be relayed after the surrounding transaction commits.
func (r *OutboxRepo) Add(ctx context.Context, eventType, partitionKey string, payload any, now time.Time) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return r.db.WithContext(ctx).Create(&domain.OutboxEvent{
		ID:           uuid.NewString(),
		EventType:    eventType,
		PartitionKey: partitionKey,
		Payload:      datatypes.JSON(raw),
		CreatedAt:    now,
	}).Error
}

func (r *OutboxRepo) FetchUnpublished(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	var out []domain.OutboxEvent
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("published_at IS NULL").
		Order("created_at ASC").Limit(limit).Find(&out).Error
	return out, err
}

func (r *OutboxRepo) MarkPublished(ctx context.Context, id string, now time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.OutboxEvent{}).Where("id = ?", id).
		Update("published_at", now).Error
}

func (r *OutboxRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	return r.db.WithContext(ctx).Model(&domain.OutboxEvent{}).Where("id = ?", id).
		Updates(map[string]any{"retry_count": gorm.Expr("retry_count + 1"), "last_error": truncate(errMsg, 1024)}).Error
}

func (r *OutboxRepo) ByType(ctx context.Context, eventType string) ([]domain.OutboxEvent, error) {
	var out []domain.OutboxEvent
	err := r.db.WithContext(ctx).Where("event_type = ?", eventType).Order("created_at ASC").Find(&out).Error
	return out, err
}

type EventRepo struct{ db *gorm.DB }

func NewEventRepo(db *gorm.DB) *EventRepo {
	return &EventRepo{db: db}
}

func (r *EventRepo) Seen(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.EventConsumed{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

func (r *EventRepo) Mark(ctx context.Context, id, key, bookingID string, now time.Time) error {
	if id == "" {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&domain.EventConsumed{ID: id, EventKey: key, BookingID: bookingID, ProcessedAt: now}).Error
}
