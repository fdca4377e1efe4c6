package delivery

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// EmailDelivery is one attempt to notify one message's recipients.
type EmailDelivery struct {
	ID         uint   `gorm:"primaryKey"`
	MessageID  string `gorm:"size:64;index"`
	RoutingKey string `gorm:"size:64;index"`
	BookingID  string `gorm:"size:36;index"`
	Recipients string `gorm:"size:512"`
	Subject    string `gorm:"size:255"`
	Status     string `gorm:"size:16;not null"`
	Error      string `gorm:"size:1024"`
	CreatedAt  time.Time
}

type Log struct{ db *gorm.DB }

func NewLog(db *gorm.DB) *Log {
	return &Log{db: db}
}

func (l *Log) Migrate() error {
	return l.db.AutoMigrate(&EmailDelivery{})
}

// Sent reports whether a message already reached these recipients.
func (l *Log) Sent(ctx context.Context, messageID, recipients string) (bool, error) {
	if messageID == "" {
		return false, nil
	}
	var n int64
	err := l.db.WithContext(ctx).Model(&EmailDelivery{}).
		Where("message_id = ? AND recipients = ? AND status = ?", messageID, recipients, StatusSent).Count(&n).Error
	return n > 0, err
}

func (l *Log) Record(ctx context.Context, d *EmailDelivery) error {
	if len(d.Error) > 1024 {
		d.Error = d.Error[:1024]
	}
	return l.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(d).Error
}

func (l *Log) ByMessage(ctx context.Context, messageID string) ([]EmailDelivery, error) {
	var out []EmailDelivery
	err := l.db.WithContext(ctx).Where("message_id = ?", messageID).Order("id ASC").Find(&out).Error
	return out, err
}
