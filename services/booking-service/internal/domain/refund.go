package domain

import (
	"time"

	"gorm.io/datatypes"
)

type RefundTaskStatus string

const (
	TaskQueued     RefundTaskStatus = "queued"
	TaskProcessing RefundTaskStatus = "processing"
	TaskSucceeded  RefundTaskStatus = "succeeded"
	TaskSkipped    RefundTaskStatus = "skipped"
	TaskFailed     RefundTaskStatus = "failed"
)

// RefundTask is the durable record of a refund owed for one booking.
type RefundTask struct {
	ID            string           `gorm:"primaryKey;size:36"`
	BookingID     string           `gorm:"size:36;not null;uniqueIndex"`
	Reason        string           `gorm:"size:255;not null"`
	Initiator     Actor            `gorm:"size:20;not null"`
	Status        RefundTaskStatus `gorm:"size:20;index;not null"`
	Attempts      int              `gorm:"not null"`
	NextAttemptAt time.Time        `gorm:"index;not null"`
	LastError     string           `gorm:"size:1024"`
	Outcome       string           `gorm:"size:32"`
	Notes         datatypes.JSONMap
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

type RefundOutcome string

const (
	OutcomeRefunded        RefundOutcome = "refunded"
	OutcomeAlreadyRefunded RefundOutcome = "already_refunded"
	OutcomeNotCaptured     RefundOutcome = "not_captured"
	OutcomeNothingDue      RefundOutcome = "nothing_due"
)

// Backoff returns the delay before retry number attempt (1-based).
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
