package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPendingConfirmation Status = "pending_confirmation"
	StatusConfirmed           Status = "confirmed"
	StatusRejected            Status = "rejected"
	StatusCancelled           Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCancelled
}

type PaymentStatus string

const (
	PaymentUnpaid    PaymentStatus = "unpaid"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentAbandoned PaymentStatus = "abandoned"
)

type RefundStatus string

const (
	RefundNone      RefundStatus = ""
	RefundPending   RefundStatus = "pending"
	RefundSucceeded RefundStatus = "succeeded"
	RefundFailed    RefundStatus = "failed"
)

// Actor records who drove a negative terminal transition.
type Actor string

const (
	ActorUser   Actor = "user"
	ActorHost   Actor = "host"
	ActorSystem Actor = "system"
	ActorAdmin  Actor = "admin"
)

var AllowedDurations = map[int]struct{}{15: {}, 30: {}, 45: {}, 60: {}}

type Booking struct {
	ID             string `gorm:"primaryKey;size:36"`
	OrderCode      string `gorm:"size:40;uniqueIndex"`
	GatewayOrderID string `gorm:"size:64;index"`

	UserID      string `gorm:"size:64;index;not null"`
	UserEmail   string `gorm:"size:255"`
	ExpertID    string `gorm:"size:64;index;not null"`
	ExpertEmail string `gorm:"size:255"`
	Topic       string `gorm:"size:255"`

	BookingDate     string    `gorm:"size:10;not null"` // YYYY-MM-DD in business timezone
	StartTime       string    `gorm:"size:5;not null"`  // HH:MM
	DurationMinutes int       `gorm:"not null"`
	StartsAt        time.Time `gorm:"index;not null"`
	EndsAt          time.Time `gorm:"not null"`

	Amount               decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Currency             string          `gorm:"size:3;not null"`
	PaymentStatus        PaymentStatus   `gorm:"size:20;index;not null"`
	PaymentID            string          `gorm:"size:64;index"`
	PaymentFailureReason string          `gorm:"size:255"`
	CapturedAt           *time.Time
	GatewayFee           decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	GatewayTax           decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	PGFee                decimal.Decimal `gorm:"column:pg_fee;type:numeric(12,2);not null"`
	IntellaFee           decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	ExpertEarning        decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	FeePercent           decimal.Decimal `gorm:"type:numeric(5,2);not null"`
	MinFee               decimal.Decimal `gorm:"type:numeric(12,2);not null"`

	RefundStatus    RefundStatus    `gorm:"size:20;index"`
	RefundID        string          `gorm:"size:64"`
	RefundAmount    decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	RefundReason    string          `gorm:"size:255"`
	RefundInitiator Actor           `gorm:"size:20"`
	RefundedAt      *time.Time

	Status          Status `gorm:"size:32;index;not null"`
	HostAccepted    bool   `gorm:"not null"`
	MeetingLink     string `gorm:"size:512"`
	RejectedBy      Actor  `gorm:"size:20"`
	CancelledBy     Actor  `gorm:"size:20"`
	FreeConfirmedAt *time.Time
	ExpiryRunID     string `gorm:"size:36;index"`
	ExpiredAt       *time.Time
	UserJoinedAt    *time.Time
	HostJoinedAt    *time.Time
	NoShow          string `gorm:"size:20"` // expert|user

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Captured reports whether the gateway confirmed funds for this booking.
func (b *Booking) Captured() bool {
	return b.PaymentID != "" && b.CapturedAt != nil
}

// RefundAmountDue is what the payer gets back: the gateway fee is not recoverable.
func (b *Booking) RefundAmountDue() decimal.Decimal {
	return b.Amount.Sub(b.GatewayFee.Add(b.GatewayTax))
}

// NeedsRefund reports whether a negative transition must be followed by a refund.
func (b *Booking) NeedsRefund() bool {
	return b.Amount.IsPositive() && b.Captured() && b.RefundStatus != RefundSucceeded
}

func (b *Booking) IsParticipant(userID string) bool {
	return userID != "" && (b.UserID == userID || b.ExpertID == userID)
}
