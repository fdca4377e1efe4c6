package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Routing keys published through the outbox.
const (
	RKBookingCreated         = "booking.created"
	RKBookingPaymentCaptured = "booking.payment_captured"
	RKBookingFreeConfirmed   = "booking.free_confirmed"
	RKBookingAccepted        = "booking.accepted"
	RKBookingRejected        = "booking.rejected"
	RKBookingCancelled       = "booking.cancelled"
	RKRefundRequested        = "booking.refund_requested"
	RKRefundSucceeded        = "booking.refund_succeeded"
	RKRefundFailed           = "booking.refund_failed"
	RKWithdrawalRequested    = "withdrawal.requested"
	RKWithdrawalUpdated      = "withdrawal.updated"
)

type OutboxEvent struct {
	ID           string         `gorm:"primaryKey;size:36"`
	EventType    string         `gorm:"size:64;index;not null"`
	PartitionKey string         `gorm:"size:64;not null"`
	Payload      datatypes.JSON `gorm:"not null"`
	CreatedAt    time.Time      `gorm:"index"`
	PublishedAt  *time.Time     `gorm:"index"`
	RetryCount   int            `gorm:"not null"`
	LastError    string         `gorm:"size:1024"`
}

// EventConsumed remembers gateway webhook deliveries already applied.
type EventConsumed struct {
	ID          string `gorm:"primaryKey;size:128"` // gateway event id
	EventKey    string `gorm:"size:64;index"`       // e.g. payment.captured
	BookingID   string `gorm:"size:36;index"`
	ProcessedAt time.Time
}

// BookingEvent is the payload shared by booking.* routing keys.
type BookingEvent struct {
	BookingID    string    `json:"booking_id"`
	OrderCode    string    `json:"order_code"`
	UserID       string    `json:"user_id"`
	UserEmail    string    `json:"user_email,omitempty"`
	ExpertID     string    `json:"expert_id"`
	ExpertEmail  string    `json:"expert_email,omitempty"`
	Status       Status    `json:"status"`
	Amount       string    `json:"amount"`
	Currency     string    `json:"currency"`
	StartsAt     time.Time `json:"starts_at"`
	MeetingLink  string    `json:"meeting_link,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	By           Actor     `json:"by,omitempty"`
	RefundAmount string    `json:"refund_amount,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func NewBookingEvent(b *Booking, at time.Time) BookingEvent {
	by := b.RejectedBy
	if by == "" {
		by = b.CancelledBy
	}
	return BookingEvent{
		BookingID: b.ID, OrderCode: b.OrderCode,
		UserID: b.UserID, UserEmail: b.UserEmail,
		ExpertID: b.ExpertID, ExpertEmail: b.ExpertEmail,
		Status: b.Status, Amount: b.Amount.StringFixed(2), Currency: b.Currency,
		StartsAt: b.StartsAt, MeetingLink: b.MeetingLink, By: by,
		OccurredAt: at,
	}
}

type WithdrawalEvent struct {
	WithdrawalID string           `json:"withdrawal_id"`
	ExpertID     string           `json:"expert_id"`
	Amount       string           `json:"amount"`
	Status       WithdrawalStatus `json:"status"`
	Reference    string           `json:"reference,omitempty"`
	OccurredAt   time.Time        `json:"occurred_at"`
}
