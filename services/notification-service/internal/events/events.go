package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Routing keys published by booking-service.
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

// Booking carries enough of the booking for a notification.
type Booking struct {
	BookingID    string    `json:"booking_id"`
	OrderCode    string    `json:"order_code"`
	UserID       string    `json:"user_id"`
	UserEmail    string    `json:"user_email"`
	ExpertID     string    `json:"expert_id"`
	ExpertEmail  string    `json:"expert_email"`
	Status       string    `json:"status"`
	Amount       string    `json:"amount"`
	Currency     string    `json:"currency"`
	StartsAt     time.Time `json:"starts_at"`
	MeetingLink  string    `json:"meeting_link"`
	Reason       string    `json:"reason"`
	By           string    `json:"by"`
	RefundAmount string    `json:"refund_amount"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type Withdrawal struct {
	WithdrawalID string    `json:"withdrawal_id"`
	ExpertID     string    `json:"expert_id"`
	Amount       string    `json:"amount"`
	Status       string    `json:"status"`
	Reference    string    `json:"reference"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func Decode[T any](b []byte) (T, error) {
	var t T
	if err := json.Unmarshal(b, &t); err != nil {
		var zero T
		return zero, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
