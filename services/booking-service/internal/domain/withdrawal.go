package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalRequested  WithdrawalStatus = "requested"
	WithdrawalProcessing WithdrawalStatus = "processing"
	WithdrawalProcessed  WithdrawalStatus = "processed"
	WithdrawalRejected   WithdrawalStatus = "rejected"
	WithdrawalFailed     WithdrawalStatus = "failed"
)

// withdrawalEdges lists the admin-driven moves; there is no way back.
var withdrawalEdges = map[WithdrawalStatus][]WithdrawalStatus{
	WithdrawalRequested:  {WithdrawalProcessing, WithdrawalRejected},
	WithdrawalProcessing: {WithdrawalProcessed, WithdrawalFailed, WithdrawalRejected},
}

func CanMoveWithdrawal(from, to WithdrawalStatus) bool {
	for _, s := range withdrawalEdges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Holds reports whether the request still reserves the expert's balance.
func (s WithdrawalStatus) Holds() bool {
	return s == WithdrawalRequested || s == WithdrawalProcessing || s == WithdrawalProcessed
}

type WithdrawalRequest struct {
	ID             string           `gorm:"primaryKey;size:36"`
	ExpertID       string           `gorm:"size:64;index;not null"`
	Amount         decimal.Decimal  `gorm:"type:numeric(12,2);not null"`
	PayoutAccount  string           `gorm:"size:128;not null"` // UPI id or bank account reference
	Status         WithdrawalStatus `gorm:"size:20;index;not null"`
	PayoutMethod   string           `gorm:"size:32"`
	AdminReference string           `gorm:"size:128"`
	AdminNote      string           `gorm:"size:512"`
	RequestedAt    time.Time        `gorm:"not null"`
	ProcessingAt   *time.Time
	ProcessedAt    *time.Time
	RejectedAt     *time.Time
	FailedAt       *time.Time
	UpdatedAt      time.Time
}

// Earnings summarizes an expert's money position.
type Earnings struct {
	ExpertID  string          `json:"expert_id"`
	Earned    decimal.Decimal `json:"earned"`
	Reversed  decimal.Decimal `json:"reversed"`
	Pending   decimal.Decimal `json:"pending"`
	Withdrawn decimal.Decimal `json:"withdrawn"`
	Available decimal.Decimal `json:"available"`
}
