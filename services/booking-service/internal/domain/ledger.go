package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EntryType string

const (
	EntryBookingPayment   EntryType = "booking_payment"
	EntryPGFee            EntryType = "pg_fee"
	EntryIntellaFee       EntryType = "intella_fee"
	EntryExpertEarning    EntryType = "expert_earning"
	EntryRefundUser       EntryType = "refund_user"
	EntryPGFeeUser        EntryType = "pg_fee_user"
	EntryRefundExpert     EntryType = "refund_expert"
	EntryRefundIntellaFee EntryType = "refund_intella_fee"
)

type Direction string

const (
	Debit  Direction = "debit"
	Credit Direction = "credit"
)

// ReversalOf pairs each refund entry type with the capture entry it cancels.
var ReversalOf = map[EntryType]EntryType{
	EntryRefundUser:       EntryBookingPayment,
	EntryPGFeeUser:        EntryPGFee,
	EntryRefundExpert:     EntryExpertEarning,
	EntryRefundIntellaFee: EntryIntellaFee,
}

// LedgerEntry is immutable; (booking_id, entry_type) is unique.
type LedgerEntry struct {
	ID         uint            `gorm:"primaryKey"`
	BookingID  string          `gorm:"size:36;not null;uniqueIndex:uniq_ledger_booking_entry"`
	EntryType  EntryType       `gorm:"size:32;not null;uniqueIndex:uniq_ledger_booking_entry"`
	OrderCode  string          `gorm:"size:40;not null"`
	ExpertID   string          `gorm:"size:64;index"`
	Amount     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Direction  Direction       `gorm:"size:6;not null"`
	OccurredAt time.Time       `gorm:"not null"`
}

// Signed returns the amount as seen from the platform: debits positive, credits negative.
func (e LedgerEntry) Signed() decimal.Decimal {
	if e.Direction == Credit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// CaptureEntries are written when the gateway captures a payment.
func CaptureEntries(b *Booking, f FeeBreakdown, at time.Time) []LedgerEntry {
	row := func(t EntryType, amt decimal.Decimal, d Direction) LedgerEntry {
		return LedgerEntry{BookingID: b.ID, OrderCode: b.OrderCode, ExpertID: b.ExpertID, EntryType: t, Amount: amt, Direction: d, OccurredAt: at}
	}
	return []LedgerEntry{
		row(EntryBookingPayment, f.Gross, Debit),
		row(EntryPGFee, f.GatewayFee, Credit),
		row(EntryIntellaFee, f.PlatformFee, Credit),
		row(EntryExpertEarning, f.ExpertEarning, Credit),
	}
}

// ReversalEntries undo the capture rows once a refund succeeds. The payer
// receives refund_user minus pg_fee_user.
func ReversalEntries(b *Booking, at time.Time) []LedgerEntry {
	row := func(t EntryType, amt decimal.Decimal, d Direction) LedgerEntry {
		return LedgerEntry{BookingID: b.ID, OrderCode: b.OrderCode, ExpertID: b.ExpertID, EntryType: t, Amount: amt, Direction: d, OccurredAt: at}
	}
	return []LedgerEntry{
		row(EntryRefundUser, b.Amount, Credit),
		row(EntryPGFeeUser, b.PGFee, Debit),
		row(EntryRefundExpert, b.ExpertEarning, Debit),
		row(EntryRefundIntellaFee, b.IntellaFee, Debit),
	}
}
