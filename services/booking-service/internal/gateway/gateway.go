package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

type OrderRequest struct {
	Amount   decimal.Decimal
	Currency string
	Receipt  string
	Notes    map[string]string
}

type Order struct {
	ID string
}

type RefundRequest struct {
	PaymentID      string
	Amount         decimal.Decimal
	Currency       string
	Notes          map[string]string
	IdempotencyKey string
}

type Refund struct {
	ID     string
	Status string
}

// Gateway is the narrow surface of the payment provider used by the booking flow.
type Gateway interface {
	CreateOrder(ctx context.Context, in OrderRequest) (Order, error)
	Refund(ctx context.Context, in RefundRequest) (Refund, error)
}

// MinorUnits converts a decimal amount into paise/satang.
func MinorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// FromMinor converts paise/satang into a decimal amount.
func FromMinor(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}
