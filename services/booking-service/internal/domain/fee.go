package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FeeConfig is one version of the platform fee rule. Rows are never edited;
// a new version deactivates the previous one.
type FeeConfig struct {
	ID            uint            `gorm:"primaryKey"`
	FeePercent    decimal.Decimal `gorm:"type:numeric(5,2);not null"`
	MinFee        decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Currency      string          `gorm:"size:3;not null"`
	IsActive      bool            `gorm:"not null;uniqueIndex:uniq_fee_configs_active,where:is_active"`
	CreatedBy     string          `gorm:"size:64"`
	CreatedAt     time.Time
	DeactivatedAt *time.Time
}

type FeeBreakdown struct {
	Gross         decimal.Decimal
	GatewayFee    decimal.Decimal // fee + tax charged by the gateway
	PlatformFee   decimal.Decimal
	ExpertEarning decimal.Decimal
}

// PlatformFee is max(gross*percent/100, min_fee) for paid bookings and zero otherwise.
func PlatformFee(gross decimal.Decimal, cfg FeeConfig) decimal.Decimal {
	if !gross.IsPositive() {
		return decimal.Zero
	}
	pct := gross.Mul(cfg.FeePercent).Div(hundred).Round(2)
	if pct.LessThan(cfg.MinFee) {
		return cfg.MinFee.Round(2)
	}
	return pct
}

// ComputeFees splits a captured gross amount into gateway, platform and expert shares.
func ComputeFees(gross, gatewayFee decimal.Decimal, cfg FeeConfig) FeeBreakdown {
	fee := PlatformFee(gross, cfg)
	return FeeBreakdown{
		Gross:         gross,
		GatewayFee:    gatewayFee,
		PlatformFee:   fee,
		ExpertEarning: gross.Sub(gatewayFee).Sub(fee),
	}
}
