package conversion

import (
	"github.com/shopspring/decimal"
)

// Statutory US import fee rates. The merchandise processing fee is ad
// valorem with a statutory floor and ceiling that change yearly, so the
// bounds are injected through FeeConfig rather than hard-coded.
var (
	mpfRate = decimal.RequireFromString("0.003464")
	hmfRate = decimal.RequireFromString("0.00125")
)

// FeeConfig carries the clamp bounds for the merchandise processing fee.
type FeeConfig struct {
	MPFMinimum decimal.Decimal
	MPFMaximum decimal.Decimal
}

// DefaultFeeConfig reflects the published bounds at the time of writing.
func DefaultFeeConfig() FeeConfig {
	return FeeConfig{
		MPFMinimum: decimal.RequireFromString("31.67"),
		MPFMaximum: decimal.RequireFromString("614.35"),
	}
}

// FeeBreakdown itemises the customs fees computed for one shipment. All
// components are rounded half-up to cents; Total is the exact sum of the
// rounded components.
type FeeBreakdown struct {
	DeclaredValue decimal.Decimal `json:"declared_value"`
	Duty          decimal.Decimal `json:"duty"`
	MPF           decimal.Decimal `json:"mpf"`
	HMF           decimal.Decimal `json:"hmf"`
	Total         decimal.Decimal `json:"total"`
}

// HasFees reports whether any component is non-zero. A zero breakdown
// produces no invoice line.
func (b FeeBreakdown) HasFees() bool {
	return !b.Total.IsZero()
}

// ItemDuty computes the ad-valorem duty for one classified item. rate is
// fractional (0.065 for 6.5%); an unclassified or zero-rate item yields
// zero duty, which is a valid outcome rather than an error.
func ItemDuty(declaredValue, rate decimal.Decimal) decimal.Decimal {
	if declaredValue.Sign() <= 0 || rate.Sign() <= 0 {
		return decimal.Zero
	}
	return declaredValue.Mul(rate).Round(2)
}

// CalculateFees combines per-item duty with shipment-level fees on the
// aggregate declared value. The merchandise processing fee is clamped to
// the configured bounds; the harbor maintenance fee applies to ocean moves
// only.
func CalculateFees(declaredValue, duty decimal.Decimal, oceanMode bool, cfg FeeConfig) FeeBreakdown {
	breakdown := FeeBreakdown{
		DeclaredValue: declaredValue,
		Duty:          duty,
	}
	if declaredValue.Sign() <= 0 {
		return breakdown
	}

	mpf := declaredValue.Mul(mpfRate)
	if mpf.LessThan(cfg.MPFMinimum) {
		mpf = cfg.MPFMinimum
	}
	if mpf.GreaterThan(cfg.MPFMaximum) {
		mpf = cfg.MPFMaximum
	}
	breakdown.MPF = mpf.Round(2)

	if oceanMode {
		breakdown.HMF = declaredValue.Mul(hmfRate).Round(2)
	}

	breakdown.Total = breakdown.Duty.Add(breakdown.MPF).Add(breakdown.HMF)
	return breakdown
}
