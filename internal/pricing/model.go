// Package pricing resolves tenant margin rules into sell prices.
package pricing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdjustmentType selects how a rule moves the running sell price.
type AdjustmentType string

const (
	AdjustPercent AdjustmentType = "percent"
	AdjustFixed   AdjustmentType = "fixed"
)

// Condition is one equality predicate over the pricing context. A field
// missing from the context means the rule does not match; it is never an
// error.
type Condition struct {
	Field    string `json:"field"`
	Expected string `json:"expected"`
}

// MarginRule is a tenant-scoped pricing rule. Rules are read-only during
// resolution; administrators maintain them independently of any quote.
type MarginRule struct {
	ID         uuid.UUID       `json:"id"`
	TenantID   uuid.UUID       `json:"tenant_id"`
	Name       string          `json:"name"`
	Conditions []Condition     `json:"conditions"`
	Adjustment AdjustmentType  `json:"adjustment"`
	Value      decimal.Decimal `json:"value"`
	Priority   int             `json:"priority"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// PricingResult is the outcome of applying matched rules to a buy cost.
// Sell and Margin are rounded to 2 decimal places half-up; intermediate
// compounding keeps full precision.
type PricingResult struct {
	BuyPrice     decimal.Decimal `json:"buy_price"`
	SellPrice    decimal.Decimal `json:"sell_price"`
	MarginAmount decimal.Decimal `json:"margin_amount"`
	AppliedRules []string        `json:"applied_rules"`
}
