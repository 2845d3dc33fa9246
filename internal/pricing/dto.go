package pricing

import "github.com/shopspring/decimal"

type ConditionReq struct {
	Field    string `json:"field" validate:"required"`
	Expected string `json:"expected" validate:"required"`
}

type CreateRuleRequest struct {
	Name       string          `json:"name" validate:"required,max=120"`
	Conditions []ConditionReq  `json:"conditions" validate:"dive"`
	Adjustment AdjustmentType  `json:"adjustment" validate:"required,oneof=percent fixed"`
	Value      decimal.Decimal `json:"value" validate:"required"`
	Priority   int             `json:"priority"`
}

type PriceRequest struct {
	Cost    decimal.Decimal   `json:"cost" validate:"required"`
	Context map[string]string `json:"context"`
}
