package pricing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/lanecrest/lanecrest/internal/shared"
)

var oneHundred = decimal.NewFromInt(100)

// Matches reports whether every condition field is present in the context
// and equal to the expected value. Numeric strings compare by value, so a
// stored "10" matches a context "10.0".
func (r MarginRule) Matches(context map[string]string) bool {
	for _, cond := range r.Conditions {
		actual, ok := context[cond.Field]
		if !ok {
			return false
		}
		if !valuesEqual(actual, cond.Expected) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b string) bool {
	if a == b {
		return true
	}
	da, errA := decimal.NewFromString(a)
	db, errB := decimal.NewFromString(b)
	return errA == nil && errB == nil && da.Equal(db)
}

// Match filters rules down to those matching the context, preserving the
// given order. Rules are expected to arrive sorted by priority descending;
// equal priorities keep their stored order (stable).
func Match(rules []MarginRule, context map[string]string) []MarginRule {
	var matched []MarginRule
	for _, rule := range rules {
		if rule.Matches(context) {
			matched = append(matched, rule)
		}
	}
	return matched
}

// SortByPriority orders rules by priority descending with a stable sort, for
// callers holding rules from somewhere other than the repository.
func SortByPriority(rules []MarginRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})
}

// ApplyPricing compounds the matched rules onto cost, in order. Percent
// rules scale the running sell price; fixed rules add to it. No matching
// rules yields sell == cost with an empty applied list.
func ApplyPricing(cost decimal.Decimal, rules []MarginRule) PricingResult {
	sell := cost
	applied := make([]string, 0, len(rules))
	for _, rule := range rules {
		switch rule.Adjustment {
		case AdjustPercent:
			sell = sell.Add(sell.Mul(rule.Value).Div(oneHundred))
		case AdjustFixed:
			sell = sell.Add(rule.Value)
		default:
			continue
		}
		applied = append(applied, rule.Name)
	}

	sellRounded := sell.Round(2)
	return PricingResult{
		BuyPrice:     cost,
		SellPrice:    sellRounded,
		MarginAmount: sell.Sub(cost).Round(2),
		AppliedRules: applied,
	}
}

// ValidateRule rejects malformed rules before any write.
func ValidateRule(rule MarginRule) error {
	if rule.Name == "" {
		return fmt.Errorf("pricing: rule name required: %w", shared.ErrValidation)
	}
	if rule.Adjustment != AdjustPercent && rule.Adjustment != AdjustFixed {
		return fmt.Errorf("pricing: unknown adjustment type %q: %w", rule.Adjustment, shared.ErrValidation)
	}
	for i, cond := range rule.Conditions {
		if cond.Field == "" {
			return fmt.Errorf("pricing: condition %d has empty field: %w", i, shared.ErrValidation)
		}
	}
	return nil
}
