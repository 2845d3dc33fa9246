package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestApplyPricingNoMatchesKeepsCost(t *testing.T) {
	result := ApplyPricing(dec("100"), nil)
	if !result.SellPrice.Equal(dec("100")) {
		t.Fatalf("expected sell 100 got %s", result.SellPrice)
	}
	if !result.MarginAmount.IsZero() {
		t.Fatalf("expected zero margin got %s", result.MarginAmount)
	}
	if len(result.AppliedRules) != 0 {
		t.Fatalf("expected no applied rules got %v", result.AppliedRules)
	}
}

func TestApplyPricingSinglePercent(t *testing.T) {
	rules := []MarginRule{{Name: "ten-pct", Adjustment: AdjustPercent, Value: dec("10")}}
	result := ApplyPricing(dec("100"), rules)
	if !result.SellPrice.Equal(dec("110")) {
		t.Fatalf("expected sell 110 got %s", result.SellPrice)
	}
	if !result.MarginAmount.Equal(dec("10")) {
		t.Fatalf("expected margin 10 got %s", result.MarginAmount)
	}
}

func TestApplyPricingSingleFixed(t *testing.T) {
	rules := []MarginRule{{Name: "twenty-flat", Adjustment: AdjustFixed, Value: dec("20")}}
	result := ApplyPricing(dec("100"), rules)
	if !result.SellPrice.Equal(dec("120")) {
		t.Fatalf("expected sell 120 got %s", result.SellPrice)
	}
}

func TestApplyPricingCompoundsInOrder(t *testing.T) {
	// 100 -> +10% = 110 -> +$20 = 130. Additive-on-cost would give 130 too,
	// so verify ordering with a second percent rule: 130 vs (100+20)*1.10=132.
	rules := []MarginRule{
		{Name: "pct-first", Adjustment: AdjustPercent, Value: dec("10"), Priority: 10},
		{Name: "fixed-second", Adjustment: AdjustFixed, Value: dec("20"), Priority: 5},
	}
	result := ApplyPricing(dec("100"), rules)
	if !result.SellPrice.Equal(dec("130")) {
		t.Fatalf("expected sell 130 got %s", result.SellPrice)
	}

	reversed := []MarginRule{rules[1], rules[0]}
	result = ApplyPricing(dec("100"), reversed)
	if !result.SellPrice.Equal(dec("132")) {
		t.Fatalf("expected sell 132 when fixed applies first, got %s", result.SellPrice)
	}
}

func TestApplyPricingFullPrecisionUntilOutput(t *testing.T) {
	// 100.05 * 1.0333 compounded twice keeps full precision internally and
	// rounds half-up only at the end.
	rules := []MarginRule{
		{Name: "a", Adjustment: AdjustPercent, Value: dec("3.33")},
		{Name: "b", Adjustment: AdjustPercent, Value: dec("3.33")},
	}
	result := ApplyPricing(dec("100.05"), rules)
	// 100.05 * 1.0333^2 = 106.8242759944...
	if !result.SellPrice.Equal(dec("106.82")) {
		t.Fatalf("expected sell 106.82 got %s", result.SellPrice)
	}
	if !result.MarginAmount.Equal(dec("6.77")) {
		t.Fatalf("expected margin 6.77 got %s", result.MarginAmount)
	}
	if len(result.AppliedRules) != 2 {
		t.Fatalf("expected two applied rules got %v", result.AppliedRules)
	}
}

func TestMatchesLooseEquality(t *testing.T) {
	rule := MarginRule{Conditions: []Condition{
		{Field: "transit_days", Expected: "10"},
		{Field: "mode", Expected: "ocean"},
	}}

	if !rule.Matches(map[string]string{"transit_days": "10.0", "mode": "ocean"}) {
		t.Fatal("numeric 10 should match string 10.0")
	}
	if rule.Matches(map[string]string{"transit_days": "11", "mode": "ocean"}) {
		t.Fatal("mismatched value should not match")
	}
	if rule.Matches(map[string]string{"mode": "ocean"}) {
		t.Fatal("missing context key should mean non-match, not match")
	}
}

func TestMatchPreservesOrder(t *testing.T) {
	rules := []MarginRule{
		{Name: "first", Priority: 10},
		{Name: "second", Priority: 10},
		{Name: "third", Priority: 5},
	}
	matched := Match(rules, map[string]string{})
	if len(matched) != 3 {
		t.Fatalf("conditionless rules match everything, got %d", len(matched))
	}
	if matched[0].Name != "first" || matched[1].Name != "second" {
		t.Fatal("equal-priority rules must keep stored order")
	}
}

func TestSortByPriorityStable(t *testing.T) {
	rules := []MarginRule{
		{Name: "low", Priority: 1},
		{Name: "high-a", Priority: 9},
		{Name: "high-b", Priority: 9},
	}
	SortByPriority(rules)
	if rules[0].Name != "high-a" || rules[1].Name != "high-b" || rules[2].Name != "low" {
		t.Fatalf("unexpected order: %v", []string{rules[0].Name, rules[1].Name, rules[2].Name})
	}
}

func TestValidateRule(t *testing.T) {
	valid := MarginRule{Name: "r", Adjustment: AdjustPercent, Value: dec("5")}
	if err := ValidateRule(valid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateRule(MarginRule{Adjustment: AdjustPercent}); err == nil {
		t.Fatal("expected error for missing name")
	}
	if err := ValidateRule(MarginRule{Name: "r", Adjustment: "markup"}); err == nil {
		t.Fatal("expected error for unknown adjustment type")
	}
	if err := ValidateRule(MarginRule{Name: "r", Adjustment: AdjustFixed, Conditions: []Condition{{Field: ""}}}); err == nil {
		t.Fatal("expected error for empty condition field")
	}
}
