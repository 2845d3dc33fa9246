package rollup

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lanecrest/lanecrest/internal/shared"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func charge(tenant uuid.UUID, legID *uuid.UUID, amount, currency string) Charge {
	return Charge{ID: uuid.New(), TenantID: tenant, LegID: legID, Amount: dec(amount), Currency: currency}
}

func testOption() Option {
	tenant := uuid.New()
	legA := uuid.New()
	legB := uuid.New()
	return Option{
		ID:       uuid.New(),
		TenantID: tenant,
		Currency: "USD",
		Legs: []Leg{
			{ID: legA, SortOrder: 1, Charges: []Charge{
				charge(tenant, &legA, "150.25", "USD"),
				charge(tenant, &legA, "49.75", "USD"),
			}},
			{ID: legB, SortOrder: 2, Charges: []Charge{
				charge(tenant, &legB, "1200.00", "USD"),
			}},
		},
		DirectCharges: []Charge{
			charge(tenant, nil, "35.50", "USD"),
		},
	}
}

func TestRollupSumsLegsAndDirectCharges(t *testing.T) {
	option := testOption()
	total, err := Rollup(option)
	if err != nil {
		t.Fatalf("rollup: %v", err)
	}
	if !total.OptionTotal.Equal(dec("1435.50")) {
		t.Fatalf("expected 1435.50 got %s", total.OptionTotal)
	}
	if len(total.LegSubtotals) != 2 {
		t.Fatalf("expected two leg subtotals got %d", len(total.LegSubtotals))
	}
	if !total.LegSubtotals[0].Subtotal.Equal(dec("200.00")) {
		t.Fatalf("expected first leg subtotal 200.00 got %s", total.LegSubtotals[0].Subtotal)
	}
	if !total.DirectSubtotal.Equal(dec("35.50")) {
		t.Fatalf("expected direct subtotal 35.50 got %s", total.DirectSubtotal)
	}
}

func TestRollupIdempotent(t *testing.T) {
	option := testOption()
	first, err := Rollup(option)
	if err != nil {
		t.Fatalf("first rollup: %v", err)
	}
	second, err := Rollup(option)
	if err != nil {
		t.Fatalf("second rollup: %v", err)
	}
	if !first.OptionTotal.Equal(second.OptionTotal) {
		t.Fatalf("rollup not idempotent: %s vs %s", first.OptionTotal, second.OptionTotal)
	}
}

func TestRollupFlagsMismatchedLinkage(t *testing.T) {
	option := testOption()
	other := uuid.New()
	option.Legs[0].Charges[1].LegID = &other

	_, err := Rollup(option)
	var integrity *shared.IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected IntegrityError got %v", err)
	}
	if integrity.Kind != "charge_linkage" {
		t.Fatalf("expected charge_linkage got %s", integrity.Kind)
	}
}

func TestRollupFlagsMixedCurrency(t *testing.T) {
	option := testOption()
	option.Legs[1].Charges[0].Currency = "EUR"

	_, err := Rollup(option)
	var integrity *shared.IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected IntegrityError got %v", err)
	}
	if integrity.Kind != "mixed_currency" {
		t.Fatalf("expected mixed_currency got %s", integrity.Kind)
	}
}

func TestRollupFlagsTenantMismatch(t *testing.T) {
	option := testOption()
	option.DirectCharges[0].TenantID = uuid.New()

	_, err := Rollup(option)
	var integrity *shared.IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected IntegrityError got %v", err)
	}
	if integrity.Kind != "tenant_mismatch" {
		t.Fatalf("expected tenant_mismatch got %s", integrity.Kind)
	}
}

func TestRollupFlagsDirectChargeWithLegParent(t *testing.T) {
	option := testOption()
	stray := option.Legs[0].ID
	option.DirectCharges[0].LegID = &stray

	_, err := Rollup(option)
	var integrity *shared.IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected IntegrityError got %v", err)
	}
}

func TestVerifyWithinTolerance(t *testing.T) {
	option := testOption()
	option.StoredTotal = dec("1435.509")
	if err := Verify(option); err != nil {
		t.Fatalf("expected stored total within tolerance, got %v", err)
	}

	option.StoredTotal = dec("1435.60")
	err := Verify(option)
	var integrity *shared.IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected stale_total IntegrityError got %v", err)
	}
	if integrity.Kind != "stale_total" {
		t.Fatalf("expected stale_total got %s", integrity.Kind)
	}
}

func TestRollupEmptyOption(t *testing.T) {
	total, err := Rollup(Option{ID: uuid.New(), TenantID: uuid.New(), Currency: "USD"})
	if err != nil {
		t.Fatalf("rollup: %v", err)
	}
	if !total.OptionTotal.IsZero() {
		t.Fatalf("expected zero total got %s", total.OptionTotal)
	}
}
