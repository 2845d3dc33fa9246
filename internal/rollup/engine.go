// Package rollup aggregates charge amounts bottom-up into leg and option
// totals. The engine is pure: it never writes, persisting a recomputed total
// is the caller's explicit follow-up.
package rollup

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lanecrest/lanecrest/internal/shared"
)

// Charge is one buy or sell amount attached to a leg, or directly to the
// option on the combined-charge path (LegID nil).
type Charge struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	LegID    *uuid.UUID
	Amount   decimal.Decimal
	Currency string
}

// Leg is one itinerary segment carrying its charges.
type Leg struct {
	ID        uuid.UUID
	SortOrder int
	Charges   []Charge
}

// Option is the rollup input: one priced alternative with its legs and any
// option-direct charges.
type Option struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	Currency      string
	StoredTotal   decimal.Decimal
	Legs          []Leg
	DirectCharges []Charge
}

// LegSubtotal pairs a leg with its computed charge sum.
type LegSubtotal struct {
	LegID    uuid.UUID
	Subtotal decimal.Decimal
}

// Total is the computed rollup for one option. DirectSubtotal covers charges
// attached to the option itself.
type Total struct {
	OptionID       uuid.UUID
	Currency       string
	LegSubtotals   []LegSubtotal
	DirectSubtotal decimal.Decimal
	OptionTotal    decimal.Decimal
}

// storedTolerance is the float tolerance for currency amount cross-checks.
var storedTolerance = decimal.NewFromFloat(0.01)

// Rollup computes leg subtotals and the option total. Charges whose linkage
// or tenant does not match their declared parent, and charges in a currency
// other than the option's, abort the rollup with an IntegrityError; nothing
// is silently dropped or summed.
func Rollup(option Option) (Total, error) {
	total := Total{
		OptionID:     option.ID,
		Currency:     option.Currency,
		LegSubtotals: make([]LegSubtotal, 0, len(option.Legs)),
	}

	sum := decimal.Zero
	for _, leg := range option.Legs {
		subtotal := decimal.Zero
		for _, charge := range leg.Charges {
			if charge.LegID == nil || *charge.LegID != leg.ID {
				return Total{}, &shared.IntegrityError{
					Kind:   "charge_linkage",
					Entity: "charge",
					ID:     charge.ID.String(),
					Detail: fmt.Sprintf("charge not linked to leg %s", leg.ID),
				}
			}
			if err := checkCharge(option, charge); err != nil {
				return Total{}, err
			}
			subtotal = subtotal.Add(charge.Amount)
		}
		total.LegSubtotals = append(total.LegSubtotals, LegSubtotal{LegID: leg.ID, Subtotal: subtotal})
		sum = sum.Add(subtotal)
	}

	direct := decimal.Zero
	for _, charge := range option.DirectCharges {
		if charge.LegID != nil {
			return Total{}, &shared.IntegrityError{
				Kind:   "charge_linkage",
				Entity: "charge",
				ID:     charge.ID.String(),
				Detail: "option-direct charge declares a leg parent",
			}
		}
		if err := checkCharge(option, charge); err != nil {
			return Total{}, err
		}
		direct = direct.Add(charge.Amount)
	}

	total.DirectSubtotal = direct
	total.OptionTotal = sum.Add(direct)
	return total, nil
}

func checkCharge(option Option, charge Charge) error {
	if charge.TenantID != option.TenantID {
		return &shared.IntegrityError{
			Kind:   "tenant_mismatch",
			Entity: "charge",
			ID:     charge.ID.String(),
			Detail: fmt.Sprintf("charge tenant %s differs from option tenant %s", charge.TenantID, option.TenantID),
		}
	}
	if charge.Currency != option.Currency {
		return &shared.IntegrityError{
			Kind:   "mixed_currency",
			Entity: "charge",
			ID:     charge.ID.String(),
			Detail: fmt.Sprintf("charge currency %s differs from option currency %s", charge.Currency, option.Currency),
		}
	}
	return nil
}

// Verify recomputes the option total and compares it with the stored value
// within a one-cent tolerance.
func Verify(option Option) error {
	total, err := Rollup(option)
	if err != nil {
		return err
	}
	diff := total.OptionTotal.Sub(option.StoredTotal).Abs()
	if diff.GreaterThan(storedTolerance) {
		return &shared.IntegrityError{
			Kind:   "stale_total",
			Entity: "option",
			ID:     option.ID.String(),
			Detail: fmt.Sprintf("stored total %s, computed %s", option.StoredTotal, total.OptionTotal),
		}
	}
	return nil
}
