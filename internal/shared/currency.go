package shared

import "golang.org/x/text/currency"

// ValidCurrency reports whether code is a well-formed ISO 4217 currency
// unit.
func ValidCurrency(code string) bool {
	_, err := currency.ParseISO(code)
	return err == nil
}
