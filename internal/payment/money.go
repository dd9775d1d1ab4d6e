package payment

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReferencePrefix marks references minted by this service.
const ReferencePrefix = "fb_"

var supportedCurrencies = map[string]struct{}{
	"USD": {},
	"EUR": {},
	"CAD": {},
	"GHS": {},
	"NGN": {},
}

// NormalizeCurrency upper-cases code and reports whether it is accepted.
func NormalizeCurrency(code string) (string, bool) {
	c := strings.ToUpper(strings.TrimSpace(code))
	_, ok := supportedCurrencies[c]
	return c, ok
}

// ValidateAmount requires a positive amount with at most two fractional digits.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return invalid("Invalid amount")
	}
	if !amount.Equal(amount.Round(2)) {
		return invalid("Amount supports at most two decimal places")
	}
	return nil
}

// MinorUnits converts a validated amount to the gateway's smallest unit.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).IntPart()
}

// NewReference returns a fresh transaction reference such as fb_3f2a9c0d1e4b.
func NewReference() string {
	return ReferencePrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
