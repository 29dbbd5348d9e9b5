// Package units converts between integer smallest-unit amounts and the
// decimal strings people read and type.
package units

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"lynora/internal/domain"
)

// Format renders amount with the given number of decimals, trimming trailing
// zeros: Format(1_500_000_000, 9) == "1.5".
func Format(amount uint64, decimals int32) string {
	return fromUint64(amount).Shift(-decimals).String()
}

// Parse reads a decimal string into smallest units. The value must be
// non-negative, carry no more than decimals fractional digits and fit the
// ledger's amount range.
func Parse(s string, decimals int32) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q: %v", domain.ErrInvalidParameter, s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: amount %q is negative", domain.ErrInvalidParameter, s)
	}
	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("%w: amount %q has more than %d decimals", domain.ErrInvalidParameter, s, decimals)
	}
	if scaled.GreaterThan(fromUint64(domain.MaxAmount)) {
		return 0, fmt.Errorf("%w: amount %q out of range", domain.ErrInvalidParameter, s)
	}
	return scaled.BigInt().Uint64(), nil
}

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
