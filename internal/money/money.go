// Package money implements exact fixed-point amount arithmetic on top of
// decimal strings and integer minor units. Amounts never pass through binary
// floating point.
package money

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount indicates a value that does not parse as a signed decimal.
var ErrInvalidAmount = errors.New("invalid decimal amount")

// RateScale is the fixed number of fractional digits used for exchange rates.
const RateScale int32 = 8

var signedDecimalRe = regexp.MustCompile(`^-?\d+(?:\.\d+)?$`)

// ToMinorUnits converts a signed decimal string into integer minor units at
// the given scale, rounding half-up when the input carries excess precision.
func ToMinorUnits(value string, scale int32) (int64, error) {
	canonical, err := Canonicalize(value, scale)
	if err != nil {
		return 0, err
	}

	dec, err := decimal.NewFromString(canonical)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	return dec.Shift(scale).IntPart(), nil
}

// FromMinorUnits renders integer minor units as a canonical, zero-padded,
// sign-correct decimal string. It is the inverse of ToMinorUnits up to
// canonical formatting.
func FromMinorUnits(minorUnits int64, scale int32) string {
	return decimal.New(minorUnits, -scale).StringFixed(scale)
}

// MultiplyMinorByRate multiplies an amount in minor units by a decimal rate
// string and returns the result in minor units at the same scale. The rate is
// normalized to RateScale fractional digits, the product is computed exactly,
// and ties round half-up (away from zero).
func MultiplyMinorByRate(minorUnits int64, rate string, scale int32) (int64, error) {
	normalizedRate, err := Canonicalize(rate, RateScale)
	if err != nil {
		return 0, err
	}

	amount, err := decimal.NewFromString(FromMinorUnits(minorUnits, scale))
	if err != nil {
		return 0, err
	}
	rateDec, err := decimal.NewFromString(normalizedRate)
	if err != nil {
		return 0, err
	}

	rounded, err := RoundHalfUp(amount.Mul(rateDec).String(), scale)
	if err != nil {
		return 0, err
	}

	product, err := decimal.NewFromString(rounded)
	if err != nil {
		return 0, err
	}
	return product.Shift(scale).IntPart(), nil
}

// RoundHalfUp rounds a decimal string to scale fractional digits with ties
// rounding away from zero: exactly 0.5*10^-scale is added (positive values)
// or subtracted (negative values) before truncation. The arithmetic is exact
// for arbitrarily long inputs.
func RoundHalfUp(value string, scale int32) (string, error) {
	if scale < 0 {
		return "", fmt.Errorf("scale must be >= 0, got %d", scale)
	}
	if !signedDecimalRe.MatchString(value) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}

	dec, err := decimal.NewFromString(value)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}

	halfUnit := decimal.New(5, -(scale + 1))
	if dec.IsNegative() {
		dec = dec.Sub(halfUnit)
	} else {
		dec = dec.Add(halfUnit)
	}

	return dec.Truncate(scale).StringFixed(scale), nil
}

// Canonicalize validates a signed decimal string and rounds it half-up to the
// requested scale, returning the zero-padded canonical form.
func Canonicalize(value string, scale int32) (string, error) {
	if !signedDecimalRe.MatchString(value) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	return RoundHalfUp(value, scale)
}
