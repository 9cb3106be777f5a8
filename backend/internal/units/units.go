// Package units converts between human token amounts ("98.9") and base
// units (98.9 * 10^decimals).
package units

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the precision of every token deployed by genesis.
const Decimals = 18

// Parse converts a human amount into base units for the given precision.
// Amounts with more fractional digits than decimals are rejected.
func Parse(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.Sign() < 0 {
		return nil, fmt.Errorf("parse amount %q: negative", s)
	}
	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("parse amount %q: more than %d decimals", s, decimals)
	}
	return scaled.BigInt(), nil
}

// Format renders base units as a human amount with trailing zeros trimmed.
func Format(v *big.Int, decimals int32) string {
	return decimal.NewFromBigInt(v, -decimals).String()
}

// Tokens returns n whole tokens in base units at the default precision.
// It panics on malformed input and is meant for fixtures and scripts.
func Tokens(n string) *big.Int {
	v, err := Parse(n, Decimals)
	if err != nil {
		panic(err)
	}
	return v
}
