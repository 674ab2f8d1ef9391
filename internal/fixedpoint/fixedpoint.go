// Package fixedpoint provides the deterministic decimal arithmetic used by
// every other component. All boundary values are rounded half-to-even at a
// fixed scale so that repeated evaluation of the same inputs yields
// identical digits — no floating-point drift.
//
// Transcendental functions (only Exp is needed) go through float64 and are
// immediately converted back to decimal, the same containment applied to
// softmax-style math elsewhere in the codebase's lineage.
package fixedpoint

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept on every rounded value.
var Scale int32 = 18

// ErrDivisionByZero is returned when a divisor is zero.
var ErrDivisionByZero = errors.New("fixedpoint: division by zero")

// Round applies the canonical rounding rule: half-to-even at Scale.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(Scale)
}

// Mul returns a*b rounded at Scale.
func Mul(a, b decimal.Decimal) decimal.Decimal {
	return Round(a.Mul(b))
}

// Div returns a/b rounded at Scale. Division by zero is an error, never a
// panic.
func Div(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	// DivRound rounds half away from zero; compute at extra precision and
	// apply the half-to-even rule on the result.
	return Round(a.DivRound(b, Scale+4)), nil
}

// MulDiv returns a*b/c with a single rounding at the end, which keeps
// pro-rata share computations (amount * supply / reserve) as exact as the
// scale allows.
func MulDiv(a, b, c decimal.Decimal) (decimal.Decimal, error) {
	if c.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	return Round(a.Mul(b).DivRound(c, Scale+4)), nil
}

// PowInt returns base^n for non-negative integer n, rounded at Scale.
// Exponentiation by squaring keeps intermediate precision growth bounded.
func PowInt(base decimal.Decimal, n int) decimal.Decimal {
	if n < 0 {
		n = 0
	}
	result := decimal.NewFromInt(1)
	acc := base
	for n > 0 {
		if n&1 == 1 {
			result = result.Mul(acc)
		}
		acc = acc.Mul(acc)
		n >>= 1
	}
	return Round(result)
}

// Exp returns e^x rounded at Scale. The exponential itself is computed in
// float64 — the only transcendental step in the core — and converted back
// immediately.
func Exp(x decimal.Decimal) decimal.Decimal {
	return Round(decimal.NewFromFloat(math.Exp(x.InexactFloat64())))
}

// Clamp limits d to [lo, hi].
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}
