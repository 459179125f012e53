// Package fixedpoint provides exact, non-negative decimal arithmetic for
// 18-decimal token math. Every borrow index, exchange rate, price, and
// balance in LiquidCore is an F; none of it ever touches float64.
package fixedpoint

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Digits is the number of fractional digits every F is truncated to after
// an arithmetic operation. It comfortably covers borrowIndex/indexAtPrincipal
// ratios where both operands exceed 1e18 in 18-decimal fixed-point terms.
const Digits = 40

// guardDigits are extra digits of precision carried through an intermediate
// division before truncation, so that truncating to Digits does not itself
// introduce rounding bias from the division step.
const guardDigits = Digits + 12

var (
	// ErrNegativeResult is returned when a subtraction would produce a
	// negative value. F is defined only over non-negative rationals;
	// callers that expect saturation (e.g. BorrowerState.Redeem) use
	// SubSaturating instead.
	ErrNegativeResult = errors.New("fixedpoint: operation would produce a negative result")

	// ErrDivideByZero is returned by Div when the divisor is zero.
	ErrDivideByZero = errors.New("fixedpoint: division by zero")

	// ErrNegativeInput is returned by parsing/construction functions when
	// given a negative value.
	ErrNegativeInput = errors.New("fixedpoint: value must be non-negative")
)

func init() {
	// Guarantee the package-wide default is at least as precise as we need,
	// independent of whatever an importing binary might set elsewhere.
	if decimal.DivisionPrecision < guardDigits {
		decimal.DivisionPrecision = guardDigits
	}
}

// F is a non-negative fixed-point decimal, truncated to Digits fractional
// digits after every arithmetic operation.
type F struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = F{d: decimal.Zero}

// One is the multiplicative identity.
var One = F{d: decimal.New(1, 0)}

func normalize(d decimal.Decimal) F {
	return F{d: d.Truncate(Digits)}
}

// FromInt64 builds an F from a non-negative integer.
func FromInt64(v int64) (F, error) {
	if v < 0 {
		return Zero, ErrNegativeInput
	}
	return F{d: decimal.New(v, 0)}, nil
}

// MustFromInt64 panics on a negative input; for use with compile-time
// constants in tests and fixtures.
func MustFromInt64(v int64) F {
	f, err := FromInt64(v)
	if err != nil {
		panic(err)
	}
	return f
}

// FromString parses a base-10 decimal string (e.g. "1.5", "1000000000000000000").
func FromString(s string) (F, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("fixedpoint: parse %q: %w", s, err)
	}
	if d.IsNegative() {
		return Zero, ErrNegativeInput
	}
	return normalize(d), nil
}

// MustFromString is FromString but panics on error; for fixtures.
func MustFromString(s string) F {
	f, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return f
}

// String renders the canonical decimal representation.
func (f F) String() string {
	return f.d.String()
}

// IsZero reports whether f is exactly zero.
func (f F) IsZero() bool {
	return f.d.IsZero()
}

// IsPositive reports whether f is strictly greater than zero.
func (f F) IsPositive() bool {
	return f.d.IsPositive()
}

// Cmp returns -1, 0, or 1 comparing f to other.
func (f F) Cmp(other F) int {
	return f.d.Cmp(other.d)
}

// LessThan reports whether f < other.
func (f F) LessThan(other F) bool {
	return f.d.LessThan(other.d)
}

// GreaterThan reports whether f > other.
func (f F) GreaterThan(other F) bool {
	return f.d.GreaterThan(other.d)
}

// Add returns f + other.
func (f F) Add(other F) F {
	return normalize(f.d.Add(other.d))
}

// Sub returns f - other. Returns ErrNegativeResult rather than silently
// wrapping or saturating; callers implementing saturating semantics (§4.3
// of the spec: Redeem/Transfer/LiquidateBorrow) call SubSaturating, whose
// second result makes the clamp visible at the call site.
func (f F) Sub(other F) (F, error) {
	if f.d.LessThan(other.d) {
		return Zero, ErrNegativeResult
	}
	return normalize(f.d.Sub(other.d)), nil
}

// SubSaturating returns f - other, or Zero if that would be negative, plus
// whether saturation occurred.
func (f F) SubSaturating(other F) (F, bool) {
	if f.d.LessThan(other.d) {
		return Zero, true
	}
	return normalize(f.d.Sub(other.d)), false
}

// Mul returns f * other.
func (f F) Mul(other F) F {
	return normalize(f.d.Mul(other.d))
}

// Div returns f / other, truncated toward zero at Digits fractional digits.
func (f F) Div(other F) (F, error) {
	if other.d.IsZero() {
		return Zero, ErrDivideByZero
	}
	return normalize(f.d.DivRound(other.d, guardDigits)), nil
}

// MinF returns the smaller of a and b.
func MinF(a, b F) F {
	if a.LessThan(b) {
		return a
	}
	return b
}

// MaxF returns the larger of a and b.
func MaxF(a, b F) F {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Sum adds a slice of F values, starting from Zero.
func Sum(vals ...F) F {
	total := Zero
	for _, v := range vals {
		total = total.Add(v)
	}
	return total
}
