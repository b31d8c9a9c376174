// Package numeric holds the checked integer helpers shared by the pricing,
// reconciliation and liquidity code. Products are taken in 256 bits so that
// u64*u64 intermediates never wrap; results that do not fit in u64 are errors.
package numeric

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	ErrOverflow     = errors.New("numeric: overflow")
	ErrUnderflow    = errors.New("numeric: underflow")
	ErrDivideByZero = errors.New("numeric: divide by zero")
)

// Add returns a+b or ErrOverflow.
func Add(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Sub returns a-b or ErrUnderflow.
func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrUnderflow
	}
	return a - b, nil
}

// Mul returns a*b or ErrOverflow.
func Mul(a, b uint64) (uint64, error) {
	return fit(new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b)))
}

// MulDiv returns floor(a*b/d) with a full-width product.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrDivideByZero
	}
	prod := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	return fit(prod.Div(prod, uint256.NewInt(d)))
}

// Product multiplies every factor and divides by every divisor in order,
// flooring after each division, the way chained integer expressions do.
// Factors are multiplied first so no precision is lost before the divisions.
func Product(factors []uint64, divisors ...uint64) (uint64, error) {
	acc := uint256.NewInt(1)
	for _, f := range factors {
		if _, overflow := acc.MulOverflow(acc, uint256.NewInt(f)); overflow {
			return 0, ErrOverflow
		}
	}
	for _, d := range divisors {
		if d == 0 {
			return 0, ErrDivideByZero
		}
		acc.Div(acc, uint256.NewInt(d))
	}
	return fit(acc)
}

// Sqrt returns floor(sqrt(v)) for a 128-bit style product held in v.
func Sqrt(v *uint256.Int) uint64 {
	r := new(uint256.Int).Sqrt(v)
	if !r.IsUint64() {
		return ^uint64(0)
	}
	return r.Uint64()
}

// Min returns the smaller of a and b.
func Min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// GCD returns the greatest common divisor of a and b; GCD(0, 0) is 0.
func GCD(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// SameFraction reports whether num1/den1 and num2/den2 reduce to the same
// fraction. Both fractions are reduced by their gcd and compared term by term.
func SameFraction(num1, den1, num2, den2 uint64) bool {
	g1 := GCD(num1, den1)
	g2 := GCD(num2, den2)
	if g1 == 0 || g2 == 0 {
		return g1 == g2
	}
	return num1/g1 == num2/g2 && den1/g1 == den2/g2
}

func fit(v *uint256.Int) (uint64, error) {
	if !v.IsUint64() {
		return 0, ErrOverflow
	}
	return v.Uint64(), nil
}
