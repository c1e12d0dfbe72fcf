// Package amount holds the fixed-point arithmetic shared by the vault ledgers.
// All values are unsigned 256-bit integers in base units; every operation
// that can overflow or underflow reports it instead of wrapping.
package amount

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/LeJamon/goVaultd/internal/core/vaulterr"
)

// BasisPointsDenominator is the denominator of every ratio setting.
const BasisPointsDenominator = 10_000

// PrecisionDecimals is the scale of share prices.
const PrecisionDecimals = 18

var (
	// Precision is 1e18, the share price of an empty vault.
	Precision = uint256.NewInt(1_000_000_000_000_000_000)

	// BasisPoints is BasisPointsDenominator as a 256-bit value.
	BasisPoints = uint256.NewInt(BasisPointsDenominator)
)

// Zero returns a fresh zero value.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// New returns v as a fresh 256-bit value.
func New(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// Or returns x, or a fresh zero when x is nil.
func Or(x *uint256.Int) *uint256.Int {
	if x == nil {
		return Zero()
	}
	return x
}

// Add returns a+b.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, vaulterr.ErrArithmeticOverflow
	}
	return z, nil
}

// Sub returns a-b and fails when b > a.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, vaulterr.ErrArithmeticUnderflow
	}
	return z, nil
}

// SubFloor returns max(0, a-b).
func SubFloor(a, b *uint256.Int) *uint256.Int {
	if a.Cmp(b) <= 0 {
		return Zero()
	}
	return new(uint256.Int).Sub(a, b)
}

// MulDiv returns floor(x*y/d) with a 512-bit intermediate product.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, vaulterr.ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, vaulterr.ErrArithmeticOverflow
	}
	return z, nil
}

// MulDivCeil returns ceil(x*y/d).
func MulDivCeil(x, y, d *uint256.Int) (*uint256.Int, error) {
	z, err := MulDiv(x, y, d)
	if err != nil {
		return nil, err
	}
	if new(uint256.Int).MulMod(x, y, d).IsZero() {
		return z, nil
	}
	return Add(z, New(1))
}

// Bps returns floor(x*bps/10000).
func Bps(x *uint256.Int, bps uint64) (*uint256.Int, error) {
	return MulDiv(x, New(bps), BasisPoints)
}

// Min returns the smaller of a and b.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b *uint256.Int) *uint256.Int {
	if a.Gt(b) {
		return a
	}
	return b
}

// Pow10 returns 10^decimals.
func Pow10(decimals uint8) *uint256.Int {
	return new(uint256.Int).Exp(New(10), New(uint64(decimals)))
}

// Units scales whole units into base units for an asset with the given decimals.
func Units(whole uint64, decimals uint8) *uint256.Int {
	return new(uint256.Int).Mul(New(whole), Pow10(decimals))
}

// ParseUnits parses a decimal string such as "50000" or "1250.5" into base units.
func ParseUnits(s string, decimals uint8) (*uint256.Int, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, decimals)
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))
	digits := strings.TrimLeft(whole+frac, "0")
	if digits == "" {
		return Zero(), nil
	}
	v, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

// FormatUnits renders base units as a decimal string with trailing zeros trimmed.
func FormatUnits(x *uint256.Int, decimals uint8) string {
	if x == nil {
		return "0"
	}
	s := x.Dec()
	if decimals == 0 {
		return s
	}
	if len(s) <= int(decimals) {
		s = strings.Repeat("0", int(decimals)-len(s)+1) + s
	}
	whole, frac := s[:len(s)-int(decimals)], strings.TrimRight(s[len(s)-int(decimals):], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}
