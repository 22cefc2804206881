// Package fixed implements sign-magnitude fixed-point arithmetic on uint64
// magnitudes. A value is (sign, magnitude, scale) with logical value
// (sign==1 ? -1 : 1) * magnitude / 10^scale. All arithmetic is exact:
// overflow is detected and reported, never wrapped.
package fixed

import (
	"errors"
	"fmt"
	"math/bits"
)

const (
	// SignPositive and SignNegative are the only valid sign bytes.
	SignPositive uint8 = 0
	SignNegative uint8 = 1

	// MaxScaleExp is the largest n for which 10^n fits in a uint64.
	MaxScaleExp = 19
)

var (
	ErrShapeMismatch = errors.New("fixed: shape mismatch")
	ErrScaleMismatch = errors.New("fixed: scale mismatch")
	ErrRange         = errors.New("fixed: index out of range")
	ErrOverflow      = errors.New("fixed: magnitude overflow")
)

// ScaleFactor returns 10^scale.
func ScaleFactor(scale uint32) (uint64, error) {
	if scale > MaxScaleExp {
		return 0, fmt.Errorf("scale %d exceeds uint64 range: %w", scale, ErrOverflow)
	}
	f := uint64(1)
	for i := uint32(0); i < scale; i++ {
		f *= 10
	}
	return f, nil
}

// AddSigned adds two sign-magnitude values sharing a scale. Equal signs add
// magnitudes; opposite signs subtract the smaller magnitude from the larger
// and keep the larger's sign. An exact zero normalizes to sign 0.
func AddSigned(s1 uint8, m1 uint64, s2 uint8, m2 uint64) (uint8, uint64, error) {
	if s1 == s2 {
		sum, carry := bits.Add64(m1, m2, 0)
		if carry != 0 {
			return 0, 0, fmt.Errorf("add %d+%d: %w", m1, m2, ErrOverflow)
		}
		if sum == 0 {
			return SignPositive, 0, nil
		}
		return s1, sum, nil
	}
	if m1 >= m2 {
		diff := m1 - m2
		if diff == 0 {
			return SignPositive, 0, nil
		}
		return s1, diff, nil
	}
	return s2, m2 - m1, nil
}

// MulSigned multiplies two sign-magnitude values. The sign is the XOR of the
// operand signs, the magnitude the exact product. The result scale is the sum
// of the operand scales; callers track scale bookkeeping themselves.
func MulSigned(s1 uint8, m1 uint64, s2 uint8, m2 uint64) (uint8, uint64, error) {
	hi, lo := bits.Mul64(m1, m2)
	if hi != 0 {
		return 0, 0, fmt.Errorf("mul %d*%d: %w", m1, m2, ErrOverflow)
	}
	if lo == 0 {
		return SignPositive, 0, nil
	}
	return s1 ^ s2, lo, nil
}

// Rescale divides a magnitude by a scale factor, truncating toward zero.
// No rounding is applied; the factor must come from ScaleFactor and is
// therefore never zero.
func Rescale(m uint64, factor uint64) uint64 {
	return m / factor
}
