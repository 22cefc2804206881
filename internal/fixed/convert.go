package fixed

import (
	"fmt"
	"math"
)

// FromFloat64 converts a float to sign-magnitude form at the given scale:
// sign is 1 for negative inputs and the magnitude is round(|x| * 10^scale),
// half away from zero. Conversion is a load-time tool concern; the engine
// itself never touches floats.
func FromFloat64(x float64, scale uint32) (uint8, uint64, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, 0, fmt.Errorf("non-finite value %v: %w", x, ErrOverflow)
	}
	factor, err := ScaleFactor(scale)
	if err != nil {
		return 0, 0, err
	}
	mag := math.Round(math.Abs(x) * float64(factor))
	if mag >= float64(math.MaxUint64) {
		return 0, 0, fmt.Errorf("value %v at scale %d: %w", x, scale, ErrOverflow)
	}
	sgn := SignPositive
	if x < 0 && mag != 0 {
		sgn = SignNegative
	}
	return sgn, uint64(mag), nil
}

// Float64 renders a sign-magnitude value as a float for display. The result
// must never feed back into engine arithmetic.
func Float64(sgn uint8, mag uint64, scale uint32) float64 {
	v := float64(mag) / math.Pow10(int(scale))
	if sgn == SignNegative {
		v = -v
	}
	return v
}

// SignsFromInts converts a transport sign vector into sign bytes. JSON
// carries signs as plain integers because []uint8 would serialize as
// base64. Values outside {0,1} are rejected before the uint8 conversion,
// which would wrap 256 to 0.
func SignsFromInts(v []int) ([]uint8, error) {
	out := make([]uint8, len(v))
	for i, s := range v {
		if s != 0 && s != 1 {
			return nil, fmt.Errorf("sign %d at index %d, want 0 or 1: %w", s, i, ErrShapeMismatch)
		}
		out[i] = uint8(s)
	}
	return out, nil
}

// SignsToInts renders sign bytes for JSON transport.
func SignsToInts(v []uint8) []int {
	out := make([]int, len(v))
	for i, s := range v {
		out[i] = int(s)
	}
	return out
}
