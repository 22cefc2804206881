package fixed

import "fmt"

// Tensor is a rectangular container of sign-magnitude fixed-point values in
// row-major order. Mag and Sign are parallel: len(Mag) == len(Sign) ==
// product(Shape). Arithmetic between tensors requires equal Scale.
//
// Layer weights and biases are built once at load time and must not be
// mutated afterwards; all other tensors are transient per-call values.
type Tensor struct {
	Shape []int
	Mag   []uint64
	Sign  []uint8
	Scale uint32
}

// New validates and copies the provided vectors into a fresh tensor.
func New(shape []int, mag []uint64, sgn []uint8, scale uint32) (*Tensor, error) {
	n, err := checkShape(shape, mag, sgn)
	if err != nil {
		return nil, err
	}
	t := &Tensor{
		Shape: append([]int(nil), shape...),
		Mag:   make([]uint64, n),
		Sign:  make([]uint8, n),
		Scale: scale,
	}
	copy(t.Mag, mag)
	copy(t.Sign, sgn)
	return t, nil
}

// Wrap builds a tensor taking ownership of the provided slices without
// copying. Callers must not reuse the slices afterwards.
func Wrap(shape []int, mag []uint64, sgn []uint8, scale uint32) (*Tensor, error) {
	if _, err := checkShape(shape, mag, sgn); err != nil {
		return nil, err
	}
	return &Tensor{Shape: shape, Mag: mag, Sign: sgn, Scale: scale}, nil
}

// Zeros builds a zero-valued tensor of the given shape.
func Zeros(shape []int, scale uint32) (*Tensor, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("dimension %d: %w", d, ErrShapeMismatch)
		}
		n *= d
	}
	return &Tensor{
		Shape: append([]int(nil), shape...),
		Mag:   make([]uint64, n),
		Sign:  make([]uint8, n),
		Scale: scale,
	}, nil
}

func checkShape(shape []int, mag []uint64, sgn []uint8) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("dimension %d: %w", d, ErrShapeMismatch)
		}
		n *= d
	}
	if len(mag) != len(sgn) {
		return 0, fmt.Errorf("magnitude length %d vs sign length %d: %w", len(mag), len(sgn), ErrShapeMismatch)
	}
	if len(mag) != n {
		return 0, fmt.Errorf("vector length %d vs shape product %d: %w", len(mag), n, ErrShapeMismatch)
	}
	for i, s := range sgn {
		if s > SignNegative {
			return 0, fmt.Errorf("sign byte %d at element %d, want 0 or 1: %w", s, i, ErrShapeMismatch)
		}
	}
	return n, nil
}

// NumElements returns the element count, the product of the shape.
func (t *Tensor) NumElements() int {
	return len(t.Mag)
}

// At returns the sign and magnitude of the flat element i.
func (t *Tensor) At(i int) (uint8, uint64, error) {
	if i < 0 || i >= len(t.Mag) {
		return 0, 0, fmt.Errorf("element %d of %d: %w", i, len(t.Mag), ErrRange)
	}
	return t.Sign[i], t.Mag[i], nil
}

// Argmax returns the index of the largest non-negative element. Ties break
// toward the lowest index. The second return is false when every element is
// negative; the index is then 0, read as "no confident class".
func (t *Tensor) Argmax() (int, bool) {
	best := 0
	bestMag := uint64(0)
	found := false
	for i, m := range t.Mag {
		if t.Sign[i] == SignNegative {
			continue
		}
		if !found || m > bestMag {
			best = i
			bestMag = m
			found = true
		}
	}
	return best, found
}

// SameScale reports whether two tensors share a scale.
func (t *Tensor) SameScale(o *Tensor) bool {
	return t.Scale == o.Scale
}
