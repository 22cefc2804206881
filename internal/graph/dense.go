package graph

import (
	"fmt"

	"github.com/23skdu/longbow-bodkin/internal/fixed"
)

// Dense runs one forward pass: activation(input x weight + bias), entirely
// in sign-magnitude fixed point. input is [batch,in], weight [in,out], bias
// [out], all at one scale s. Products and the bias (lifted by 10^s) are
// accumulated at scale 2s, the activation runs on the 2s accumulator, and
// the result is truncated back to scale s. Cost is batch*out*in signed
// operations.
func Dense(input, weight, bias *fixed.Tensor, act Activation) (*fixed.Tensor, error) {
	if err := checkDenseOperands(input, weight, bias, act); err != nil {
		return nil, err
	}

	s := input.Scale
	factor, err := fixed.ScaleFactor(s)
	if err != nil {
		return nil, err
	}

	batch := input.Shape[0]
	out := weight.Shape[1]

	outMag := make([]uint64, batch*out)
	outSgn := make([]uint8, batch*out)
	for b := 0; b < batch; b++ {
		for j := 0; j < out; j++ {
			sgn, mag, err := DenseElement(input, b, weight, bias, j, factor, act)
			if err != nil {
				return nil, err
			}
			outSgn[b*out+j] = sgn
			outMag[b*out+j] = mag
		}
	}
	return fixed.Wrap([]int{batch, out}, outMag, outSgn, s)
}

// DenseElement computes one finished output element: the scale-2s signed
// accumulation over input row b against weight column j, plus the lifted
// bias, activated and rescaled back to scale s. The chunked evaluation path
// uses the same element computation, which is what makes chunked results
// identical to a whole-layer pass.
func DenseElement(input *fixed.Tensor, b int, weight, bias *fixed.Tensor, j int, factor uint64, act Activation) (uint8, uint64, error) {
	in := weight.Shape[0]
	out := weight.Shape[1]
	row := b * in

	accS, accM := fixed.SignPositive, uint64(0)
	for i := 0; i < in; i++ {
		ps, pm, err := fixed.MulSigned(input.Sign[row+i], input.Mag[row+i], weight.Sign[i*out+j], weight.Mag[i*out+j])
		if err != nil {
			return 0, 0, fmt.Errorf("row %d output %d input %d: %w", b, j, i, err)
		}
		accS, accM, err = fixed.AddSigned(accS, accM, ps, pm)
		if err != nil {
			return 0, 0, fmt.Errorf("row %d output %d input %d: %w", b, j, i, err)
		}
	}

	// Bias lives at scale s; lifting it by 10^s joins it to the scale-2s
	// accumulator.
	bs, bm, err := fixed.MulSigned(bias.Sign[j], bias.Mag[j], fixed.SignPositive, factor)
	if err != nil {
		return 0, 0, fmt.Errorf("row %d output %d bias: %w", b, j, err)
	}
	accS, accM, err = fixed.AddSigned(accS, accM, bs, bm)
	if err != nil {
		return 0, 0, fmt.Errorf("row %d output %d bias: %w", b, j, err)
	}

	accS, accM = act.Apply(accS, accM)
	return accS, fixed.Rescale(accM, factor), nil
}

// Apply evaluates the layer against an input tensor.
func (l *Layer) Apply(input *fixed.Tensor, act Activation) (*fixed.Tensor, error) {
	return Dense(input, l.Weight, l.Bias, act)
}

func checkDenseOperands(input, weight, bias *fixed.Tensor, act Activation) error {
	if !act.valid() {
		return fmt.Errorf("activation %d: %w", act, ErrInvalidConfig)
	}
	if len(input.Shape) != 2 {
		return fmt.Errorf("input rank %d, want 2: %w", len(input.Shape), fixed.ErrShapeMismatch)
	}
	if len(weight.Shape) != 2 {
		return fmt.Errorf("weight rank %d, want 2: %w", len(weight.Shape), fixed.ErrShapeMismatch)
	}
	if len(bias.Shape) != 1 {
		return fmt.Errorf("bias rank %d, want 1: %w", len(bias.Shape), fixed.ErrShapeMismatch)
	}
	if input.Shape[1] != weight.Shape[0] {
		return fmt.Errorf("input width %d vs weight rows %d: %w", input.Shape[1], weight.Shape[0], fixed.ErrShapeMismatch)
	}
	if weight.Shape[1] != bias.Shape[0] {
		return fmt.Errorf("weight cols %d vs bias length %d: %w", weight.Shape[1], bias.Shape[0], fixed.ErrShapeMismatch)
	}
	if input.Scale != weight.Scale || weight.Scale != bias.Scale {
		return fmt.Errorf("scales input=%d weight=%d bias=%d: %w", input.Scale, weight.Scale, bias.Scale, fixed.ErrScaleMismatch)
	}
	return nil
}
