package partial

import (
	"fmt"

	"github.com/23skdu/longbow-bodkin/internal/fixed"
	"github.com/23skdu/longbow-bodkin/internal/graph"
)

// ChunkCompute is the output-range strategy: it evaluates output indices
// [start,end) of one dense layer against the full input and overwrites the
// accumulator slots with finished, activated, rescaled elements. Disjoint
// ranges may run in any order, and replaying a range with the same input
// rewrites the same values.
func (s *Set) ChunkCompute(key string, input *fixed.Tensor, layer *graph.Layer, start, end int, act graph.Activation) error {
	a, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := a.checkLayer(layer); err != nil {
		return err
	}
	if len(input.Shape) != 2 || input.Shape[0] != 1 || input.Shape[1] != a.In {
		return fmt.Errorf("input shape %v, want [1 %d]: %w", input.Shape, a.In, fixed.ErrShapeMismatch)
	}
	if input.Scale != a.Scale {
		return fmt.Errorf("input scale %d vs accumulator scale %d: %w", input.Scale, a.Scale, fixed.ErrScaleMismatch)
	}
	if start < 0 || start >= end || end > a.Out {
		return fmt.Errorf("chunk [%d,%d) of %d outputs: %w", start, end, a.Out, fixed.ErrRange)
	}

	factor, err := fixed.ScaleFactor(a.Scale)
	if err != nil {
		return err
	}

	width := end - start
	stagedMag := make([]uint64, width)
	stagedSgn := make([]uint8, width)
	for j := start; j < end; j++ {
		sgn, mag, err := graph.DenseElement(input, 0, layer.Weight, layer.Bias, j, factor, act)
		if err != nil {
			return fmt.Errorf("accumulator %q: %w", key, err)
		}
		stagedSgn[j-start] = sgn
		stagedMag[j-start] = mag
	}
	copy(a.Mag[start:end], stagedMag)
	copy(a.Sign[start:end], stagedSgn)
	return nil
}

// AccumulateRange is the input-range strategy: it folds the signed partial
// products of one input slice into the running scale-2s sums at output
// indices [outStart,outEnd). No bias, activation, or rescale happens here;
// FinalizeIncremental applies those once after every input range has been
// accumulated. Ranges must cover each (input, output) pair exactly once:
// the accumulator cannot tell a replay from a new range, and overlapping
// calls corrupt the sums.
func (s *Set) AccumulateRange(key string, inMag []uint64, inSgn []uint8, scale uint32, inStart int, layer *graph.Layer, outStart, outEnd int) error {
	a, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := a.checkLayer(layer); err != nil {
		return err
	}
	if len(inMag) != len(inSgn) {
		return fmt.Errorf("input magnitude length %d vs sign length %d: %w", len(inMag), len(inSgn), fixed.ErrShapeMismatch)
	}
	if len(inMag) == 0 {
		return fmt.Errorf("empty input range: %w", fixed.ErrRange)
	}
	for i, sg := range inSgn {
		if sg > fixed.SignNegative {
			return fmt.Errorf("sign byte %d at input %d, want 0 or 1: %w", sg, i, fixed.ErrShapeMismatch)
		}
	}
	if scale != a.Scale {
		return fmt.Errorf("input scale %d vs accumulator scale %d: %w", scale, a.Scale, fixed.ErrScaleMismatch)
	}
	if inStart < 0 || inStart+len(inMag) > a.In {
		return fmt.Errorf("input range [%d,%d) of %d inputs: %w", inStart, inStart+len(inMag), a.In, fixed.ErrRange)
	}
	if outStart < 0 || outStart >= outEnd || outEnd > a.Out {
		return fmt.Errorf("output range [%d,%d) of %d outputs: %w", outStart, outEnd, a.Out, fixed.ErrRange)
	}

	width := outEnd - outStart
	stagedMag := make([]uint64, width)
	stagedSgn := make([]uint8, width)
	copy(stagedMag, a.Mag[outStart:outEnd])
	copy(stagedSgn, a.Sign[outStart:outEnd])

	w := layer.Weight
	for j := outStart; j < outEnd; j++ {
		accS, accM := stagedSgn[j-outStart], stagedMag[j-outStart]
		for i := 0; i < len(inMag); i++ {
			row := inStart + i
			ps, pm, err := fixed.MulSigned(inSgn[i], inMag[i], w.Sign[row*a.Out+j], w.Mag[row*a.Out+j])
			if err != nil {
				return fmt.Errorf("accumulator %q output %d input %d: %w", key, j, row, err)
			}
			accS, accM, err = fixed.AddSigned(accS, accM, ps, pm)
			if err != nil {
				return fmt.Errorf("accumulator %q output %d input %d: %w", key, j, row, err)
			}
		}
		stagedSgn[j-outStart] = accS
		stagedMag[j-outStart] = accM
	}
	copy(a.Mag[outStart:outEnd], stagedMag)
	copy(a.Sign[outStart:outEnd], stagedSgn)
	return nil
}
