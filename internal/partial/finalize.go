package partial

import (
	"fmt"

	"github.com/23skdu/longbow-bodkin/internal/fixed"
	"github.com/23skdu/longbow-bodkin/internal/graph"
)

// Finalize packages the accumulator's current contents as a [1,out] tensor
// at the recorded scale, with no further transform. Slots no chunk ever
// wrote are zero; nothing tracks coverage, so finalizing early simply
// returns those zeros. The accumulator is read, not cleared.
func (s *Set) Finalize(key string) (*fixed.Tensor, error) {
	a, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	return fixed.New([]int{1, a.Out}, a.Mag, a.Sign, a.Scale)
}

// FinalizeIncremental completes an input-range accumulation: it applies the
// layer bias (lifted by 10^s), the activation, and the rescale back to
// scale s exactly once over the raw scale-2s sums, and packages the result
// as a [1,out] tensor. The accumulator itself is not modified, so the call
// is repeatable. Running it against output-range chunks is a caller error:
// those slots already carry finished scale-s values.
func (s *Set) FinalizeIncremental(key string, layer *graph.Layer, act graph.Activation) (*fixed.Tensor, error) {
	a, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	if err := a.checkLayer(layer); err != nil {
		return nil, err
	}

	factor, err := fixed.ScaleFactor(a.Scale)
	if err != nil {
		return nil, err
	}

	outMag := make([]uint64, a.Out)
	outSgn := make([]uint8, a.Out)
	for j := 0; j < a.Out; j++ {
		bs, bm, err := fixed.MulSigned(layer.Bias.Sign[j], layer.Bias.Mag[j], fixed.SignPositive, factor)
		if err != nil {
			return nil, fmt.Errorf("accumulator %q output %d bias: %w", key, j, err)
		}
		sgn, mag, err := fixed.AddSigned(a.Sign[j], a.Mag[j], bs, bm)
		if err != nil {
			return nil, fmt.Errorf("accumulator %q output %d bias: %w", key, j, err)
		}
		sgn, mag = act.Apply(sgn, mag)
		outSgn[j] = sgn
		outMag[j] = fixed.Rescale(mag, factor)
	}
	return fixed.Wrap([]int{1, a.Out}, outMag, outSgn, a.Scale)
}
