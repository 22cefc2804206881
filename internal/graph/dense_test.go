package graph

import (
	"errors"
	"testing"

	"github.com/23skdu/longbow-bodkin/internal/fixed"
)

// scenarioLayers builds the two-layer classifier used across the test
// suite: 3 inputs -> 2 hidden (ReLU) -> 1 output, all at scale 2.
func scenarioLayers(t *testing.T) *Graph {
	t.Helper()
	g, err := NewGraph(2)
	if err != nil {
		t.Fatalf("NewGraph() error = %v", err)
	}
	if _, err := g.AddDense("dense1", 3, 2,
		[]uint64{1, 2, 3, 4, 5, 6}, []uint8{0, 0, 0, 0, 0, 0},
		[]uint64{1, 1}, []uint8{0, 0}); err != nil {
		t.Fatalf("AddDense(dense1) error = %v", err)
	}
	if _, err := g.AddDense("dense2", 2, 1,
		[]uint64{7, 8}, []uint8{0, 0},
		[]uint64{1}, []uint8{0}); err != nil {
		t.Fatalf("AddDense(dense2) error = %v", err)
	}
	return g
}

func TestDenseHiddenLayer(t *testing.T) {
	g := scenarioLayers(t)
	l, err := g.Layer("dense1")
	if err != nil {
		t.Fatalf("Layer() error = %v", err)
	}

	input, err := fixed.New([]int{1, 3}, []uint64{100, 200, 300}, []uint8{0, 0, 0}, 2)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	out, err := l.Apply(input, ActivationReLU)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	wantMag := []uint64{23, 29}
	for i, want := range wantMag {
		s, m, _ := out.At(i)
		if s != 0 || m != want {
			t.Errorf("output[%d] = (%d, %d), want (0, %d)", i, s, m, want)
		}
	}
	if out.Scale != 2 {
		t.Errorf("output scale = %d, want 2", out.Scale)
	}
	if len(out.Shape) != 2 || out.Shape[0] != 1 || out.Shape[1] != 2 {
		t.Errorf("output shape = %v, want [1 2]", out.Shape)
	}
}

func TestDenseOutputLayer(t *testing.T) {
	g := scenarioLayers(t)
	l, err := g.Layer("dense2")
	if err != nil {
		t.Fatalf("Layer() error = %v", err)
	}

	input, err := fixed.New([]int{1, 2}, []uint64{23, 29}, []uint8{0, 0}, 2)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	out, err := l.Apply(input, ActivationNone)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	s, m, _ := out.At(0)
	if s != 0 || m != 4 {
		t.Errorf("output[0] = (%d, %d), want (0, 4)", s, m)
	}
	if idx, ok := out.Argmax(); idx != 0 || !ok {
		t.Errorf("Argmax() = (%d, %v), want (0, true)", idx, ok)
	}
}

func TestDenseReLUClampsNegatives(t *testing.T) {
	g, err := NewGraph(2)
	if err != nil {
		t.Fatalf("NewGraph() error = %v", err)
	}
	// Negative weights drive the accumulator below zero.
	l, err := g.AddDense("neg", 2, 1,
		[]uint64{5, 5}, []uint8{1, 1},
		[]uint64{1}, []uint8{0})
	if err != nil {
		t.Fatalf("AddDense() error = %v", err)
	}
	input, err := fixed.New([]int{1, 2}, []uint64{100, 100}, []uint8{0, 0}, 2)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	relu, err := l.Apply(input, ActivationReLU)
	if err != nil {
		t.Fatalf("Apply(relu) error = %v", err)
	}
	if s, m, _ := relu.At(0); s != 0 || m != 0 {
		t.Errorf("relu output = (%d, %d), want (0, 0)", s, m)
	}

	ident, err := l.Apply(input, ActivationNone)
	if err != nil {
		t.Fatalf("Apply(none) error = %v", err)
	}
	// -5*100 - 5*100 + 100 = -900 at scale 4, -9 after rescale.
	if s, m, _ := ident.At(0); s != 1 || m != 9 {
		t.Errorf("identity output = (%d, %d), want (1, 9)", s, m)
	}
}

func TestDenseBatchRows(t *testing.T) {
	g := scenarioLayers(t)
	l, err := g.Layer("dense1")
	if err != nil {
		t.Fatalf("Layer() error = %v", err)
	}

	input, err := fixed.New([]int{2, 3},
		[]uint64{100, 200, 300, 100, 200, 300},
		[]uint8{0, 0, 0, 0, 0, 0}, 2)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	out, err := l.Apply(input, ActivationReLU)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	want := []uint64{23, 29, 23, 29}
	for i, w := range want {
		if _, m, _ := out.At(i); m != w {
			t.Errorf("output[%d] = %d, want %d", i, m, w)
		}
	}
}

func TestDensePreconditions(t *testing.T) {
	g := scenarioLayers(t)
	l, _ := g.Layer("dense1")

	narrow, _ := fixed.New([]int{1, 2}, []uint64{1, 2}, []uint8{0, 0}, 2)
	if _, err := l.Apply(narrow, ActivationReLU); !errors.Is(err, fixed.ErrShapeMismatch) {
		t.Errorf("narrow input error = %v, want ErrShapeMismatch", err)
	}

	offScale, _ := fixed.New([]int{1, 3}, []uint64{1, 2, 3}, []uint8{0, 0, 0}, 3)
	if _, err := l.Apply(offScale, ActivationReLU); !errors.Is(err, fixed.ErrScaleMismatch) {
		t.Errorf("off-scale input error = %v, want ErrScaleMismatch", err)
	}

	flat, _ := fixed.New([]int{3}, []uint64{1, 2, 3}, []uint8{0, 0, 0}, 2)
	if _, err := l.Apply(flat, ActivationReLU); !errors.Is(err, fixed.ErrShapeMismatch) {
		t.Errorf("rank-1 input error = %v, want ErrShapeMismatch", err)
	}

	good, _ := fixed.New([]int{1, 3}, []uint64{1, 2, 3}, []uint8{0, 0, 0}, 2)
	if _, err := l.Apply(good, Activation(9)); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("bad activation error = %v, want ErrInvalidConfig", err)
	}
}

func TestDenseOverflowSurfaces(t *testing.T) {
	g, err := NewGraph(1)
	if err != nil {
		t.Fatalf("NewGraph() error = %v", err)
	}
	big := uint64(1) << 40
	l, err := g.AddDense("big", 1, 1, []uint64{big}, []uint8{0}, []uint64{0}, []uint8{0})
	if err != nil {
		t.Fatalf("AddDense() error = %v", err)
	}
	input, err := fixed.New([]int{1, 1}, []uint64{big}, []uint8{0}, 1)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := l.Apply(input, ActivationNone); !errors.Is(err, fixed.ErrOverflow) {
		t.Errorf("Apply() error = %v, want ErrOverflow", err)
	}
}
