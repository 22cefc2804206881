// Package graph models a feed-forward network as an ordered list of dense
// layers sharing one fixed-point scale, and evaluates dense forward passes
// over them.
package graph

import (
	"errors"
	"fmt"

	"github.com/23skdu/longbow-bodkin/internal/fixed"
)

// MaxScale bounds the per-model scale so that doubled-scale accumulators
// (products of two scale-s values live at scale 2s) keep 10^2s well inside
// uint64 range.
const MaxScale = 9

var (
	ErrNotFound         = errors.New("graph: layer not found")
	ErrInvalidConfig    = errors.New("graph: invalid configuration")
	ErrUnsupportedLayer = errors.New("graph: layer kind not supported")
)

// Layer is one dense layer. Weight is [In,Out] row-major, Bias is [Out],
// both at the graph scale and immutable after construction.
type Layer struct {
	Name   string
	In     int
	Out    int
	Weight *fixed.Tensor
	Bias   *fixed.Tensor
}

// Graph is an ordered collection of layers sharing one scale. Layers are
// appended at load time; afterwards the graph is read-only and safe for
// concurrent readers.
type Graph struct {
	layers []*Layer
	byName map[string]int
	scale  uint32
}

// NewGraph builds an empty graph at the given scale. Scale zero carries no
// fractional digits to compute with and anything above MaxScale risks
// overflow in doubled-scale accumulation, so both are rejected.
func NewGraph(scale uint32) (*Graph, error) {
	if scale == 0 || scale > MaxScale {
		return nil, fmt.Errorf("scale %d, want 1..%d: %w", scale, MaxScale, ErrInvalidConfig)
	}
	return &Graph{byName: make(map[string]int), scale: scale}, nil
}

// AddDense appends a dense layer from flat weight and bias vectors.
// The weight vector is row-major [in,out]: element (i,j) sits at i*out+j.
func (g *Graph) AddDense(name string, in, out int, wMag []uint64, wSgn []uint8, bMag []uint64, bSgn []uint8) (*Layer, error) {
	if name == "" {
		return nil, fmt.Errorf("empty layer name: %w", ErrInvalidConfig)
	}
	if _, exists := g.byName[name]; exists {
		return nil, fmt.Errorf("duplicate layer %q: %w", name, ErrInvalidConfig)
	}
	if in <= 0 || out <= 0 {
		return nil, fmt.Errorf("layer %q dims %dx%d, want positive: %w", name, in, out, ErrInvalidConfig)
	}
	if len(wMag) != in*out || len(wSgn) != in*out {
		return nil, fmt.Errorf("layer %q weight vectors %d/%d, want %d: %w",
			name, len(wMag), len(wSgn), in*out, ErrInvalidConfig)
	}
	if len(bMag) != out || len(bSgn) != out {
		return nil, fmt.Errorf("layer %q bias vectors %d/%d, want %d: %w",
			name, len(bMag), len(bSgn), out, ErrInvalidConfig)
	}

	weight, err := fixed.New([]int{in, out}, wMag, wSgn, g.scale)
	if err != nil {
		return nil, fmt.Errorf("layer %q weight: %w", name, err)
	}
	bias, err := fixed.New([]int{out}, bMag, bSgn, g.scale)
	if err != nil {
		return nil, fmt.Errorf("layer %q bias: %w", name, err)
	}

	l := &Layer{Name: name, In: in, Out: out, Weight: weight, Bias: bias}
	g.byName[name] = len(g.layers)
	g.layers = append(g.layers, l)
	return l, nil
}

// AddConv2D is a stub for convolutional layers, which this engine does not
// evaluate.
func (g *Graph) AddConv2D(name string, inChannels, outChannels, kernel int) error {
	return fmt.Errorf("conv2d layer %q: %w", name, ErrUnsupportedLayer)
}

// Layer looks a layer up by name.
func (g *Graph) Layer(name string) (*Layer, error) {
	i, ok := g.byName[name]
	if !ok {
		return nil, fmt.Errorf("layer %q: %w", name, ErrNotFound)
	}
	return g.layers[i], nil
}

// LayerAt looks a layer up by position.
func (g *Graph) LayerAt(i int) (*Layer, error) {
	if i < 0 || i >= len(g.layers) {
		return nil, fmt.Errorf("layer index %d of %d: %w", i, len(g.layers), ErrNotFound)
	}
	return g.layers[i], nil
}

// LayerIndex reports a named layer's position.
func (g *Graph) LayerIndex(name string) (int, error) {
	i, ok := g.byName[name]
	if !ok {
		return 0, fmt.Errorf("layer %q: %w", name, ErrNotFound)
	}
	return i, nil
}

func (g *Graph) NumLayers() int { return len(g.layers) }

func (g *Graph) Scale() uint32 { return g.scale }

// InputDim is the first layer's input width, 0 for an empty graph.
func (g *Graph) InputDim() int {
	if len(g.layers) == 0 {
		return 0
	}
	return g.layers[0].In
}

// OutputDim is the last layer's output width, 0 for an empty graph.
func (g *Graph) OutputDim() int {
	if len(g.layers) == 0 {
		return 0
	}
	return g.layers[len(g.layers)-1].Out
}

// Layers returns the layers in order. The slice is a copy; the layers are
// shared and must not be mutated.
func (g *Graph) Layers() []*Layer {
	return append([]*Layer(nil), g.layers...)
}

// Validate checks the graph is a usable model: at least one layer and
// adjacent dimensions chaining output to input.
func (g *Graph) Validate() error {
	if len(g.layers) == 0 {
		return fmt.Errorf("empty layer list: %w", ErrInvalidConfig)
	}
	for i := 0; i < len(g.layers)-1; i++ {
		if g.layers[i].Out != g.layers[i+1].In {
			return fmt.Errorf("layer %q out %d does not feed layer %q in %d: %w",
				g.layers[i].Name, g.layers[i].Out, g.layers[i+1].Name, g.layers[i+1].In, ErrInvalidConfig)
		}
	}
	return nil
}
