// Package partial maintains persistent per-layer accumulators so that one
// dense layer evaluation can be split across independently invoked,
// bounded-size chunk calls.
//
// Nothing in this package locks: a single accumulator expects one writer,
// and callers drive different accumulators in parallel freely. Every call
// validates its preconditions before touching state and stages its writes,
// so a failed call leaves the accumulator unchanged.
package partial

import (
	"errors"
	"fmt"

	"github.com/23skdu/longbow-bodkin/internal/fixed"
	"github.com/23skdu/longbow-bodkin/internal/graph"
)

var ErrNotFound = errors.New("partial: accumulator not found")

// Accumulator holds the in-progress output of one layer between chunk
// calls. Under output-range chunking the slots hold finished scale-s
// elements; under input-range accumulation they hold raw scale-2s sums
// until FinalizeIncremental. Slots start zero and are never cleared.
type Accumulator struct {
	Key       string
	LayerName string
	In        int
	Out       int
	Scale     uint32
	Mag       []uint64
	Sign      []uint8
}

// Set is a keyed store of accumulators, the explicit handle chunk calls
// address state through.
type Set struct {
	accs  map[string]*Accumulator
	order []string
}

func NewSet() *Set {
	return &Set{accs: make(map[string]*Accumulator)}
}

// Create registers a zero-initialized accumulator under key.
func (s *Set) Create(key, layerName string, out, in int, scale uint32) (*Accumulator, error) {
	if key == "" {
		return nil, fmt.Errorf("empty accumulator key: %w", graph.ErrInvalidConfig)
	}
	if _, exists := s.accs[key]; exists {
		return nil, fmt.Errorf("duplicate accumulator %q: %w", key, graph.ErrInvalidConfig)
	}
	if out <= 0 || in <= 0 {
		return nil, fmt.Errorf("accumulator %q dims %dx%d, want positive: %w", key, in, out, graph.ErrInvalidConfig)
	}
	a := &Accumulator{
		Key:       key,
		LayerName: layerName,
		In:        in,
		Out:       out,
		Scale:     scale,
		Mag:       make([]uint64, out),
		Sign:      make([]uint8, out),
	}
	s.accs[key] = a
	s.order = append(s.order, key)
	return a, nil
}

// Get looks an accumulator up by key.
func (s *Set) Get(key string) (*Accumulator, error) {
	a, ok := s.accs[key]
	if !ok {
		return nil, fmt.Errorf("accumulator %q: %w", key, ErrNotFound)
	}
	return a, nil
}

func (s *Set) Len() int { return len(s.accs) }

// Keys returns the accumulator keys in creation order.
func (s *Set) Keys() []string {
	return append([]string(nil), s.order...)
}

// BuildForGraph creates one accumulator per layer except the last, keyed by
// layer name. The last layer's small output is conventionally evaluated
// whole with an immediate argmax, so it gets no accumulator.
func BuildForGraph(g *graph.Graph) (*Set, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	s := NewSet()
	for i := 0; i < g.NumLayers()-1; i++ {
		l, err := g.LayerAt(i)
		if err != nil {
			return nil, err
		}
		if _, err := s.Create(l.Name, l.Name, l.Out, l.In, g.Scale()); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// checkLayer verifies a chunk call's layer matches the accumulator it
// targets.
func (a *Accumulator) checkLayer(layer *graph.Layer) error {
	if layer.Out != a.Out || layer.In != a.In {
		return fmt.Errorf("layer %q is %dx%d, accumulator %q is %dx%d: %w",
			layer.Name, layer.In, layer.Out, a.Key, a.In, a.Out, fixed.ErrShapeMismatch)
	}
	if layer.Weight.Scale != a.Scale {
		return fmt.Errorf("layer %q scale %d vs accumulator %q scale %d: %w",
			layer.Name, layer.Weight.Scale, a.Key, a.Scale, fixed.ErrScaleMismatch)
	}
	return nil
}
