// Package modelfile reads and writes the JSON model manifest: per-layer
// weight and bias vectors in the wire form (magnitude, sign) plus one
// scale shared by every layer.
//
// Sign vectors are declared []int rather than []uint8 because
// encoding/json renders []uint8 as base64, and the manifest stays a
// plain array of 0/1 for other tooling to read.
package modelfile

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/23skdu/longbow-bodkin/internal/graph"
)

// LayerSpec is one dense layer's stored form. Weight vectors are flat
// row-major [in,out], bias vectors are [out].
type LayerSpec struct {
	Name       string   `json:"name"`
	In         int      `json:"in"`
	Out        int      `json:"out"`
	WeightMag  []uint64 `json:"weight_magnitude"`
	WeightSign []int    `json:"weight_sign"`
	BiasMag    []uint64 `json:"bias_magnitude"`
	BiasSign   []int    `json:"bias_sign"`
}

// Manifest is the on-disk model.
type Manifest struct {
	Name   string      `json:"name"`
	Scale  uint32      `json:"scale"`
	Layers []LayerSpec `json:"layers"`
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates a manifest from a reader.
func Parse(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Save writes the manifest as indented JSON.
func (m *Manifest) Save(path string) error {
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Validate checks the manifest describes a loadable model. Dimension
// chaining is left to graph.Validate at build time.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("empty model name: %w", graph.ErrInvalidConfig)
	}
	if m.Scale == 0 || m.Scale > graph.MaxScale {
		return fmt.Errorf("scale %d, want 1..%d: %w", m.Scale, graph.MaxScale, graph.ErrInvalidConfig)
	}
	if len(m.Layers) == 0 {
		return fmt.Errorf("empty layer list: %w", graph.ErrInvalidConfig)
	}
	for i, l := range m.Layers {
		if l.Name == "" {
			return fmt.Errorf("layer %d has no name: %w", i, graph.ErrInvalidConfig)
		}
		if l.In <= 0 || l.Out <= 0 {
			return fmt.Errorf("layer %q dims %dx%d, want positive: %w", l.Name, l.In, l.Out, graph.ErrInvalidConfig)
		}
		if len(l.WeightMag) != l.In*l.Out || len(l.WeightSign) != l.In*l.Out {
			return fmt.Errorf("layer %q weight vectors %d/%d, want %d: %w",
				l.Name, len(l.WeightMag), len(l.WeightSign), l.In*l.Out, graph.ErrInvalidConfig)
		}
		if len(l.BiasMag) != l.Out || len(l.BiasSign) != l.Out {
			return fmt.Errorf("layer %q bias vectors %d/%d, want %d: %w",
				l.Name, len(l.BiasMag), len(l.BiasSign), l.Out, graph.ErrInvalidConfig)
		}
		if err := checkSigns(l.Name, "weight", l.WeightSign); err != nil {
			return err
		}
		if err := checkSigns(l.Name, "bias", l.BiasSign); err != nil {
			return err
		}
	}
	return nil
}

// Build constructs the immutable graph the manifest describes.
func (m *Manifest) Build() (*graph.Graph, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	g, err := graph.NewGraph(m.Scale)
	if err != nil {
		return nil, err
	}
	for _, l := range m.Layers {
		if _, err := g.AddDense(l.Name, l.In, l.Out,
			l.WeightMag, signBytes(l.WeightSign),
			l.BiasMag, signBytes(l.BiasSign)); err != nil {
			return nil, err
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// FromGraph captures a built graph back into manifest form, for
// converters and round-trip tooling.
func FromGraph(g *graph.Graph, name string) *Manifest {
	m := &Manifest{Name: name, Scale: g.Scale()}
	for _, l := range g.Layers() {
		m.Layers = append(m.Layers, LayerSpec{
			Name:       l.Name,
			In:         l.In,
			Out:        l.Out,
			WeightMag:  append([]uint64(nil), l.Weight.Mag...),
			WeightSign: signInts(l.Weight.Sign),
			BiasMag:    append([]uint64(nil), l.Bias.Mag...),
			BiasSign:   signInts(l.Bias.Sign),
		})
	}
	return m
}

func checkSigns(layer, vector string, signs []int) error {
	for i, s := range signs {
		if s != 0 && s != 1 {
			return fmt.Errorf("layer %q %s sign %d at index %d, want 0 or 1: %w",
				layer, vector, s, i, graph.ErrInvalidConfig)
		}
	}
	return nil
}

func signBytes(signs []int) []uint8 {
	out := make([]uint8, len(signs))
	for i, s := range signs {
		out[i] = uint8(s)
	}
	return out
}

func signInts(signs []uint8) []int {
	out := make([]int, len(signs))
	for i, s := range signs {
		out[i] = int(s)
	}
	return out
}
