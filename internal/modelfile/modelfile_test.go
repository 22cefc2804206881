package modelfile

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/23skdu/longbow-bodkin/internal/graph"
)

func scenarioManifest() *Manifest {
	return &Manifest{
		Name:  "toynet",
		Scale: 2,
		Layers: []LayerSpec{
			{
				Name: "dense1", In: 3, Out: 2,
				WeightMag:  []uint64{1, 2, 3, 4, 5, 6},
				WeightSign: []int{0, 0, 0, 0, 0, 0},
				BiasMag:    []uint64{1, 1},
				BiasSign:   []int{0, 0},
			},
			{
				Name: "dense2", In: 2, Out: 1,
				WeightMag:  []uint64{7, 8},
				WeightSign: []int{0, 0},
				BiasMag:    []uint64{1},
				BiasSign:   []int{0},
			},
		},
	}
}

func TestParse(t *testing.T) {
	doc := `{
		"name": "toynet",
		"scale": 2,
		"layers": [
			{"name": "dense1", "in": 3, "out": 2,
			 "weight_magnitude": [1,2,3,4,5,6], "weight_sign": [0,0,0,0,0,0],
			 "bias_magnitude": [1,1], "bias_sign": [0,0]},
			{"name": "dense2", "in": 2, "out": 1,
			 "weight_magnitude": [7,8], "weight_sign": [0,0],
			 "bias_magnitude": [1], "bias_sign": [0]}
		]
	}`

	m, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Name != "toynet" || m.Scale != 2 || len(m.Layers) != 2 {
		t.Errorf("Parse = %q scale %d with %d layers, want toynet/2/2", m.Name, m.Scale, len(m.Layers))
	}
	if m.Layers[0].WeightMag[5] != 6 {
		t.Errorf("weight magnitude round-trip lost values: %v", m.Layers[0].WeightMag)
	}
}

func TestParseRejectsBadJSON(t *testing.T) {
	if _, err := Parse(strings.NewReader("{not json")); err == nil {
		t.Fatal("Parse accepted malformed JSON")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Manifest)
	}{
		{"empty name", func(m *Manifest) { m.Name = "" }},
		{"zero scale", func(m *Manifest) { m.Scale = 0 }},
		{"scale too large", func(m *Manifest) { m.Scale = graph.MaxScale + 1 }},
		{"no layers", func(m *Manifest) { m.Layers = nil }},
		{"unnamed layer", func(m *Manifest) { m.Layers[0].Name = "" }},
		{"zero in dim", func(m *Manifest) { m.Layers[0].In = 0 }},
		{"weight length", func(m *Manifest) { m.Layers[0].WeightMag = m.Layers[0].WeightMag[:4] }},
		{"sign length", func(m *Manifest) { m.Layers[1].BiasSign = nil }},
		{"sign out of range", func(m *Manifest) { m.Layers[0].WeightSign[2] = 2 }},
		{"negative sign", func(m *Manifest) { m.Layers[1].WeightSign[0] = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := scenarioManifest()
			tt.mutate(m)
			if err := m.Validate(); !errors.Is(err, graph.ErrInvalidConfig) {
				t.Errorf("Validate error = %v, want ErrInvalidConfig", err)
			}
		})
	}

	if err := scenarioManifest().Validate(); err != nil {
		t.Errorf("valid manifest rejected: %v", err)
	}
}

func TestBuild(t *testing.T) {
	g, err := scenarioManifest().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.NumLayers() != 2 || g.Scale() != 2 {
		t.Errorf("built graph has %d layers at scale %d, want 2 at 2", g.NumLayers(), g.Scale())
	}
	if g.InputDim() != 3 || g.OutputDim() != 1 {
		t.Errorf("built graph dims %d->%d, want 3->1", g.InputDim(), g.OutputDim())
	}
	l, err := g.Layer("dense1")
	if err != nil {
		t.Fatalf("Layer: %v", err)
	}
	if l.Weight.Mag[5] != 6 || l.Bias.Mag[0] != 1 {
		t.Errorf("built layer weights differ from manifest")
	}
}

func TestBuildRejectsBrokenChain(t *testing.T) {
	m := scenarioManifest()
	m.Layers[1].In = 3
	m.Layers[1].WeightMag = []uint64{7, 8, 9}
	m.Layers[1].WeightSign = []int{0, 0, 0}

	if _, err := m.Build(); !errors.Is(err, graph.ErrInvalidConfig) {
		t.Errorf("Build error = %v, want ErrInvalidConfig", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toynet.json")

	if err := scenarioManifest().Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Name != "toynet" || m.Scale != 2 || len(m.Layers) != 2 {
		t.Errorf("round-trip = %q scale %d with %d layers", m.Name, m.Scale, len(m.Layers))
	}
	if m.Layers[1].WeightMag[1] != 8 || m.Layers[1].BiasMag[0] != 1 {
		t.Errorf("round-trip lost layer values: %+v", m.Layers[1])
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("Load accepted a missing file")
	}
}

func TestFromGraphRoundTrip(t *testing.T) {
	g, err := scenarioManifest().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	m := FromGraph(g, "toynet")
	if err := m.Validate(); err != nil {
		t.Fatalf("FromGraph manifest invalid: %v", err)
	}
	if len(m.Layers) != 2 || m.Layers[0].Name != "dense1" || m.Layers[1].Name != "dense2" {
		t.Fatalf("FromGraph layers = %+v", m.Layers)
	}
	if m.Layers[0].WeightMag[3] != 4 || m.Layers[0].WeightSign[3] != 0 {
		t.Errorf("FromGraph weight element (1,1) = %d/%d, want 4/0",
			m.Layers[0].WeightMag[3], m.Layers[0].WeightSign[3])
	}

	// Building again yields an equivalent graph.
	g2, err := m.Build()
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if g2.NumLayers() != g.NumLayers() || g2.Scale() != g.Scale() {
		t.Errorf("rebuilt graph differs: %d layers scale %d", g2.NumLayers(), g2.Scale())
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	m := scenarioManifest()
	m.Scale = 0
	if err := m.Save(filepath.Join(t.TempDir(), "bad.json")); !errors.Is(err, graph.ErrInvalidConfig) {
		t.Errorf("Save error = %v, want ErrInvalidConfig", err)
	}
}
