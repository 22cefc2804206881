// modelpack converts a float model description into the fixed-point
// manifest the engine loads. Every weight and bias is quantized to
// sign-magnitude form at the chosen decimal scale, and the result is
// verified by building the full graph before it is written out.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/23skdu/longbow-bodkin/internal/fixed"
	"github.com/23skdu/longbow-bodkin/internal/logger"
	"github.com/23skdu/longbow-bodkin/internal/modelfile"
)

var (
	inPath   = flag.String("in", "", "Path to the float model JSON (required)")
	outPath  = flag.String("out", "", "Path for the fixed-point manifest (required)")
	scale    = flag.Uint("scale", 0, "Decimal scale override (0: use the input file's scale)")
	name     = flag.String("name", "", "Model name override (empty: use the input file's name)")
	logLevel = flag.String("log-level", "info", "Log level: debug, info, warn or error")
)

// floatModel is the converter's input: plain float weights, flat
// row-major [in,out], bias [out].
type floatModel struct {
	Name   string       `json:"name"`
	Scale  uint32       `json:"scale"`
	Layers []floatLayer `json:"layers"`
}

type floatLayer struct {
	Name    string    `json:"name"`
	In      int       `json:"in"`
	Out     int       `json:"out"`
	Weights []float64 `json:"weights"`
	Bias    []float64 `json:"bias"`
}

func main() {
	flag.Parse()
	logger.Setup(*logLevel, "console")
	log := logger.Log.WithComponent("modelpack")

	if *inPath == "" || *outPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	data, err := os.ReadFile(*inPath)
	if err != nil {
		log.Error("read input", "error", err)
		os.Exit(1)
	}
	var fm floatModel
	if err := json.Unmarshal(data, &fm); err != nil {
		log.Error("decode input", "error", err)
		os.Exit(1)
	}

	useScale := fm.Scale
	if *scale > 0 {
		useScale = uint32(*scale)
	}
	if *name != "" {
		fm.Name = *name
	}

	manifest, err := convert(&fm, useScale)
	if err != nil {
		log.Error("convert model", "error", err)
		os.Exit(1)
	}
	g, err := manifest.Build()
	if err != nil {
		log.Error("verify converted model", "error", err)
		os.Exit(1)
	}
	if err := manifest.Save(*outPath); err != nil {
		log.Error("write manifest", "error", err)
		os.Exit(1)
	}

	params := 0
	for _, l := range manifest.Layers {
		params += len(l.WeightMag) + len(l.BiasMag)
	}
	log.Info("manifest written",
		"path", *outPath,
		"model", manifest.Name,
		"layers", g.NumLayers(),
		"scale", useScale,
		"params", params,
		"input_dim", g.InputDim(),
		"output_dim", g.OutputDim())
}

func convert(fm *floatModel, scale uint32) (*modelfile.Manifest, error) {
	m := &modelfile.Manifest{Name: fm.Name, Scale: scale}
	for _, fl := range fm.Layers {
		if len(fl.Weights) != fl.In*fl.Out {
			return nil, fmt.Errorf("layer %q: %d weights, want %d", fl.Name, len(fl.Weights), fl.In*fl.Out)
		}
		if len(fl.Bias) != fl.Out {
			return nil, fmt.Errorf("layer %q: %d biases, want %d", fl.Name, len(fl.Bias), fl.Out)
		}
		wMag, wSgn, err := quantize(fl.Weights, scale)
		if err != nil {
			return nil, fmt.Errorf("layer %q weights: %w", fl.Name, err)
		}
		bMag, bSgn, err := quantize(fl.Bias, scale)
		if err != nil {
			return nil, fmt.Errorf("layer %q bias: %w", fl.Name, err)
		}
		m.Layers = append(m.Layers, modelfile.LayerSpec{
			Name:       fl.Name,
			In:         fl.In,
			Out:        fl.Out,
			WeightMag:  wMag,
			WeightSign: wSgn,
			BiasMag:    bMag,
			BiasSign:   bSgn,
		})
	}
	return m, nil
}

func quantize(values []float64, scale uint32) ([]uint64, []int, error) {
	mag := make([]uint64, len(values))
	sgn := make([]int, len(values))
	for i, v := range values {
		s, m, err := fixed.FromFloat64(v, scale)
		if err != nil {
			return nil, nil, fmt.Errorf("value %v at index %d: %w", v, i, err)
		}
		mag[i] = m
		sgn[i] = int(s)
	}
	return mag, sgn, nil
}
