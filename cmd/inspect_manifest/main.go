package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/23skdu/longbow-bodkin/internal/fixed"
	"github.com/23skdu/longbow-bodkin/internal/modelfile"
)

func main() {
	modelPath := flag.String("model", "", "Path to model manifest")
	flag.Parse()

	if *modelPath == "" {
		log.Fatal("missing -model")
	}

	m, err := modelfile.Load(*modelPath)
	if err != nil {
		log.Fatalf("Failed to load manifest: %v", err)
	}
	g, err := m.Build()
	if err != nil {
		log.Fatalf("Manifest does not build: %v", err)
	}

	fmt.Printf("model: %s\n", m.Name)
	fmt.Printf("scale: %d (factor 10^%d)\n", m.Scale, m.Scale)
	fmt.Printf("layers: %d\n\n", len(m.Layers))

	fmt.Printf("%-16s %6s %6s %10s %8s  %s\n", "NAME", "IN", "OUT", "WEIGHTS", "BIAS", "PREVIEW")
	fmt.Println("------------------------------------------------------------------------")
	total := 0
	for _, l := range m.Layers {
		fmt.Printf("%-16s %6d %6d %10d %8d  %s\n",
			l.Name, l.In, l.Out, len(l.WeightMag), len(l.BiasMag),
			preview(l.WeightMag, l.WeightSign, m.Scale))
		total += len(l.WeightMag) + len(l.BiasMag)
	}
	fmt.Println("------------------------------------------------------------------------")
	fmt.Printf("total params: %d\n", total)
	fmt.Printf("input dim: %d, output dim: %d\n", g.InputDim(), g.OutputDim())
}

// preview renders the first few weights as display floats.
func preview(mag []uint64, sgn []int, scale uint32) string {
	const n = 4
	parts := make([]string, 0, n+1)
	for i := 0; i < len(mag) && i < n; i++ {
		parts = append(parts, fmt.Sprintf("%g", fixed.Float64(uint8(sgn[i]), mag[i], scale)))
	}
	if len(mag) > n {
		parts = append(parts, "...")
	}
	return strings.Join(parts, " ")
}
