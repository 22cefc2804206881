// chunk_plan shows how each layer of a model splits into chunks under
// a given per-call op budget, without running any arithmetic.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/23skdu/longbow-bodkin/internal/modelfile"
	"github.com/23skdu/longbow-bodkin/internal/partial"
)

func main() {
	modelPath := flag.String("model", "", "Path to model manifest")
	maxOps := flag.Uint64("max-ops", 0, "Per-call signed-op budget (0: one chunk per layer)")
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

	fmt.Printf("model: %s, budget: %d ops/call\n\n", m.Name, *maxOps)
	var totalOps, totalCalls uint64
	for i, l := range g.Layers() {
		ranges := partial.Plan(l.Out, l.In, *maxOps)
		fmt.Printf("layer %d %q (%dx%d, %d ops total): %d chunks\n",
			i, l.Name, l.In, l.Out, uint64(l.In)*uint64(l.Out), len(ranges))
		for _, r := range ranges {
			cost := uint64(r.End-r.Start) * uint64(l.In)
			fmt.Printf("  [%4d, %4d)  %d ops\n", r.Start, r.End, cost)
			totalOps += cost
		}
		totalCalls += uint64(len(ranges))
	}
	fmt.Printf("\ntotal: %d ops across %d calls\n", totalOps, totalCalls)
}
