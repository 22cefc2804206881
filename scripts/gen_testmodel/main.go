// Generates the small two-layer test model used by the examples and
// the integration tests. With scale 2 and input 100,200,300 the hidden
// layer produces 23,29 and the output layer 4, argmax 0.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/23skdu/longbow-bodkin/internal/modelfile"
)

func main() {
	out := flag.String("out", "examples/toynet.json", "Output manifest path")
	flag.Parse()

	m := &modelfile.Manifest{
		Name:  "toynet",
		Scale: 2,
		Layers: []modelfile.LayerSpec{
			{
				Name:       "dense1",
				In:         3,
				Out:        2,
				WeightMag:  []uint64{1, 2, 3, 4, 5, 6},
				WeightSign: []int{0, 0, 0, 0, 0, 0},
				BiasMag:    []uint64{1, 1},
				BiasSign:   []int{0, 0},
			},
			{
				Name:       "dense2",
				In:         2,
				Out:        1,
				WeightMag:  []uint64{7, 8},
				WeightSign: []int{0, 0},
				BiasMag:    []uint64{1},
				BiasSign:   []int{0},
			},
		},
	}

	if _, err := m.Build(); err != nil {
		log.Fatalf("test model does not build: %v", err)
	}
	if err := m.Save(*out); err != nil {
		log.Fatalf("write manifest: %v", err)
	}
	fmt.Printf("wrote %s\n", *out)
}
