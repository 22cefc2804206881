// bodkin runs one prediction against a model manifest from the command
// line: the full forward pass, a single layer step, or the chunked
// protocol driven end to end under an op budget.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/23skdu/longbow-bodkin/internal/config"
	"github.com/23skdu/longbow-bodkin/internal/engine"
	"github.com/23skdu/longbow-bodkin/internal/events"
	"github.com/23skdu/longbow-bodkin/internal/fixed"
	"github.com/23skdu/longbow-bodkin/internal/graph"
	"github.com/23skdu/longbow-bodkin/internal/logger"
	"github.com/23skdu/longbow-bodkin/internal/modelfile"
)

var (
	modelPath   = flag.String("model", "", "Path to the model manifest (required)")
	input       = flag.String("input", "", "Comma-separated input magnitudes (required)")
	signs       = flag.String("signs", "", "Comma-separated input signs, 0 or 1 (default: all 0)")
	layerIndex  = flag.Int("layer", -1, "Evaluate a single layer instead of the full pass")
	chunked     = flag.Bool("chunked", false, "Run hidden layers through the chunked protocol")
	maxOps      = flag.Uint64("max-ops", 0, "Per-call signed-op budget (0: unlimited)")
	eventsAddr  = flag.String("events", "", "Arrow Flight address for result events (empty: off)")
	metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics while running (empty: off)")
	asJSON      = flag.Bool("json", false, "Print the result as JSON")
	logLevel    = flag.String("log-level", "warn", "Log level: debug, info, warn or error")
	logFormat   = flag.String("log-format", "console", "Log format: console or json")
)

func main() {
	flag.Parse()
	logger.Setup(*logLevel, *logFormat)
	log := logger.Log.WithComponent("bodkin")

	if *modelPath == "" || *input == "" {
		flag.Usage()
		os.Exit(2)
	}

	if *metricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				log.Error("metrics server", "error", err)
			}
		}()
	}

	manifest, err := modelfile.Load(*modelPath)
	if err != nil {
		log.Error("load manifest", "error", err)
		os.Exit(1)
	}
	g, err := manifest.Build()
	if err != nil {
		log.Error("build model graph", "error", err)
		os.Exit(1)
	}

	inMag, err := parseMagnitudes(*input)
	if err != nil {
		log.Error("parse input", "error", err)
		os.Exit(1)
	}
	inSgn, err := parseSigns(*signs, len(inMag))
	if err != nil {
		log.Error("parse signs", "error", err)
		os.Exit(1)
	}

	var sink events.Sink = events.NopSink{}
	if *eventsAddr != "" {
		fs, err := events.NewFlightSink(*eventsAddr)
		if err != nil {
			log.Error("connect event sink", "addr", *eventsAddr, "error", err)
			os.Exit(1)
		}
		defer fs.Close()
		sink = fs
	}

	cfg := config.Default()
	cfg.ModelName = manifest.Name
	cfg.MaxOpsPerCall = *maxOps
	eng, err := engine.New(g, &cfg, sink)
	if err != nil {
		log.Error("initialize engine", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	start := time.Now()
	var res *engine.Result
	switch {
	case *layerIndex >= 0:
		res, err = eng.PredictLayer(ctx, *layerIndex, inMag, inSgn)
	case *chunked:
		res, err = runChunked(ctx, eng, inMag, inSgn)
	default:
		res, err = eng.Predict(ctx, inMag, inSgn)
	}
	if err != nil {
		log.Error("inference failed", "error", err)
		os.Exit(1)
	}
	duration := time.Since(start)

	if *asJSON {
		printJSON(res, duration)
		return
	}
	printResult(manifest.Name, g.NumLayers(), res, duration)
}

// runChunked evaluates every hidden layer through planned chunk calls
// plus a finalize, then steps the last layer whole. Each call stays
// within the engine's op budget, so this path completes models whose
// one-shot pass the budget rejects.
func runChunked(ctx context.Context, eng *engine.Engine, inMag []uint64, inSgn []uint8) (*engine.Result, error) {
	g := eng.Graph()
	curMag, curSgn := inMag, inSgn
	for i := 0; i < g.NumLayers()-1; i++ {
		l, err := g.LayerAt(i)
		if err != nil {
			return nil, err
		}
		ranges, err := eng.PlanChunks(i)
		if err != nil {
			return nil, err
		}
		for _, r := range ranges {
			if err := eng.ChunkCompute(ctx, l.Name, curMag, curSgn, r.Start, r.End, graph.ActivationReLU); err != nil {
				return nil, err
			}
		}
		res, err := eng.Finalize(ctx, l.Name)
		if err != nil {
			return nil, err
		}
		curMag, curSgn = res.Mag, res.Sign
	}
	return eng.PredictLayer(ctx, g.NumLayers()-1, curMag, curSgn)
}

func parseMagnitudes(s string) ([]uint64, error) {
	parts := strings.Split(s, ",")
	out := make([]uint64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("magnitude %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseSigns(s string, n int) ([]uint8, error) {
	if s == "" {
		return make([]uint8, n), nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("%d signs for %d inputs", len(parts), n)
	}
	ints := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("sign %q: %w", p, err)
		}
		ints[i] = v
	}
	return fixed.SignsFromInts(ints)
}

func printJSON(res *engine.Result, duration time.Duration) {
	doc := struct {
		Mag        []uint64 `json:"magnitude"`
		Sign       []int    `json:"sign"`
		Scale      uint32   `json:"scale"`
		Argmax     *int     `json:"argmax"`
		DurationMS float64  `json:"duration_ms"`
	}{
		Mag:        res.Mag,
		Sign:       fixed.SignsToInts(res.Sign),
		Scale:      res.Scale,
		Argmax:     res.Argmax,
		DurationMS: float64(duration.Microseconds()) / 1000.0,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		fmt.Fprintf(os.Stderr, "encode result: %v\n", err)
		os.Exit(1)
	}
}

func printResult(model string, layers int, res *engine.Result, duration time.Duration) {
	fmt.Printf("model: %s (%d layers, scale %d)\n", model, layers, res.Scale)
	fmt.Println("output:")
	for i := range res.Mag {
		sign := "+"
		if res.Sign[i] == fixed.SignNegative {
			sign = "-"
		}
		fmt.Printf("  [%d]  %s%-12d %v\n", i, sign, res.Mag[i], fixed.Float64(res.Sign[i], res.Mag[i], res.Scale))
	}
	if res.Argmax != nil {
		fmt.Printf("argmax: %d\n", *res.Argmax)
	} else {
		fmt.Println("argmax: none")
	}
	fmt.Printf("duration: %v\n", duration)
}
