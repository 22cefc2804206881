// Package engine sequences dense layer evaluation over a loaded graph.
// It offers a full forward pass, a single-layer step the caller chains by
// feeding outputs back in, and a chunked protocol backed by persistent
// per-layer accumulators. All state lives in the graph (immutable) and
// the accumulator set (caller-serialized); calls themselves hold nothing.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/23skdu/longbow-bodkin/internal/config"
	"github.com/23skdu/longbow-bodkin/internal/events"
	"github.com/23skdu/longbow-bodkin/internal/fixed"
	"github.com/23skdu/longbow-bodkin/internal/graph"
	"github.com/23skdu/longbow-bodkin/internal/logger"
	"github.com/23skdu/longbow-bodkin/internal/metrics"
	"github.com/23skdu/longbow-bodkin/internal/partial"
)

// ErrBudgetExceeded rejects a call whose estimated signed-op count is over
// the configured per-call limit. The call fails before computing anything.
var ErrBudgetExceeded = errors.New("engine: op budget exceeded")

// Result is the canonical wire triple plus the classification readout.
// Argmax is nil when the call does not compute one, or when every output
// element was negative and no class qualified.
type Result struct {
	Mag    []uint64
	Sign   []uint8
	Scale  uint32
	Argmax *int
}

// Engine evaluates one model. Safe for concurrent Predict/PredictLayer
// callers; chunk calls against a single accumulator must be serialized by
// the caller, as the accumulators do not lock.
type Engine struct {
	graph  *graph.Graph
	accs   *partial.Set
	sink   events.Sink
	log    *logger.Logger
	model  string
	maxOps uint64
}

// New builds an engine over a validated graph, with one accumulator per
// layer except the last. A nil sink falls back to the discarding one.
func New(g *graph.Graph, cfg *config.Config, sink events.Sink) (*Engine, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph: %w", graph.ErrInvalidConfig)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	accs, err := partial.BuildForGraph(g)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = events.NopSink{}
	}

	model := "model"
	var maxOps uint64
	if cfg != nil {
		maxOps = cfg.MaxOpsPerCall
		if cfg.ModelName != "" {
			model = cfg.ModelName
		}
	}

	e := &Engine{
		graph:  g,
		accs:   accs,
		sink:   sink,
		log:    logger.Log.WithComponent("engine"),
		model:  model,
		maxOps: maxOps,
	}
	metrics.RecordAccumulators(accs.Len())
	e.log.Info("engine ready",
		"model", model,
		"layers", g.NumLayers(),
		"scale", g.Scale(),
		"accumulators", accs.Len(),
		"max_ops_per_call", maxOps)
	return e, nil
}

// Graph exposes the loaded model for read-only inspection.
func (e *Engine) Graph() *graph.Graph { return e.graph }

// ModelName reports the label carried on emitted events.
func (e *Engine) ModelName() string { return e.model }

// Predict runs the full forward pass: ReLU on every layer but the last,
// none on the last, argmax over the final output.
func (e *Engine) Predict(ctx context.Context, inMag []uint64, inSgn []uint8) (*Result, error) {
	began := time.Now()

	in := e.graph.InputDim()
	if len(inMag) != in || len(inSgn) != in {
		return nil, fmt.Errorf("input vectors %d/%d, want %d: %w",
			len(inMag), len(inSgn), in, fixed.ErrShapeMismatch)
	}

	layers := e.graph.Layers()
	var cost uint64
	for _, l := range layers {
		cost += opCost(l.Out, l.In)
	}
	if err := e.checkBudget("predict", cost); err != nil {
		return nil, err
	}

	cur, err := fixed.New([]int{1, in}, inMag, inSgn, e.graph.Scale())
	if err != nil {
		return nil, err
	}
	for i, l := range layers {
		cur, err = l.Apply(cur, e.activationFor(i))
		if err != nil {
			metrics.RecordComputeError("predict", errKind(err))
			return nil, fmt.Errorf("layer %q: %w", l.Name, err)
		}
	}

	res := e.resultFrom(cur, true)
	metrics.RecordPrediction(cost, time.Since(began))
	e.emit(ctx, events.Event{
		Kind:       events.KindPredictionCompleted,
		LayerIndex: len(layers) - 1,
		Mag:        res.Mag,
		Sign:       res.Sign,
		Scale:      res.Scale,
		Argmax:     res.Argmax,
	})
	return res, nil
}

// PredictLayer evaluates exactly one layer. The activation follows the
// forward-pass convention (ReLU unless last), and the argmax is computed
// only for the last layer. No state carries between calls: the caller
// threads the output back in as the next call's input.
func (e *Engine) PredictLayer(ctx context.Context, layerIndex int, inMag []uint64, inSgn []uint8) (*Result, error) {
	began := time.Now()

	l, err := e.graph.LayerAt(layerIndex)
	if err != nil {
		return nil, err
	}
	if len(inMag) != l.In || len(inSgn) != l.In {
		return nil, fmt.Errorf("input vectors %d/%d, want %d for layer %q: %w",
			len(inMag), len(inSgn), l.In, l.Name, fixed.ErrShapeMismatch)
	}
	cost := opCost(l.Out, l.In)
	if err := e.checkBudget("predict_layer", cost); err != nil {
		return nil, err
	}

	input, err := fixed.New([]int{1, l.In}, inMag, inSgn, e.graph.Scale())
	if err != nil {
		return nil, err
	}
	act := e.activationFor(layerIndex)
	out, err := l.Apply(input, act)
	if err != nil {
		metrics.RecordComputeError("predict_layer", errKind(err))
		return nil, fmt.Errorf("layer %q: %w", l.Name, err)
	}

	last := layerIndex == e.graph.NumLayers()-1
	res := e.resultFrom(out, last)
	metrics.RecordLayer(act.String(), cost, time.Since(began))
	e.emit(ctx, events.Event{
		Kind:       events.KindLayerCompleted,
		LayerIndex: layerIndex,
		Mag:        res.Mag,
		Sign:       res.Sign,
		Scale:      res.Scale,
		Argmax:     res.Argmax,
	})
	return res, nil
}

// activationFor picks the forward-pass activation for a layer position.
func (e *Engine) activationFor(layerIndex int) graph.Activation {
	if layerIndex == e.graph.NumLayers()-1 {
		return graph.ActivationNone
	}
	return graph.ActivationReLU
}

// resultFrom copies a tensor out into wire form. When withArgmax is set
// and no element qualifies, Argmax stays nil and the miss is counted.
func (e *Engine) resultFrom(t *fixed.Tensor, withArgmax bool) *Result {
	res := &Result{
		Mag:   append([]uint64(nil), t.Mag...),
		Sign:  append([]uint8(nil), t.Sign...),
		Scale: t.Scale,
	}
	if !withArgmax {
		return res
	}
	if idx, ok := t.Argmax(); ok {
		res.Argmax = &idx
	} else {
		metrics.RecordArgmaxNoCandidate()
		e.log.Warn("argmax has no non-negative candidate", "model", e.model, "elements", t.NumElements())
	}
	return res
}

// opCost estimates a dense range as width*in signed multiply-adds.
func opCost(width, in int) uint64 {
	return uint64(width) * uint64(in)
}

func (e *Engine) checkBudget(operation string, cost uint64) error {
	if e.maxOps == 0 || cost <= e.maxOps {
		return nil
	}
	metrics.RecordBudgetRejection()
	e.log.Warn("op budget exceeded", "operation", operation, "cost", cost, "budget", e.maxOps)
	return fmt.Errorf("%s needs %d signed ops, budget is %d: %w", operation, cost, e.maxOps, ErrBudgetExceeded)
}

// emit publishes fire-and-forget: failures are logged and counted, never
// surfaced to the caller.
func (e *Engine) emit(ctx context.Context, ev events.Event) {
	ev.Model = e.model
	ev.At = time.Now().UTC()
	err := e.sink.Publish(ctx, ev)
	metrics.RecordEventPublish(err)
	if err != nil {
		e.log.Warn("event publish failed", "kind", ev.Kind, "layer_index", ev.LayerIndex, "error", err)
	}
}

// errKind maps an error chain onto a metric label.
func errKind(err error) string {
	switch {
	case errors.Is(err, fixed.ErrOverflow):
		return "overflow"
	case errors.Is(err, fixed.ErrShapeMismatch):
		return "shape_mismatch"
	case errors.Is(err, fixed.ErrScaleMismatch):
		return "scale_mismatch"
	case errors.Is(err, fixed.ErrRange):
		return "range"
	case errors.Is(err, graph.ErrNotFound), errors.Is(err, partial.ErrNotFound):
		return "not_found"
	case errors.Is(err, graph.ErrInvalidConfig):
		return "invalid_config"
	case errors.Is(err, ErrBudgetExceeded):
		return "budget"
	default:
		return "other"
	}
}
