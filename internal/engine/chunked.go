package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/23skdu/longbow-bodkin/internal/events"
	"github.com/23skdu/longbow-bodkin/internal/fixed"
	"github.com/23skdu/longbow-bodkin/internal/graph"
	"github.com/23skdu/longbow-bodkin/internal/metrics"
	"github.com/23skdu/longbow-bodkin/internal/partial"
)

// ChunkCompute runs the output-range strategy: the full input against
// output indices [start,end) of the accumulator's layer, writing finished
// elements. Replays overwrite with the same values.
func (e *Engine) ChunkCompute(ctx context.Context, key string, inMag []uint64, inSgn []uint8, start, end int, act graph.Activation) error {
	began := time.Now()

	a, err := e.accs.Get(key)
	if err != nil {
		return err
	}
	l, err := e.graph.Layer(a.LayerName)
	if err != nil {
		return err
	}
	if start < 0 || start >= end || end > a.Out {
		return fmt.Errorf("chunk [%d,%d) of %d outputs: %w", start, end, a.Out, fixed.ErrRange)
	}
	cost := opCost(end-start, l.In)
	if err := e.checkBudget("chunk_compute", cost); err != nil {
		return err
	}

	input, err := fixed.New([]int{1, l.In}, inMag, inSgn, e.graph.Scale())
	if err != nil {
		return err
	}
	if err := e.accs.ChunkCompute(key, input, l, start, end, act); err != nil {
		metrics.RecordComputeError("chunk_compute", errKind(err))
		return err
	}
	metrics.RecordChunk("output_range", end-start, cost, time.Since(began))
	return nil
}

// AccumulateRange runs the input-range strategy: inMag/inSgn cover input
// indices [inStart, inStart+len) at the model scale, and their partial
// products fold additively into output indices [outStart,outEnd). Each
// (input, output) pair must be covered exactly once across calls.
func (e *Engine) AccumulateRange(ctx context.Context, key string, inMag []uint64, inSgn []uint8, inStart, outStart, outEnd int) error {
	began := time.Now()

	a, err := e.accs.Get(key)
	if err != nil {
		return err
	}
	l, err := e.graph.Layer(a.LayerName)
	if err != nil {
		return err
	}
	if outStart < 0 || outStart >= outEnd || outEnd > a.Out {
		return fmt.Errorf("output range [%d,%d) of %d outputs: %w", outStart, outEnd, a.Out, fixed.ErrRange)
	}
	cost := opCost(outEnd-outStart, len(inMag))
	if err := e.checkBudget("accumulate_range", cost); err != nil {
		return err
	}

	if err := e.accs.AccumulateRange(key, inMag, inSgn, e.graph.Scale(), inStart, l, outStart, outEnd); err != nil {
		metrics.RecordComputeError("accumulate_range", errKind(err))
		return err
	}
	metrics.RecordChunk("input_range", outEnd-outStart, cost, time.Since(began))
	return nil
}

// Finalize packages the accumulator's current contents unchanged. After
// output-range chunks the values are finished scale-s elements; after
// input-range accumulation they are raw scale-2s sums and the caller
// wants FinalizeIncremental instead.
func (e *Engine) Finalize(ctx context.Context, key string) (*Result, error) {
	began := time.Now()

	a, err := e.accs.Get(key)
	if err != nil {
		return nil, err
	}
	t, err := e.accs.Finalize(key)
	if err != nil {
		metrics.RecordComputeError("finalize", errKind(err))
		return nil, err
	}

	res := e.resultFrom(t, false)
	metrics.RecordFinalize("raw", time.Since(began))
	e.emitLayerDone(ctx, a.LayerName, res)
	return res, nil
}

// FinalizeIncremental completes an input-range accumulation: bias,
// activation and rescale applied once over the raw sums. The accumulator
// is left untouched, so the call is repeatable.
func (e *Engine) FinalizeIncremental(ctx context.Context, key string, act graph.Activation) (*Result, error) {
	began := time.Now()

	a, err := e.accs.Get(key)
	if err != nil {
		return nil, err
	}
	l, err := e.graph.Layer(a.LayerName)
	if err != nil {
		return nil, err
	}
	t, err := e.accs.FinalizeIncremental(key, l, act)
	if err != nil {
		metrics.RecordComputeError("finalize_incremental", errKind(err))
		return nil, err
	}

	res := e.resultFrom(t, false)
	metrics.RecordFinalize("incremental", time.Since(began))
	e.emitLayerDone(ctx, a.LayerName, res)
	return res, nil
}

// PlanChunks splits a layer's output dimension into ranges whose cost
// fits the configured budget. With no budget it returns one full range.
func (e *Engine) PlanChunks(layerIndex int) ([]partial.Range, error) {
	l, err := e.graph.LayerAt(layerIndex)
	if err != nil {
		return nil, err
	}
	return partial.Plan(l.Out, l.In, e.maxOps), nil
}

// Accumulators lists the accumulator keys in creation order.
func (e *Engine) Accumulators() []string {
	return e.accs.Keys()
}

// Accumulator looks up one accumulator for read-only inspection.
func (e *Engine) Accumulator(key string) (*partial.Accumulator, error) {
	return e.accs.Get(key)
}

func (e *Engine) emitLayerDone(ctx context.Context, layerName string, res *Result) {
	idx, err := e.graph.LayerIndex(layerName)
	if err != nil {
		return
	}
	e.emit(ctx, events.Event{
		Kind:       events.KindLayerCompleted,
		LayerIndex: idx,
		Mag:        res.Mag,
		Sign:       res.Sign,
		Scale:      res.Scale,
	})
}
