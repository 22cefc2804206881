// Package metrics exposes Prometheus collectors for the inference engine.
// Collectors are package-level and registered through promauto; callers go
// through the Record helpers.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var totalSignedOps atomic.Int64

var (
	PredictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bodkin_predictions_total",
		Help: "The total number of full forward passes completed",
	})

	LayerComputationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bodkin_layer_computations_total",
		Help: "Dense layer evaluations completed, by activation",
	}, []string{"activation"})

	ChunkComputationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bodkin_chunk_computations_total",
		Help: "Chunk calls completed, by strategy",
	}, []string{"strategy"})

	FinalizationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bodkin_finalizations_total",
		Help: "Accumulator finalizations, by mode",
	}, []string{"mode"})

	SignedOpsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bodkin_signed_ops_total",
		Help: "Signed multiply-accumulate operations performed",
	})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bodkin_inference_duration_seconds",
		Help:    "Duration of engine calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	ChunkRangeSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bodkin_chunk_range_size",
		Help:    "Output indices covered per chunk call",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024},
	})

	AccumulatorsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bodkin_accumulators_active",
		Help: "Accumulators currently held by the engine",
	})

	ArgmaxNoCandidate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bodkin_argmax_no_candidate_total",
		Help: "Argmax reads where every element was negative",
	})

	ComputeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bodkin_compute_errors_total",
		Help: "Failed engine calls, by operation and error kind",
	}, []string{"operation", "kind"})

	BudgetRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bodkin_budget_rejections_total",
		Help: "Calls rejected for exceeding the per-call op budget",
	})

	EventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bodkin_events_published_total",
		Help: "Events successfully handed to the sink",
	})

	EventsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bodkin_events_failed_total",
		Help: "Event publishes that returned an error",
	})
)

// RecordPrediction accounts one full forward pass.
func RecordPrediction(signedOps uint64, duration time.Duration) {
	PredictionsTotal.Inc()
	SignedOpsTotal.Add(float64(signedOps))
	totalSignedOps.Add(int64(signedOps))
	InferenceDuration.WithLabelValues("predict").Observe(duration.Seconds())
}

// RecordLayer accounts one single-layer evaluation.
func RecordLayer(activation string, signedOps uint64, duration time.Duration) {
	LayerComputationsTotal.WithLabelValues(activation).Inc()
	SignedOpsTotal.Add(float64(signedOps))
	totalSignedOps.Add(int64(signedOps))
	InferenceDuration.WithLabelValues("predict_layer").Observe(duration.Seconds())
}

// RecordChunk accounts one chunk call of either strategy.
func RecordChunk(strategy string, rangeSize int, signedOps uint64, duration time.Duration) {
	ChunkComputationsTotal.WithLabelValues(strategy).Inc()
	ChunkRangeSize.Observe(float64(rangeSize))
	SignedOpsTotal.Add(float64(signedOps))
	totalSignedOps.Add(int64(signedOps))
	InferenceDuration.WithLabelValues("chunk_" + strategy).Observe(duration.Seconds())
}

// RecordFinalize accounts one finalize, mode "raw" or "incremental".
func RecordFinalize(mode string, duration time.Duration) {
	FinalizationsTotal.WithLabelValues(mode).Inc()
	InferenceDuration.WithLabelValues("finalize_" + mode).Observe(duration.Seconds())
}

// RecordComputeError accounts a failed call.
func RecordComputeError(operation, kind string) {
	ComputeErrors.WithLabelValues(operation, kind).Inc()
}

// RecordBudgetRejection accounts a call refused by the op budget.
func RecordBudgetRejection() {
	BudgetRejections.Inc()
}

// RecordArgmaxNoCandidate accounts an all-negative argmax read.
func RecordArgmaxNoCandidate() {
	ArgmaxNoCandidate.Inc()
}

// RecordAccumulators sets the live accumulator gauge.
func RecordAccumulators(n int) {
	AccumulatorsActive.Set(float64(n))
}

// RecordEventPublish accounts one sink publish attempt.
func RecordEventPublish(err error) {
	if err != nil {
		EventsFailed.Inc()
		return
	}
	EventsPublished.Inc()
}

// TotalSignedOps returns the process-lifetime signed op count.
func TotalSignedOps() int64 {
	return totalSignedOps.Load()
}
