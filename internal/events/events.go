// Package events delivers layer-completed and prediction-completed
// notifications to an external sink. Delivery is fire-and-forget: the
// engine logs and counts publish failures but never fails a computation
// over them.
package events

import (
	"context"
	"time"
)

const (
	KindLayerCompleted      = "layer_completed"
	KindPredictionCompleted = "prediction_completed"
)

// Event carries one completed result in the wire representation:
// magnitude and sign vectors plus the scale, and the argmax when one was
// computed.
type Event struct {
	Kind       string
	Model      string
	LayerIndex int
	Mag        []uint64
	Sign       []uint8
	Scale      uint32
	Argmax     *int
	At         time.Time
}

// Sink is the emit capability the engine needs; no response flows back.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NopSink discards events. It is the default when no sink is configured.
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) error { return nil }
func (NopSink) Close() error                         { return nil }
