package events

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// eventSchema is the record layout events travel as: one row per event,
// vectors as list columns, argmax null when no argmax was computed.
var eventSchema = arrow.NewSchema([]arrow.Field{
	{Name: "kind", Type: arrow.BinaryTypes.String},
	{Name: "model", Type: arrow.BinaryTypes.String},
	{Name: "layer_index", Type: arrow.PrimitiveTypes.Int32},
	{Name: "magnitude", Type: arrow.ListOf(arrow.PrimitiveTypes.Uint64)},
	{Name: "sign", Type: arrow.ListOf(arrow.PrimitiveTypes.Uint8)},
	{Name: "scale", Type: arrow.PrimitiveTypes.Uint32},
	{Name: "argmax", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "emitted_at", Type: arrow.FixedWidthTypes.Timestamp_ms},
}, nil)

// FlightSink publishes events to an Arrow Flight endpoint, one DoPut
// stream per event under the descriptor path ["events", model].
type FlightSink struct {
	addr   string
	client flight.Client
}

func NewFlightSink(addr string) (*FlightSink, error) {
	client, err := flight.NewClientWithMiddleware(addr, nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("flight client %s: %w", addr, err)
	}
	return &FlightSink{addr: addr, client: client}, nil
}

func (f *FlightSink) Publish(ctx context.Context, ev Event) error {
	rec := buildRecord(ev)
	defer rec.Release()

	stream, err := f.client.DoPut(ctx)
	if err != nil {
		return fmt.Errorf("doput %s: %w", f.addr, err)
	}

	w := flight.NewRecordWriter(stream, ipc.WithSchema(eventSchema))
	w.SetFlightDescriptor(&flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{"events", ev.Model},
	})
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return fmt.Errorf("write event: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("close stream: %w", err)
	}
	// Drain acknowledgements so server-side failures surface here instead
	// of being dropped with the stream.
	for {
		if _, err := stream.Recv(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("event ack: %w", err)
		}
	}
}

func (f *FlightSink) Close() error {
	return f.client.Close()
}

func buildRecord(ev Event) arrow.Record {
	b := array.NewRecordBuilder(memory.DefaultAllocator, eventSchema)
	defer b.Release()

	b.Field(0).(*array.StringBuilder).Append(ev.Kind)
	b.Field(1).(*array.StringBuilder).Append(ev.Model)
	b.Field(2).(*array.Int32Builder).Append(int32(ev.LayerIndex))

	magList := b.Field(3).(*array.ListBuilder)
	magList.Append(true)
	magList.ValueBuilder().(*array.Uint64Builder).AppendValues(ev.Mag, nil)

	sgnList := b.Field(4).(*array.ListBuilder)
	sgnList.Append(true)
	sgnList.ValueBuilder().(*array.Uint8Builder).AppendValues(ev.Sign, nil)

	b.Field(5).(*array.Uint32Builder).Append(ev.Scale)

	argmax := b.Field(6).(*array.Int32Builder)
	if ev.Argmax != nil {
		argmax.Append(int32(*ev.Argmax))
	} else {
		argmax.AppendNull()
	}

	b.Field(7).(*array.TimestampBuilder).Append(arrow.Timestamp(ev.At.UnixMilli()))

	return b.NewRecord()
}
